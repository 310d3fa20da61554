package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gossh "golang.org/x/crypto/ssh"

	"github.com/skyward-cloud/nodeboot/internal/util/retry"
)

const (
	defaultPort                = 22
	defaultConnectTimeout      = 60 * time.Second
	defaultKeepAliveInterval   = 60 * time.Second
	defaultMaxMissedKeepAlives = 10
	defaultConnectAttempts     = 5
	defaultConnectDelay        = 10 * time.Second
)

// ErrUnavailable is returned when a command channel cannot be established
// within the connect budget, or when the channel has been declared dead.
// Callers treat it as a signal to re-enter stability detection, not as a
// fatal condition.
var ErrUnavailable = errors.New("ssh: session unavailable")

// RunResult is the outcome of a remote command that actually ran.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Session is an established command-execution channel to one node.
// A non-zero exit code is reported through RunResult, not as an error;
// errors mean the command could not be executed at all.
type Session interface {
	Run(ctx context.Context, command string, timeout time.Duration) (RunResult, error)
	Close() error
}

// Dialer opens Sessions to node addresses.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Session, error)
}

// Config holds SSH client configuration.
type Config struct {
	User       string
	PrivateKey []byte
	Port       int

	// ConnectTimeout bounds the TCP+handshake time per dial attempt.
	ConnectTimeout time.Duration

	// KeepAliveInterval is the period between keep-alive probes on an
	// established channel. After MaxMissedKeepAlives consecutive failed
	// probes the channel is declared dead.
	KeepAliveInterval   time.Duration
	MaxMissedKeepAlives int

	// ConnectAttempts and ConnectDelay form the bounded dial budget.
	ConnectAttempts int
	ConnectDelay    time.Duration

	// HostKeyCallback handles host key verification. If nil,
	// ssh.InsecureIgnoreHostKey() is used, which is the working default
	// for freshly created instances that have no recorded host key yet.
	HostKeyCallback gossh.HostKeyCallback
}

// Client opens command-execution channels to nodes over SSH. The private
// key is parsed once during construction.
type Client struct {
	config Config
	signer gossh.Signer
}

// NewClient creates a new SSH client and validates the private key.
func NewClient(cfg Config) (*Client, error) {
	if cfg.User == "" {
		return nil, fmt.Errorf("config user cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, fmt.Errorf("config private key cannot be empty")
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.KeepAliveInterval == 0 {
		cfg.KeepAliveInterval = defaultKeepAliveInterval
	}
	if cfg.MaxMissedKeepAlives == 0 {
		cfg.MaxMissedKeepAlives = defaultMaxMissedKeepAlives
	}
	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = defaultConnectAttempts
	}
	if cfg.ConnectDelay == 0 {
		cfg.ConnectDelay = defaultConnectDelay
	}
	if cfg.HostKeyCallback == nil {
		cfg.HostKeyCallback = gossh.InsecureIgnoreHostKey() //nolint:gosec // fresh instances have no recorded host key
	}

	signer, err := gossh.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &Client{config: cfg, signer: signer}, nil
}

// Dial establishes a channel to addr within the bounded connect budget.
// On exhaustion it returns an error wrapping ErrUnavailable.
func (c *Client) Dial(ctx context.Context, addr string) (Session, error) {
	clientConfig := &gossh.ClientConfig{
		User:            c.config.User,
		Auth:            []gossh.AuthMethod{gossh.PublicKeys(c.signer)},
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.ConnectTimeout,
	}

	hostPort := fmt.Sprintf("%s:%d", addr, c.config.Port)
	var client *gossh.Client

	err := retry.Do(ctx, func() error {
		var dialErr error
		client, dialErr = gossh.Dial("tcp", hostPort, clientConfig)
		return dialErr
	}, retry.WithMaxAttempts(c.config.ConnectAttempts), retry.WithDelay(c.config.ConnectDelay))
	if err != nil {
		return nil, fmt.Errorf("%w: %s after %d attempts: %v",
			ErrUnavailable, hostPort, c.config.ConnectAttempts, err)
	}

	s := &remoteSession{client: client, stop: make(chan struct{})}
	go s.keepAlive(c.config.KeepAliveInterval, c.config.MaxMissedKeepAlives)
	return s, nil
}

// WithSession runs fn with a freshly dialed session and guarantees channel
// teardown on every exit path, including panics and cancellation.
func (c *Client) WithSession(ctx context.Context, addr string, fn func(Session) error) error {
	sess, err := c.Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()
	return fn(sess)
}

type remoteSession struct {
	client    *gossh.Client
	dead      atomic.Bool
	stop      chan struct{}
	closeOnce sync.Once
}

// keepAlive probes the channel and declares it dead after too many
// consecutive missed probes.
func (s *remoteSession) keepAlive(interval time.Duration, maxMissed int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			_, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil)
			if err != nil {
				missed++
				if missed > maxMissed {
					s.dead.Store(true)
					_ = s.client.Close()
					return
				}
				continue
			}
			missed = 0
		}
	}
}

// Run executes a command and reports its exit code and output. The timeout
// bounds the command itself; zero means the context alone bounds it.
func (s *remoteSession) Run(ctx context.Context, command string, timeout time.Duration) (RunResult, error) {
	if s.dead.Load() {
		return RunResult{}, fmt.Errorf("%w: channel declared dead by keep-alive", ErrUnavailable)
	}

	sess, err := s.client.NewSession()
	if err != nil {
		return RunResult{}, fmt.Errorf("%w: failed to open exec channel: %v", ErrUnavailable, err)
	}
	defer func() { _ = sess.Close() }()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := sess.Start(command); err != nil {
		return RunResult{}, fmt.Errorf("%w: failed to start command: %v", ErrUnavailable, err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(gossh.SIGKILL)
		return RunResult{}, fmt.Errorf("command %q aborted: %w", command, ctx.Err())
	case err := <-done:
		result := RunResult{Stdout: stdout.String(), Stderr: stderr.String()}
		if err == nil {
			return result, nil
		}
		var exitErr *gossh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return result, fmt.Errorf("%w: command %q did not complete: %v", ErrUnavailable, command, err)
	}
}

// Close tears the channel down. Safe to call more than once.
func (s *remoteSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		err = s.client.Close()
	})
	return err
}
