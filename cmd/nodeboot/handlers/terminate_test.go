package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyward-cloud/nodeboot/internal/config"
	"github.com/skyward-cloud/nodeboot/internal/platform/cloud"
)

type fakeLifecycle struct {
	terminated []string
	stopped    []string
	failOn     string
}

func (f *fakeLifecycle) Create(context.Context, cloud.CreateSpec) (*cloud.Instance, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLifecycle) Describe(context.Context, string) (*cloud.Instance, error) {
	return nil, cloud.ErrNotFound
}

func (f *fakeLifecycle) Stop(_ context.Context, token string) error {
	if token == f.failOn {
		return errors.New("boom")
	}
	f.stopped = append(f.stopped, token)
	return nil
}

func (f *fakeLifecycle) Terminate(_ context.Context, token string) error {
	if token == f.failOn {
		return errors.New("boom")
	}
	f.terminated = append(f.terminated, token)
	return nil
}

func TestTerminateAll_DeletesEveryNode(t *testing.T) {
	req, err := config.LoadRequest(testRequestFile(t))
	require.NoError(t, err)

	api := &fakeLifecycle{}
	require.NoError(t, terminateAll(context.Background(), api, req))
	assert.Equal(t, []string{"demo-0", "demo-1", "demo-2"}, api.terminated)
}

func TestTerminateAll_StopsOnProviderError(t *testing.T) {
	req, err := config.LoadRequest(testRequestFile(t))
	require.NoError(t, err)

	api := &fakeLifecycle{failOn: "demo-1"}
	err = terminateAll(context.Background(), api, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "demo-1")
	assert.Equal(t, []string{"demo-0"}, api.terminated)
}

func TestTerminate_MissingProviderToken(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "")

	err := Terminate(context.Background(), testRequestFile(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HCLOUD_TOKEN")
}
