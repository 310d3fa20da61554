// Package retry implements the retry loops used by every bootstrap
// component. Components never hand-roll sleep loops; they describe their
// budget through options and let Do drive the attempts.
package retry
