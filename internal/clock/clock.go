// Package clock provides an injectable source of time so that snapshot
// timestamps and retry backoff can be exercised deterministically in tests.
package clock

import (
	"time"

	"github.com/benbjohnson/clock"
)

// system is the process-wide default, backed by benbjohnson/clock.
var system = clock.New()

// Source abstracts "what time is it" and "wait this long" for components
// that need to stamp snapshots or schedule retry backoff without sleeping
// in tests.
type Source interface {
	Now() (nowUnixMs int64)
	Sleep(d time.Duration)
}

type systemSource struct{}

func (systemSource) Now() int64 {
	return system.Now().UnixMilli()
}

func (systemSource) Sleep(d time.Duration) {
	system.Sleep(d)
}

// System is the default, wall-clock-backed Source.
var System Source = systemSource{}

// Mock wraps clock.Mock to implement Source for tests.
type Mock struct {
	*clock.Mock
}

// NewMock returns a Source whose time only advances when Add is called.
func NewMock() *Mock {
	return &Mock{clock.NewMock()}
}

// Now implements Source.
func (m *Mock) Now() int64 {
	return m.Mock.Now().UnixMilli()
}

// Sleep implements Source by blocking until a test calls Add/Set to
// advance the mock past the requested duration.
func (m *Mock) Sleep(d time.Duration) {
	m.Mock.Sleep(d)
}
