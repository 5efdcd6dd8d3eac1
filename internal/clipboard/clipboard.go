// Package clipboard provides the clipboards the reference search can
// rendezvous through.
package clipboard

import (
	"context"
	"errors"
	"sync"

	"github.com/atotto/clipboard"
)

// ErrUnsupported is returned by System when no clipboard utility is
// available on this machine.
var ErrUnsupported = errors.New("system clipboard is not supported")

type Clipboard interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, text string) error
}

// Memory is a process-local clipboard.
type Memory struct {
	mu   sync.Mutex
	text string
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Read(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

func (m *Memory) Write(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	return nil
}

// System is the desktop clipboard.
type System struct{}

func NewSystem() *System {
	return &System{}
}

func (System) Read(_ context.Context) (string, error) {
	if clipboard.Unsupported {
		return "", ErrUnsupported
	}
	return clipboard.ReadAll()
}

func (System) Write(_ context.Context, text string) error {
	if clipboard.Unsupported {
		return ErrUnsupported
	}
	return clipboard.WriteAll(text)
}

// New returns the clipboard for a configured backend name: "system" or
// anything else for the in-memory one.
func New(backend string) Clipboard {
	if backend == "system" && !clipboard.Unsupported {
		return NewSystem()
	}
	return NewMemory()
}
