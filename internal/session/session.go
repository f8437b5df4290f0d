// Package session defines the contract between the driver and a simulation
// engine. The driver only ever talks to a Session; what happens inside
// Advance is the engine's business.
package session

import (
	"context"
	"errors"

	"github.com/san-kum/remdrive/internal/structure"
)

var (
	// ErrInvalidConfig means the configuration text was rejected.
	ErrInvalidConfig = errors.New("session: invalid configuration")

	// ErrInvalidSteps means Advance was asked for a non-positive step count.
	ErrInvalidSteps = errors.New("session: invalid step count")

	// ErrIntegration means the dynamics produced a non-finite state.
	ErrIntegration = errors.New("session: integration failed")

	// ErrUnknownProperty means Property was asked for a name it does not know.
	ErrUnknownProperty = errors.New("session: unknown property")

	// ErrShapeMismatch means SetStructures received structures that do not
	// fit the session's replicas.
	ErrShapeMismatch = errors.New("session: structure shape mismatch")
)

// Session is a stateful handle to a running simulation. A Session is owned by
// one goroutine; implementations need not be safe for concurrent use.
type Session interface {
	// Advance moves every replica forward by steps integration steps.
	Advance(ctx context.Context, steps int) error

	// Property reads a named scalar from the current state.
	Property(name string) (float64, error)

	// Structures returns a snapshot of the per-replica structures in replica
	// order. Changing the returned values does not affect the session.
	Structures() ([]structure.Structure, error)

	// SetStructures replaces the per-replica structures, in order.
	SetStructures(structures []structure.Structure) error
}

// Constructor builds a Session from configuration text.
type Constructor func(configText string) (Session, error)

// PropertyLister is implemented by sessions that can enumerate their
// property names.
type PropertyLister interface {
	PropertyNames() []string
}

// Closer is implemented by sessions holding external resources.
type Closer interface {
	Close() error
}

// Close releases s if it holds resources.
func Close(s Session) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}
