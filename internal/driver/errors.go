package driver

import "fmt"

type Stage string

const (
	StageLoad      Stage = "load"
	StageConstruct Stage = "construct"
	StageAdvance   Stage = "advance"
	StageQuery     Stage = "query"
	StageGet       Stage = "get structures"
	StageSet       Stage = "set structures"
)

// StageError records which step of the sequence failed.
type StageError struct {
	Stage Stage
	Round int
	Err   error
}

func (e *StageError) Error() string {
	switch e.Stage {
	case StageAdvance, StageQuery:
		return fmt.Sprintf("%s (round %d): %v", e.Stage, e.Round, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
