package agent

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to test for them; errors.As extracts *Error
// for the captured output.
var (
	ErrEmptyPrompt    = errors.New("prompt cannot be empty")
	ErrBinaryNotFound = errors.New("Cline CLI is not installed or not on PATH. Install it with: npm install -g cline")
	ErrTimeout        = errors.New("cline timed out")
	ErrStuck          = errors.New("cline appears stuck")
)

// Kind classifies an execution failure
type Kind int

const (
	KindExit    Kind = iota // process exited non-zero
	KindTimeout             // deadline passed, process killed
	KindStuck               // interactive prompt detected, process killed
	KindStart               // process could not be started
)

func (k Kind) String() string {
	switch k {
	case KindExit:
		return "exit"
	case KindTimeout:
		return "timeout"
	case KindStuck:
		return "stuck"
	case KindStart:
		return "start"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned when an invocation fails after validation. It carries
// whatever output was captured before the failure.
type Error struct {
	Kind     Kind
	Message  string
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is maps kinds onto the sentinels so callers can write errors.Is(err, ErrTimeout)
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrStuck:
		return e.Kind == KindStuck
	}
	return false
}
