package build

import "fmt"

// ErrorKind classifies a build failure
type ErrorKind int

const (
	// CompileError means a single source failed to compile. The run goes on.
	CompileError ErrorKind = iota
	// WriteError means an output file could not be written. The run stops.
	WriteError
	// DeleteError means the output directory could not be removed.
	DeleteError
)

// String returns the kind name used in log lines
func (k ErrorKind) String() string {
	switch k {
	case CompileError:
		return "compile error"
	case WriteError:
		return "write error"
	case DeleteError:
		return "delete error"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is a build failure tied to a single path
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
