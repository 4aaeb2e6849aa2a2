package provision

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// APIInternalMessage is what billing frontends show for any failed operation.
const APIInternalMessage = "An internal error occurred, or the server did not respond to the request."

var (
	// ErrAPIInternal matches every command, validation and partial failure.
	ErrAPIInternal = errors.New("vesta api or internal error")

	// ErrRejected means the panel answered but declined the command.
	ErrRejected = errors.New("rejected by panel")

	// ErrUsernameExhausted means every probed username already exists.
	ErrUsernameExhausted = errors.New("no free username candidate")
)

// CommandError describes a failed panel command. Err is either a
// *vesta.TransportError or ErrRejected.
type CommandError struct {
	Host    string
	Command string
	Body    string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s on %s: %v: %q", e.Command, e.Host, e.Err, e.Body)
	}
	return fmt.Sprintf("%s on %s: %v", e.Command, e.Host, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

func (e *CommandError) Is(target error) bool { return target == ErrAPIInternal }

// ValidationError lists rejected fields. It is raised before any command is sent.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrAPIInternal }

// PartialError reports a create workflow that failed after the account existed.
type PartialError struct {
	Username    string
	Completed   []string
	RolledBack  bool
	RollbackErr error
	Err         error
}

func (e *PartialError) Error() string {
	state := "left in place"
	switch {
	case e.RolledBack:
		state = "rolled back"
	case e.RollbackErr != nil:
		state = fmt.Sprintf("rollback failed: %v", e.RollbackErr)
	}
	return fmt.Sprintf("account %s partially provisioned after %s (%s): %v",
		e.Username, strings.Join(e.Completed, ", "), state, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

type fieldErrors map[string]string

func (f fieldErrors) check(field string, err error) {
	if err != nil {
		if _, seen := f[field]; !seen {
			f[field] = err.Error()
		}
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}
