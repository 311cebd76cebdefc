package service

import (
	"errors"
	"fmt"
)

var (
	ErrNilStore           = errors.New("job store is required")
	ErrStepNotFound       = errors.New("step not found")
	ErrDanglingStepTarget = errors.New("step transition targets a step that does not exist")
	ErrPermissionDenied   = errors.New("not allowed to modify this job")
	ErrSessionNotFound    = errors.New("edit session not found")
	ErrReadOnly           = errors.New("job definition is read-only")

	ErrJobNameRequired  = errors.New("job name is required")
	ErrSessionNotLoaded = errors.New("edit session is not loaded")

	errNilGraph = errors.New("step graph is required")
)

// ArgumentError is returned by constructors given a missing collaborator
type ArgumentError struct {
	Name string
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %v", e.Name, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// NameConflictError reports a step name used twice in the same job
type NameConflictError struct {
	Name string
}

func (e *NameConflictError) Error() string {
	return fmt.Sprintf("a step named %q already exists in this job", e.Name)
}

// RemoteOperation names the phase of a failed job store call
type RemoteOperation string

const (
	OpCreate          RemoteOperation = "create"
	OpAlter           RemoteOperation = "alter"
	OpDelete          RemoteOperation = "delete"
	OpAttach          RemoteOperation = "attach"
	OpDetach          RemoteOperation = "detach"
	OpLookup          RemoteOperation = "lookup"
	OpServerVersion   RemoteOperation = "server version"
	OpPermissionCheck RemoteOperation = "permission check"
)

// RemoteOperationError wraps a job store failure with the phase and entity it hit
type RemoteOperationError struct {
	Op     RemoteOperation
	Entity string
	Key    string
	Err    error
}

func (e *RemoteOperationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s %s failed: %v", e.Op, e.Entity, e.Err)
	}
	return fmt.Sprintf("%s %s %s failed: %v", e.Op, e.Entity, e.Key, e.Err)
}

func (e *RemoteOperationError) Unwrap() error { return e.Err }

func remoteError(op RemoteOperation, entity, key string, err error) error {
	return &RemoteOperationError{Op: op, Entity: entity, Key: key, Err: err}
}
