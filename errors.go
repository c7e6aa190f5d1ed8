package actionsync

import "github.com/pkg/errors"

var (
	// ErrIdentityUnset is returned by waits, sends and acks attempted before
	// SetIdentity. Acting without an identity would misroute messages.
	ErrIdentityUnset = errors.New("actor identity has not been set")
	// ErrIdentityReassigned is returned when SetIdentity is called again with
	// a different identity. An engine's identity is fixed once assigned.
	ErrIdentityReassigned = errors.New("actor identity is already assigned")
	// ErrInvalidIdentity is returned for an empty identity.
	ErrInvalidIdentity = errors.New("actor identity must be a non-empty string")
	// ErrDuplicateWait is returned when a wait is started on a token that
	// another wait in this engine currently owns.
	ErrDuplicateWait = errors.New("a wait is already in progress for this token")
	// ErrEngineClosed is returned by operations on a closed engine.
	ErrEngineClosed = errors.New("engine is closed")
)
