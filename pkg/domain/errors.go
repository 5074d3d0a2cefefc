package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the document model.
var (
	ErrUnknownType             = errors.New("domain: unknown type")
	ErrEmptyName               = errors.New("domain: empty class name")
	ErrConflictingRegistration = errors.New("domain: conflicting class registration")
	ErrDuplicateID             = errors.New("domain: id already in use")
	ErrDisposed                = errors.New("domain: entity disposed")
	ErrNilEntity               = errors.New("domain: nil entity")
	ErrCycle                   = errors.New("domain: attachment would create a cycle")
	ErrAlreadyAttached         = errors.New("domain: entity already attached to parent")
)

// ErrNotFound is returned when an id does not resolve inside a document.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}
