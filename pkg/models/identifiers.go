package models

import "github.com/google/uuid"

// OperationID is the universally unique 128-bit identifier assigned to
// an Operation at cell-adoption time. It is stable across
// edits that preserve the cell's name and regenerated when a new named
// cell is introduced.
type OperationID uuid.UUID

// NewOperationID mints a fresh, time-ordered OperationID.
func NewOperationID() OperationID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return OperationID(id)
}

func (id OperationID) String() string { return uuid.UUID(id).String() }

// IsZero reports whether id is the zero value (unset).
func (id OperationID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

// ParseOperationID parses a string-formatted OperationID.
func ParseOperationID(s string) (OperationID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return OperationID{}, err
	}
	return OperationID(id), nil
}
