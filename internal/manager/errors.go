package manager

import (
	"errors"
	"fmt"

	"kanban/internal/models"
)

var (
	// ErrNullInput is returned when a required item is nil.
	ErrNullInput = errors.New("object cannot be nil")
	// ErrMissingParent is returned when a subtask, or an epic removal,
	// references an epic that does not exist.
	ErrMissingParent = errors.New("parent epic not found")
	// ErrTimeConflict matches every *ConflictError.
	ErrTimeConflict = errors.New("time intersection found")
	// ErrParentChanged is returned when an update tries to move a subtask
	// to a different epic.
	ErrParentChanged = errors.New("subtask epic cannot be changed")
	// ErrInvalidDuration is returned for a negative duration or one whose
	// end time cannot be represented.
	ErrInvalidDuration = models.ErrInvalidDuration
)

// ConflictError names the stored item whose interval overlaps the rejected one.
type ConflictError struct {
	ID int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("time intersection found with task. id: %d", e.ID)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrTimeConflict
}

// ConflictID extracts the conflicting id from err.
func ConflictID(err error) (int64, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.ID, true
	}
	return 0, false
}
