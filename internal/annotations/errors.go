package annotations

import (
	"errors"
	"fmt"
)

// ErrNoRatingFiles reports that a (round, group) directory holds no rating
// files. The group did not take part in that round; Load skips it.
var ErrNoRatingFiles = errors.New("no rating files")

// ErrMalformedInput marks rating files that exist but cannot be trusted. It
// always aborts a load.
var ErrMalformedInput = errors.New("malformed rating input")

// MalformedInputError locates a malformed cell or file. It matches
// ErrMalformedInput under errors.Is.
type MalformedInputError struct {
	Path     string
	Category string
	Row      int // 1-based spreadsheet row, 0 when not row specific
	Err      error
}

func (e *MalformedInputError) Error() string {
	msg := "malformed rating file " + e.Path
	if e.Category != "" {
		msg += fmt.Sprintf(" category %q", e.Category)
	}
	if e.Row > 0 {
		msg += fmt.Sprintf(" row %d", e.Row)
	}
	if e.Err == nil {
		return msg
	}
	return msg + ": " + e.Err.Error()
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

func (e *MalformedInputError) Is(target error) bool { return target == ErrMalformedInput }
