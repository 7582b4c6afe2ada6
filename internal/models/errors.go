package models

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is the parent of every error caused by the caller's input.
var ErrInvalidInput = errors.New("invalid input")

var (
	ErrNoFile          = fmt.Errorf("%w: no file provided", ErrInvalidInput)
	ErrUnsupportedType = fmt.Errorf("%w: unsupported file type", ErrInvalidInput)
	ErrFileTooLarge    = fmt.Errorf("%w: file too large", ErrInvalidInput)
	ErrInvalidLanguage = fmt.Errorf("%w: unsupported language", ErrInvalidInput)
)

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrTaskNotCompleted = errors.New("task is not completed")
	ErrNoDocuments      = errors.New("no files were processed successfully")
	ErrTaskFinished     = errors.New("task already finished")
	ErrObjectNotFound   = errors.New("object not found")
)

// StageError records which pipeline stage failed.
type StageError struct {
	Stage string
	File  string
	Err   error
}

func (e *StageError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Stage, e.File, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// IsInputError reports whether err should be answered with a client error.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
