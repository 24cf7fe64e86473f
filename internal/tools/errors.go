package tools

import (
	"errors"
	"fmt"
)

var (
	ErrToolNotFound   = errors.New("tool not found")
	ErrPromptNotFound = errors.New("prompt not found")
	ErrMissingInput   = errors.New("missing input")
)

// ToolNotFoundError names the tool id that has no definition.
type ToolNotFoundError struct {
	ID string
}

func (e *ToolNotFoundError) Error() string { return fmt.Sprintf("tool not found: %s", e.ID) }
func (e *ToolNotFoundError) Unwrap() error { return ErrToolNotFound }

// PromptNotFoundError names the resolved template filename.
type PromptNotFoundError struct {
	Tool string
	File string
}

func (e *PromptNotFoundError) Error() string {
	return fmt.Sprintf("prompt file not found: %s (tool %s)", e.File, e.Tool)
}
func (e *PromptNotFoundError) Unwrap() error { return ErrPromptNotFound }

// MissingInputError names the first required input that was absent.
type MissingInputError struct {
	Name string
}

func (e *MissingInputError) Error() string { return fmt.Sprintf("missing input: %s", e.Name) }
func (e *MissingInputError) Unwrap() error { return ErrMissingInput }

// IsDefinitionError reports whether err came from definition resolution
// rather than from a provider.
func IsDefinitionError(err error) bool {
	return errors.Is(err, ErrToolNotFound) || errors.Is(err, ErrPromptNotFound) || errors.Is(err, ErrMissingInput)
}
