package session

import "fmt"

// SaveMode controls when an attribute access is recorded in the pending delta.
type SaveMode string

const (
	// SaveModeOnSetAttribute records an attribute only when it is written.
	// This is the default.
	SaveModeOnSetAttribute SaveMode = "on_set"

	// SaveModeOnGetAttribute records an attribute when it is read or written.
	SaveModeOnGetAttribute SaveMode = "on_get"

	// SaveModeAlways records every known attribute: all attributes present
	// when a session is loaded enter the delta up front, and reads and
	// writes keep them there.
	SaveModeAlways SaveMode = "always"
)

// ParseSaveMode converts a string into a SaveMode.
func ParseSaveMode(s string) (SaveMode, error) {
	switch SaveMode(s) {
	case SaveModeOnSetAttribute, SaveModeOnGetAttribute, SaveModeAlways:
		return SaveMode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSaveMode, s)
}

func (m SaveMode) String() string { return string(m) }

// UnmarshalText implements encoding.TextUnmarshaler so the mode can be
// populated from environment variables.
func (m *SaveMode) UnmarshalText(text []byte) error {
	parsed, err := ParseSaveMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// FlushMode controls when the pending delta is pushed to the store.
type FlushMode string

const (
	// FlushModeOnSave accumulates changes until Repository.Save is called.
	// This is the default.
	FlushModeOnSave FlushMode = "on_save"

	// FlushModeImmediate persists the pending delta after every mutation.
	FlushModeImmediate FlushMode = "immediate"
)

// ParseFlushMode converts a string into a FlushMode.
func ParseFlushMode(s string) (FlushMode, error) {
	switch FlushMode(s) {
	case FlushModeOnSave, FlushModeImmediate:
		return FlushMode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFlushMode, s)
}

func (m FlushMode) String() string { return string(m) }

// UnmarshalText implements encoding.TextUnmarshaler so the mode can be
// populated from environment variables.
func (m *FlushMode) UnmarshalText(text []byte) error {
	parsed, err := ParseFlushMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
