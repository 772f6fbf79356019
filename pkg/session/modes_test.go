package session_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionstore/pkg/session"
)

func TestParseSaveMode(t *testing.T) {
	t.Parallel()

	for _, valid := range []string{"on_set", "on_get", "always"} {
		mode, err := session.ParseSaveMode(valid)
		require.NoError(t, err)
		require.Equal(t, valid, mode.String())
	}

	_, err := session.ParseSaveMode("eager")
	require.ErrorIs(t, err, session.ErrInvalidSaveMode)

	_, err = session.ParseSaveMode("")
	require.ErrorIs(t, err, session.ErrInvalidSaveMode)

	// Mode names are case-sensitive.
	_, err = session.ParseSaveMode("ALWAYS")
	require.ErrorIs(t, err, session.ErrInvalidSaveMode)
}

func TestParseFlushMode(t *testing.T) {
	t.Parallel()

	for _, valid := range []string{"on_save", "immediate"} {
		mode, err := session.ParseFlushMode(valid)
		require.NoError(t, err)
		require.Equal(t, valid, mode.String())
	}

	_, err := session.ParseFlushMode("lazy")
	require.ErrorIs(t, err, session.ErrInvalidFlushMode)
}

func TestSaveMode_UnmarshalText(t *testing.T) {
	t.Parallel()

	var mode session.SaveMode
	require.NoError(t, mode.UnmarshalText([]byte("on_get")))
	require.Equal(t, session.SaveModeOnGetAttribute, mode)

	require.Error(t, mode.UnmarshalText([]byte("bogus")))
}

func TestFlushMode_UnmarshalText(t *testing.T) {
	t.Parallel()

	var mode session.FlushMode
	require.NoError(t, mode.UnmarshalText([]byte("immediate")))
	require.Equal(t, session.FlushModeImmediate, mode)

	require.Error(t, mode.UnmarshalText([]byte("bogus")))
}
