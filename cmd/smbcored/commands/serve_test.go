package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateDirectory_PrefersXDGStateHome(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")
	dir, err := stateDirectory()
	assert.NoError(t, err)
	assert.Equal(t, "/tmp/xdg-state/smbcored", dir)
}

func TestStateDirectory_FallsBackToHomeDir(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "")
	dir, err := stateDirectory()
	assert.NoError(t, err)
	assert.Contains(t, dir, ".local/state/smbcored")
}
