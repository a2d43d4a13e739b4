package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/KorensAI/openclaw-mission-control/config"
)

func TestResolveConfigPath(t *testing.T) {
	home, err := os.UserHomeDir()
	assert.Equal(t, err, nil)

	// empty falls back to the standard location
	assert.Equal(t, config.DefaultPath(), resolveConfigPath(""))

	// a leading ~/ expands, including the usage-string default
	assert.Equal(t, config.DefaultPath(), resolveConfigPath("~/.openclaw/mission-control.yml"))
	assert.Equal(t, filepath.Join(home, "other.yml"), resolveConfigPath("~/other.yml"))
	assert.Equal(t, home, resolveConfigPath("~"))

	// absolute and relative paths pass through
	assert.Equal(t, "/etc/mission-control.yml", resolveConfigPath("/etc/mission-control.yml"))
	assert.Equal(t, "mission-control.yml", resolveConfigPath("mission-control.yml"))
}
