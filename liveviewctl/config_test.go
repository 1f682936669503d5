package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestLoadConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "liveviewctl.yml")
	configYml := `
url: wss://relay.test.commonedit.com
folders:
  - notes
  - specs
`
	err := os.WriteFile(configPath, []byte(configYml), 0644)
	assert.Equal(t, err, nil)

	config, err := LoadConfig(configPath)
	assert.Equal(t, err, nil)
	assert.Equal(t, config.Url, "wss://relay.test.commonedit.com")
	// unset keys keep their defaults
	assert.Equal(t, config.ApiUrl, DefaultApiUrl)
	assert.Equal(t, config.Folders, []string{"notes", "specs"})
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.NotEqual(t, err, nil)
}

func TestWatchFolders(t *testing.T) {
	config := &Config{
		Folders: []string{"notes"},
	}
	folderPaths := watchFolders(config, []string{
		"notes/a.md",
		"specs/b.md",
		"specs/c.md",
		"loose.md",
	})
	assert.Equal(t, folderPaths, []string{"notes", "specs"})
}
