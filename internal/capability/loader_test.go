package capability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capabilities.yaml")
	content := `capabilities:
  - id: tax_preparation
    category: tax
    enabled: false
    automation_level: 0.8
    accuracy: 0.95
  - id: translation
    category: communication
    enabled: true
    automation_level: 0.7
    accuracy: 0.8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	caps, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, caps, 2)
	assert.Equal(t, "tax_preparation", caps[0].ID)
	assert.False(t, caps[0].Enabled)
	assert.Equal(t, 0.95, caps[0].Accuracy)
	assert.Equal(t, "translation", caps[1].ID)
}

func TestLoadFileMissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capabilities.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capabilities:\n  - category: tax\n"), 0644))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
