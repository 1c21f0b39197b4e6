package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "docgraph.log")
	l, err := New(Params{Path: path, Level: "debug", MaxSizeMB: 1})
	require.NoError(t, err)

	l.Info("[Pipeline] phase", "document_id", "doc-1", "phase", "chunking")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"[Pipeline] phase"`)
	assert.Contains(t, string(data), `"document_id":"doc-1"`)
}

func TestRejectsBadLevel(t *testing.T) {
	_, err := New(Params{Path: filepath.Join(t.TempDir(), "x.log"), Level: "loud"})
	assert.Error(t, err)
}
