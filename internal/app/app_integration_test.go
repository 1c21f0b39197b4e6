//go:build integration

package app

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/docgraph/internal/config"
	"github.com/agenthands/docgraph/internal/core/model"
)

const sample = `Docker is a container platform written in Go.
Kubernetes orchestrates Docker containers and is also written in Go.
Google created Go and donated Kubernetes to the Cloud Native Computing Foundation.`

func TestFullFlow(t *testing.T) {
	_ = godotenv.Load("../../.env")
	if os.Getenv("MEMGRAPH_URI") == "" {
		t.Skip("Skipping integration test: MEMGRAPH_URI not set")
	}

	cfg := config.Default()
	cfg.ApplyEnv()
	cfg.Pipeline.CacheDir = t.TempDir()
	cfg.Usage.DBPath = t.TempDir()
	cfg.Pipeline.ChunkSize = 20
	cfg.Pipeline.ChunkOverlap = 5
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	defer a.Close(context.Background())

	doc := model.Document{ID: model.NewDocumentID(), Filename: "sample.txt", FileSize: int64(len(sample)), UploadedAt: time.Now().UTC()}
	first, err := a.Service.Run(ctx, doc, []byte(sample))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(first.Chunks), 2)
	assert.GreaterOrEqual(t, len(first.Graph.Nodes), 2)

	second, err := a.Service.Run(ctx, doc, []byte(sample))
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, len(first.Graph.Nodes), len(second.Graph.Nodes))

	records, err := a.Ledger.ListByDocument(doc.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, records)
}
