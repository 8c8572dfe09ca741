package recompute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pedigreecore/internal/blob"
)

func TestArchiveAndLoadReport(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	summary := Summary{
		RunID:      "run-7",
		DryRun:     true,
		Processed:  3,
		Updated:    1,
		Errors:     1,
		Fallback:   []string{"P"},
		Failures:   []Failure{{ID: "slow", Kind: OutcomeTimeout, Error: "context deadline exceeded"}},
		Deltas:     []Delta{{ID: "X", Old: ptr(12.5), New: 25}},
		StartedAt:  time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, 3, 2, 0, 1, 0, 0, time.UTC),
	}

	info, err := Archive(ctx, store, summary)
	require.NoError(t, err)
	assert.Equal(t, "recompute/2024-03-02/run-7.json", info.Key)
	assert.Equal(t, "true", info.Metadata["dry_run"])
	assert.Equal(t, "application/json", info.ContentType)

	loaded, err := LoadReport(ctx, store, info.Key)
	require.NoError(t, err)
	assert.Equal(t, summary, loaded)

	_, err = Archive(ctx, store, summary)
	require.ErrorIs(t, err, blob.ErrExists)

	_, err = LoadReport(ctx, store, "recompute/missing.json")
	require.True(t, errors.Is(err, blob.ErrNotFound))
}
