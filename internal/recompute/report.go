package recompute

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"pedigreecore/internal/blob"
)

// ReportKey returns the blob key a summary is archived under.
func ReportKey(s Summary) string {
	return fmt.Sprintf("recompute/%s/%s.json", s.FinishedAt.UTC().Format("2006-01-02"), s.RunID)
}

// Archive stores the JSON-encoded summary in store.
func Archive(ctx context.Context, store blob.Store, s Summary) (blob.Info, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode report: %w", err)
	}
	info, err := store.Put(ctx, ReportKey(s), bytes.NewReader(data), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"run_id":  s.RunID,
			"dry_run": strconv.FormatBool(s.DryRun),
		},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("archive report %s: %w", s.RunID, err)
	}
	return info, nil
}

// LoadReport reads an archived summary back.
func LoadReport(ctx context.Context, store blob.Store, key string) (Summary, error) {
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return Summary{}, err
	}
	defer func() { _ = rc.Close() }()
	var s Summary
	if err := json.NewDecoder(rc).Decode(&s); err != nil {
		return Summary{}, fmt.Errorf("decode report %s: %w", key, err)
	}
	return s, nil
}
