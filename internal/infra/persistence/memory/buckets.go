package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by the snapshotting SQL backends. Each bucket holds the
// JSON encoding of one entity map.
const (
	BucketOrganisms       = "organisms"
	BucketPublicOrganisms = "public_organisms"
	BucketBreeding        = "breeding"
)

// Buckets lists every persisted bucket in write order.
var Buckets = []string{BucketOrganisms, BucketPublicOrganisms, BucketBreeding}

func (s *Snapshot) bucketTarget(bucket string) (any, bool) {
	switch bucket {
	case BucketOrganisms:
		return &s.Organisms, true
	case BucketPublicOrganisms:
		return &s.PublicOrganisms, true
	case BucketBreeding:
		return &s.Breeding, true
	default:
		return nil, false
	}
}

// EncodeBucket returns the JSON payload stored for bucket.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	target, ok := s.bucketTarget(bucket)
	if !ok {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	data, err := json.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", bucket, err)
	}
	return data, nil
}

// DecodeBucket loads payload into the matching map. Unknown buckets are
// ignored so older databases with retired buckets still load.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	target, ok := s.bucketTarget(bucket)
	if !ok {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
