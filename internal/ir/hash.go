package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix leaves
// room for a future algorithm change.
const (
	DomainSnapshot = "genmerge/snapshot/v1"
	DomainRequest  = "genmerge/request/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotHash computes the content hash of a model tree.
// Two trees hash equal iff their canonical encodings are byte-identical, so
// this is the check used for run determinism and replay.
func SnapshotHash(doc ElementDoc) (string, error) {
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// RequestID computes the id of the seq-th request of a run.
func RequestID(runID string, seq int64, req RequestDoc) (string, error) {
	canonical, err := MarshalCanonical(struct {
		RunID   string     `json:"run_id"`
		Seq     int64      `json:"seq"`
		Request RequestDoc `json:"request"`
	}{runID, seq, req})
	if err != nil {
		return "", fmt.Errorf("RequestID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRequest, canonical), nil
}

// MustSnapshotHash is like SnapshotHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustSnapshotHash(doc ElementDoc) string {
	h, err := SnapshotHash(doc)
	if err != nil {
		panic(err)
	}
	return h
}

// MustRequestID is like RequestID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRequestID(runID string, seq int64, req RequestDoc) string {
	id, err := RequestID(runID, seq, req)
	if err != nil {
		panic(err)
	}
	return id
}
