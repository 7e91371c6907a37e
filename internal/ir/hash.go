package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainCommit = "termgraph/commit/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CommitID computes the content-addressed ID of a commit record from every
// field except ID itself. The ID is stable across restarts and replays.
func CommitID(r CommitRecord) (string, error) {
	stamps := make([]any, len(r.Stamps))
	for i, s := range r.Stamps {
		stamps[i] = s
	}
	nids := make([]any, len(r.Nids))
	for i, n := range r.Nids {
		nids[i] = n
	}

	canonical, err := MarshalCanonical(map[string]any{
		"sequence": r.Sequence,
		"time":     r.Time,
		"author":   r.Author,
		"comment":  r.Comment,
		"stamps":   stamps,
		"nids":     nids,
	})
	if err != nil {
		return "", fmt.Errorf("CommitID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCommit, canonical), nil
}

// MustCommitID is like CommitID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustCommitID(r CommitRecord) string {
	id, err := CommitID(r)
	if err != nil {
		panic(err)
	}
	return id
}
