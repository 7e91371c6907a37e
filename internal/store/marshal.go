package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/termgraph/internal/ir"
)

// marshalStamps converts stamp sequences to canonical JSON TEXT for storage.
func marshalStamps(stamps []ir.StampSeq) (string, error) {
	arr := make([]any, len(stamps))
	for i, s := range stamps {
		arr[i] = s
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal stamps: %w", err)
	}
	return string(data), nil
}

// marshalNids converts nids to canonical JSON TEXT for storage.
func marshalNids(nids []ir.Nid) (string, error) {
	arr := make([]any, len(nids))
	for i, n := range nids {
		arr[i] = n
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal nids: %w", err)
	}
	return string(data), nil
}

// unmarshalStamps parses a JSON array of stamp sequences.
func unmarshalStamps(data string) ([]ir.StampSeq, error) {
	stamps := []ir.StampSeq{}
	if data == "" || data == "[]" {
		return stamps, nil
	}
	if err := json.Unmarshal([]byte(data), &stamps); err != nil {
		return nil, fmt.Errorf("unmarshal stamps: %w", err)
	}
	return stamps, nil
}

// unmarshalNids parses a JSON array of nids.
func unmarshalNids(data string) ([]ir.Nid, error) {
	nids := []ir.Nid{}
	if data == "" || data == "[]" {
		return nids, nil
	}
	if err := json.Unmarshal([]byte(data), &nids); err != nil {
		return nil, fmt.Errorf("unmarshal nids: %w", err)
	}
	return nids, nil
}
