package store

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"cmon/pkg/models"
)

// LabelSetKey identifies one series within a family.
type LabelSetKey string

// SingletonKey is the key of the only instance of an unlabeled family.
const SingletonKey LabelSetKey = "singleton"

// keySize is the digest prefix length in bytes (128 bits).
const keySize = 16

// KeyFor returns the identity of a label set. Labels are sorted by key
// before hashing, so the same label content in a different order maps to
// the same series.
func KeyFor(labels []models.Label) LabelSetKey {
	if len(labels) == 0 {
		return SingletonKey
	}

	sorted := make([]models.Label, len(labels))
	copy(sorted, labels)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	h := sha256.New()
	for _, l := range sorted {
		h.Write([]byte(l.Key))
		h.Write([]byte{0})
		h.Write([]byte(l.Value))
		h.Write([]byte{0})
	}

	return LabelSetKey(hex.EncodeToString(h.Sum(nil)[:keySize]))
}
