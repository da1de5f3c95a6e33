// Package dedupe selects at most one feed item per episode key within a
// batch, preferring (JA) releases over (CA) ones.
package dedupe

import (
	"anitorrent/internal/catalog"
	"anitorrent/internal/feed"
)

// Candidate pairs a feed item with its resolved identity.
type Candidate struct {
	Item       feed.Item
	Resolution catalog.Resolution
}

// Key returns the candidate's episode key.
func (c Candidate) Key() catalog.EpisodeKey {
	return c.Resolution.Key
}

// RejectReason explains why a candidate was dropped.
type RejectReason string

const (
	ReasonInvalid   RejectReason = "invalid"
	ReasonDuplicate RejectReason = "duplicate"
)

// Rejected is a dropped candidate with its reason.
type Rejected struct {
	Candidate Candidate
	Reason    RejectReason
}

// Filter deduplicates a batch by episode key. Rules, in order, when two
// candidates share a key: prefer the (JA) variant over (CA), else keep the
// first seen. Candidates without a resolved key, or whose title fails the
// secondary episode-number parse, are invalid rather than duplicates.
func Filter(batch []Candidate) ([]Candidate, []Rejected) {
	kept := make([]Candidate, 0, len(batch))
	rejected := make([]Rejected, 0)
	byKey := make(map[catalog.EpisodeKey]int, len(batch))

	for _, candidate := range batch {
		if candidate.Key().SeriesID <= 0 || candidate.Item.EpisodeNumber() <= 0 {
			rejected = append(rejected, Rejected{Candidate: candidate, Reason: ReasonInvalid})
			continue
		}

		key := candidate.Key()
		existing, seen := byKey[key]
		if !seen {
			byKey[key] = len(kept)
			kept = append(kept, candidate)
			continue
		}

		if candidate.Item.Variant() == feed.VariantJA && kept[existing].Item.Variant() == feed.VariantCA {
			rejected = append(rejected, Rejected{Candidate: kept[existing], Reason: ReasonDuplicate})
			kept[existing] = candidate
			continue
		}
		rejected = append(rejected, Rejected{Candidate: candidate, Reason: ReasonDuplicate})
	}

	return kept, rejected
}
