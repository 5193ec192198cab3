package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	id "custodian/pkg/domain"
)

// TestFullyPackedIffAllItemsPacked drives a manifest through a random
// sequence of pack attempts and checks the derived status after every step.
func TestFullyPackedIffAllItemsPacked(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("fully packed iff non-empty and every item packed", prop.ForAll(
		func(itemCount int, packOrder []int) bool {
			actor := id.UserID(uuid.New())
			now := time.Now()
			m, err := NewManifest(id.ManifestID(uuid.New()), id.ElectionID(uuid.New()), "WH", "PS", actor, now)
			if err != nil {
				return false
			}
			assets := make([]id.AssetID, itemCount)
			for i := range assets {
				assets[i] = id.AssetID(uuid.New())
				if err := m.AddItem(assets[i], "", actor, now); err != nil {
					return false
				}
			}
			if err := m.ReadyForPacking(actor, now); err != nil {
				return false
			}
			if !statusMatchesItems(m) {
				return false
			}
			for _, pick := range packOrder {
				if itemCount == 0 {
					break
				}
				_ = m.MarkItemPacked(assets[pick%itemCount], actor, now)
				if !statusMatchesItems(m) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 8),
		gen.SliceOf(gen.IntRange(0, 16)),
	))

	properties.Property("repeat pack never double counts", prop.ForAll(
		func(itemCount int) bool {
			actor := id.UserID(uuid.New())
			now := time.Now()
			m, _ := NewManifest(id.ManifestID(uuid.New()), id.ElectionID(uuid.New()), "WH", "PS", actor, now)
			first := id.AssetID(uuid.New())
			_ = m.AddItem(first, "", actor, now)
			for i := 1; i < itemCount; i++ {
				_ = m.AddItem(id.AssetID(uuid.New()), "", actor, now)
			}
			_ = m.ReadyForPacking(actor, now)
			if err := m.MarkItemPacked(first, actor, now); err != nil {
				return false
			}
			before := PackingStatus(m.Items)
			return m.MarkItemPacked(first, actor, now) != nil && PackingStatus(m.Items) == before
		},
		gen.IntRange(1, 6),
	))

	properties.TestingRun(t)
}

func statusMatchesItems(m *Manifest) bool {
	all := len(m.Items) > 0
	for _, it := range m.Items {
		all = all && it.Packed
	}
	return (m.Status == StatusFullyPacked) == all
}
