// Package watermark picks the watermark stamp that fits a derivative size
// and loads stamp images through a process-wide decoded-image cache.
package watermark

import (
	"sort"
)

// Asset is a watermark stamp reference and the smallest derivative size it
// is applied to.
type Asset struct {
	Reference string
	Threshold int
}

// DefaultTiers are the stamps shipped in the assets bucket under stamp/.
var DefaultTiers = []Asset{
	{Reference: "stamp/watermark_640.png", Threshold: 640},
	{Reference: "stamp/watermark_960.png", Threshold: 960},
	{Reference: "stamp/watermark_1280.png", Threshold: 1280},
}

// Selector maps a target size to a watermark tier.
type Selector struct {
	tiers []Asset // descending by Threshold
}

// NewSelector builds a Selector from tiers in any order.
func NewSelector(tiers []Asset) *Selector {
	sorted := make([]Asset, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Threshold > sorted[j].Threshold
	})
	return &Selector{tiers: sorted}
}

// Select returns the largest tier whose threshold is at or below sizePx.
// Sizes below the smallest threshold get no watermark.
func (s *Selector) Select(sizePx int) (Asset, bool) {
	if s == nil {
		return Asset{}, false
	}
	for _, t := range s.tiers {
		if sizePx >= t.Threshold {
			return t, true
		}
	}
	return Asset{}, false
}
