// Package merger combines per-index query results. Catalog queries have
// AND semantics: a document matches when every queried index matches it.
package merger

import (
	"slices"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/index"
	"github.com/RoaringBitmap/roaring"
)

// Partial is the result of one index.
type Partial struct {
	Index string
	Docs  index.PostingSet
}

// Merge intersects the partial results, smallest first, and returns the
// sorted names of the indexes that took part.
func Merge(partials []Partial) (index.PostingSet, []string) {
	names := make([]string, 0, len(partials))
	for _, p := range partials {
		names = append(names, p.Index)
	}
	slices.Sort(names)
	names = slices.Compact(names)

	if len(partials) == 0 {
		return index.PostingSet{}, names
	}
	sorted := slices.Clone(partials)
	slices.SortFunc(sorted, func(a, b Partial) int {
		return a.Docs.Len() - b.Docs.Len()
	})
	if sorted[0].Docs.IsEmpty() {
		return index.PostingSet{}, names
	}
	if len(sorted) == 1 {
		return sorted[0].Docs.Clone(), names
	}
	bms := make([]*roaring.Bitmap, 0, len(sorted))
	for _, p := range sorted {
		bms = append(bms, p.Docs.Bitmap())
	}
	return index.FromBitmap(roaring.FastAnd(bms...)), names
}
