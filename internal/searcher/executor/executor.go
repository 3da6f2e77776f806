// Package executor evaluates query plans against index engines with
// ordered-set algebra.
package executor

import (
	"slices"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/temporal"
	"github.com/samber/mo"
)

// Source is the read side of an index. indexer.Engine implements it.
type Source interface {
	Name() string
	DocumentsFor(key temporal.Key) (index.PostingSet, bool)
	UnionRange(lo, hi mo.Option[temporal.Key]) index.PostingSet
}

// Result is the matching documents and the indexes that produced them.
type Result struct {
	DocumentIDs index.PostingSet `json:"document_ids"`
	Indexes     []string         `json:"indexes"`
	Total       int              `json:"total"`
}

// Evaluate runs plan against src. Range mode unions every document set
// between the requested bounds and ignores candidates. Point mode
// intersects each key's documents with candidates, when given, and
// combines them with the plan operator. No keys yields an empty result.
func Evaluate(src Source, plan *parser.QueryPlan, candidates mo.Option[index.PostingSet]) index.PostingSet {
	if len(plan.Keys) == 0 {
		return index.PostingSet{}
	}
	if plan.Mode == parser.ModeRange {
		lo, hi := mo.None[temporal.Key](), mo.None[temporal.Key]()
		if plan.Min {
			lo = mo.Some(slices.Min(plan.Keys))
		}
		if plan.Max {
			hi = mo.Some(slices.Max(plan.Keys))
		}
		return src.UnionRange(lo, hi)
	}

	var result index.PostingSet
	for i, key := range plan.Keys {
		docs, _ := src.DocumentsFor(key)
		if cand, ok := candidates.Get(); ok {
			docs = index.Intersection(docs, cand)
		}
		switch {
		case i == 0:
			result = docs
		case plan.Operator == parser.OperatorOr:
			result = index.Union(result, docs)
		default:
			result = index.Intersection(result, docs)
		}
		if plan.Operator == parser.OperatorAnd && result.IsEmpty() {
			break
		}
	}
	return result
}
