package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/temporal"
	apperrors "github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/errors"
	"github.com/samber/mo"
	"golang.org/x/sync/errgroup"
)

// IndexSource is a Source that also knows the zone its keys are read in.
type IndexSource interface {
	Source
	Normalizer() *temporal.Normalizer
}

// Resolver looks up an index by name.
type Resolver func(name string) (IndexSource, error)

// Planned is a plan bound to the index it runs against.
type Planned struct {
	Source IndexSource
	Plan   *parser.QueryPlan
}

// MultiExecutor fans a request out over several indexes and intersects the
// results.
type MultiExecutor struct {
	resolve  Resolver
	defaults []string
	maxKeys  int
	logger   *slog.Logger
}

// NewMulti queries the defaults when a request names no index. maxKeys of
// zero means unlimited.
func NewMulti(resolve Resolver, defaults []string, maxKeys int) *MultiExecutor {
	return &MultiExecutor{
		resolve:  resolve,
		defaults: defaults,
		maxKeys:  maxKeys,
		logger:   slog.Default().With("component", "multi-executor"),
	}
}

// Plan resolves the target indexes and parses the request once per index.
func (me *MultiExecutor) Plan(req parser.Request) ([]Planned, error) {
	if me.maxKeys > 0 && len(req.Keys) > me.maxKeys {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "at most %d query keys are allowed", me.maxKeys)
	}
	names := req.Indexes
	if len(names) == 0 {
		names = me.defaults
	}
	if len(names) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "no index to query")
	}
	planned := make([]Planned, 0, len(names))
	for _, name := range names {
		src, err := me.resolve(name)
		if err != nil {
			return nil, err
		}
		plan, err := parser.Parse(name, req, src.Normalizer())
		if err != nil {
			return nil, err
		}
		planned = append(planned, Planned{Source: src, Plan: plan})
	}
	return planned, nil
}

// Run evaluates every plan concurrently and merges the results.
func (me *MultiExecutor) Run(ctx context.Context, planned []Planned, candidates mo.Option[index.PostingSet]) (*Result, error) {
	partials := make([]merger.Partial, len(planned))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range planned {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("query on %s: %w", p.Source.Name(), err)
			}
			partials[i] = merger.Partial{
				Index: p.Source.Name(),
				Docs:  Evaluate(p.Source, p.Plan, candidates),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	docs, names := merger.Merge(partials)
	me.logger.Debug("catalog query executed",
		"indexes", names,
		"results", docs.Len(),
	)
	return &Result{DocumentIDs: docs, Indexes: names, Total: docs.Len()}, nil
}

// Execute plans and runs req.
func (me *MultiExecutor) Execute(ctx context.Context, req parser.Request) (*Result, error) {
	planned, err := me.Plan(req)
	if err != nil {
		return nil, err
	}
	return me.Run(ctx, planned, Candidates(req))
}

// Candidates returns the request's candidate set, if it carries one.
func Candidates(req parser.Request) mo.Option[index.PostingSet] {
	if req.Candidates == nil {
		return mo.None[index.PostingSet]()
	}
	return mo.Some(index.NewPostingSet(req.Candidates...))
}
