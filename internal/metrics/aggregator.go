package metrics

import (
	"context"
	"errors"
	"sort"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/storage"
)

// ErrNoResults is returned when no position results are available for aggregation.
var ErrNoResults = errors.New("no position results available for aggregation")

// Aggregator computes strategy aggregates from position results.
type Aggregator struct {
	results    storage.PositionResultStore
	aggregates storage.StrategyAggregateStore
}

// NewAggregator creates a new metrics aggregator. aggStore may be nil when
// aggregates are only computed, never stored.
func NewAggregator(resultStore storage.PositionResultStore, aggStore storage.StrategyAggregateStore) *Aggregator {
	return &Aggregator{
		results:    resultStore,
		aggregates: aggStore,
	}
}

// ComputeAggregate computes the aggregate for (run_id, strategy_id, venue_id).
// Returns ErrNoResults if no results match.
func (a *Aggregator) ComputeAggregate(ctx context.Context, runID, strategyID, venueID string) (*domain.StrategyAggregate, error) {
	results, err := a.results.GetByStrategyVenue(ctx, runID, strategyID, venueID)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	agg := computeFromResults(results)
	agg.RunID = runID
	agg.StrategyID = strategyID
	agg.VenueID = venueID
	return agg, nil
}

// ComputeAndStore computes and persists the aggregate.
// Returns storage.ErrDuplicateKey if aggregate already exists (append-only).
func (a *Aggregator) ComputeAndStore(ctx context.Context, runID, strategyID, venueID string) (*domain.StrategyAggregate, error) {
	agg, err := a.ComputeAggregate(ctx, runID, strategyID, venueID)
	if err != nil {
		return nil, err
	}

	if a.aggregates != nil {
		if err := a.aggregates.Insert(ctx, agg); err != nil {
			return nil, err
		}
	}

	return agg, nil
}

// ComputeRun aggregates every (strategy_id, venue_id) group of a run and
// persists the batch atomically.
func (a *Aggregator) ComputeRun(ctx context.Context, runID string) ([]*domain.StrategyAggregate, error) {
	results, err := a.results.GetByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	aggs := Aggregate(runID, results)
	if a.aggregates != nil {
		if err := a.aggregates.InsertBulk(ctx, aggs); err != nil {
			return nil, err
		}
	}
	return aggs, nil
}

// Aggregate groups results by (strategy_id, venue_id) and computes one
// aggregate per group, ordered by strategy then venue.
func Aggregate(runID string, results []*domain.PositionResult) []*domain.StrategyAggregate {
	type key struct{ strategy, venue string }
	groups := make(map[key][]*domain.PositionResult)
	for _, r := range results {
		k := key{r.StrategyID, r.VenueID}
		groups[k] = append(groups[k], r)
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].strategy != keys[j].strategy {
			return keys[i].strategy < keys[j].strategy
		}
		return keys[i].venue < keys[j].venue
	})

	aggs := make([]*domain.StrategyAggregate, 0, len(keys))
	for _, k := range keys {
		agg := computeFromResults(groups[k])
		agg.RunID = runID
		agg.StrategyID = k.strategy
		agg.VenueID = k.venue
		aggs = append(aggs, agg)
	}
	return aggs
}
