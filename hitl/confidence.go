package hitl

import (
	"context"

	"go.uber.org/zap"

	"github.com/hiveflow/hiveflow/store"
	"github.com/hiveflow/hiveflow/types"
)

// Static confidence priors per category.
var categoryPriors = map[Category]float64{
	CategorySafe:        0.9,
	CategoryModerate:    0.6,
	CategoryDestructive: 0.3,
	CategoryCritical:    0.1,
}

// Environment multipliers. Production strictly lowers confidence relative
// to an otherwise-identical development context.
var environmentFactors = map[string]float64{
	"production":  0.7,
	"staging":     0.9,
	"development": 1.0,
}

// CalculateConfidence scores how safe it is to proceed without human
// confirmation. Pure over the current store state: identical inputs with
// no intervening RecordDecision yield the identical value.
func (g *Gate) CalculateConfidence(ctx context.Context, action Action, extra map[string]any) float64 {
	category := ClassifyAction(action)
	confidence := categoryPriors[category]

	if learned, ok := g.learnedConfidence(ctx, action.Type); ok {
		// Blend evenly: history should be able to pull a prior in
		// either direction without ever fully overriding it.
		confidence = 0.5*confidence + 0.5*learned
	}

	if factor, ok := environmentFactors[environmentOf(action, extra)]; ok {
		confidence *= factor
	}

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// GetLearnedConfidence returns the decayed approve/reject ratio for an
// action type, or 0.5 when no history exists.
func (g *Gate) GetLearnedConfidence(ctx context.Context, actionType string) float64 {
	if learned, ok := g.learnedConfidence(ctx, actionType); ok {
		return learned
	}
	return 0.5
}

// learnedConfidence computes the decay-weighted approval ratio over the
// trailing decision window. The most recent decision carries full weight;
// each older one is down-weighted by DecayFactor.
func (g *Gate) learnedConfidence(ctx context.Context, actionType string) (float64, bool) {
	recs, err := g.store.Query(ctx, store.Filter{
		Kind:  KindActionDecision,
		Key:   actionType,
		Limit: g.config.HistoryWindow,
	})
	if err != nil {
		g.logger.Warn("learning store unavailable, using static confidence",
			zap.String("action_type", actionType), zap.Error(err))
		return 0, false
	}

	var weightedApprovals, totalWeight float64
	weight := 1.0
	for i := len(recs) - 1; i >= 0; i-- { // newest first
		var record types.ActionRecord
		if err := recs[i].Decode(&record); err != nil || record.Approved == nil {
			continue
		}
		totalWeight += weight
		if *record.Approved {
			weightedApprovals += weight
		}
		weight *= g.config.DecayFactor
	}

	if totalWeight == 0 {
		return 0, false
	}
	return weightedApprovals / totalWeight, true
}

func environmentOf(action Action, extra map[string]any) string {
	if action.Environment != "" {
		return action.Environment
	}
	if env, ok := extra["environment"].(string); ok {
		return env
	}
	return ""
}
