package swarm

import "sort"

// PairCount is one directed agent pair and how often it was walked.
type PairCount struct {
	FromAgent string `json:"from_agent"`
	ToAgent   string `json:"to_agent"`
	Count     int    `json:"count"`
}

// HandoffStats aggregates accepted handoffs across finished executions.
type HandoffStats struct {
	TotalHandoffs int         `json:"total_handoffs"`
	UniquePairs   int         `json:"unique_pairs"`
	MostFrequent  []PairCount `json:"most_frequent,omitempty"`
}

// GetHandoffStats returns aggregate handoff statistics over every
// execution this orchestrator has finished. MostFrequent is capped at
// the top five pairs, ties broken alphabetically for stable output.
func (o *Orchestrator) GetHandoffStats() HandoffStats {
	o.mu.Lock()
	defer o.mu.Unlock()

	counts := make(map[pair]int)
	total := 0
	for _, chain := range o.chains {
		for _, entry := range chain {
			counts[pair{from: entry.FromAgent, to: entry.ToAgent}]++
			total++
		}
	}

	pairs := make([]PairCount, 0, len(counts))
	for p, n := range counts {
		pairs = append(pairs, PairCount{FromAgent: p.from, ToAgent: p.to, Count: n})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Count != pairs[j].Count {
			return pairs[i].Count > pairs[j].Count
		}
		if pairs[i].FromAgent != pairs[j].FromAgent {
			return pairs[i].FromAgent < pairs[j].FromAgent
		}
		return pairs[i].ToAgent < pairs[j].ToAgent
	})

	stats := HandoffStats{
		TotalHandoffs: total,
		UniquePairs:   len(counts),
	}
	if len(pairs) > 5 {
		pairs = pairs[:5]
	}
	stats.MostFrequent = pairs
	return stats
}
