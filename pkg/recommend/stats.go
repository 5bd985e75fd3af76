package recommend

import (
	"time"

	"github.com/vanderheijden86/aios/pkg/model"
)

// KindStats breaks statistics down by rule type.
type KindStats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Accepted int `json:"accepted"`
	Declined int `json:"declined"`
}

// Statistics summarizes how recommendations were received.
type Statistics struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Accepted int `json:"accepted"`
	Declined int `json:"declined"`

	// AcceptanceRate is accepted / (accepted + declined), 0 when nothing was resolved.
	AcceptanceRate      float64       `json:"acceptance_rate"`
	AvgAcceptedPriority float64       `json:"avg_accepted_priority"`
	AvgDeclinedPriority float64       `json:"avg_declined_priority"`
	AvgTimeToResolve    time.Duration `json:"avg_time_to_resolve"`

	ByKind map[model.RecommendationKind]KindStats `json:"by_kind"`
}

// ComputeStatistics aggregates recs.
func ComputeStatistics(recs []model.Recommendation) Statistics {
	st := Statistics{ByKind: make(map[model.RecommendationKind]KindStats)}
	var resolveAvg float64
	resolvedCount := 0

	for _, r := range recs {
		st.Total++
		ks := st.ByKind[r.Kind]
		ks.Total++

		switch r.Status {
		case model.StatusActive:
			st.Active++
			ks.Active++
		case model.StatusAccepted:
			st.Accepted++
			ks.Accepted++
			st.AvgAcceptedPriority = updateRunningAverage(st.AvgAcceptedPriority, float64(r.Priority), st.Accepted)
		case model.StatusDeclined:
			st.Declined++
			ks.Declined++
			st.AvgDeclinedPriority = updateRunningAverage(st.AvgDeclinedPriority, float64(r.Priority), st.Declined)
		}
		if r.Status.IsTerminal() && r.ResolvedAt != nil {
			resolvedCount++
			resolveAvg = updateRunningAverage(resolveAvg, float64(r.ResolvedAt.Sub(r.CreatedAt)), resolvedCount)
		}
		st.ByKind[r.Kind] = ks
	}

	if resolved := st.Accepted + st.Declined; resolved > 0 {
		st.AcceptanceRate = float64(st.Accepted) / float64(resolved)
	}
	st.AvgTimeToResolve = time.Duration(resolveAvg)
	return st
}

// updateRunningAverage computes a running average
func updateRunningAverage(currentAvg, newValue float64, count int) float64 {
	if count <= 1 {
		return newValue
	}
	return currentAvg + (newValue-currentAvg)/float64(count)
}
