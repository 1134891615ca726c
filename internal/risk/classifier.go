// Package risk converts raw anomaly scores into bounded risk scores and
// assigns typology tags via CEL rules.
package risk

import (
	"github.com/opensource-finance/harrier/internal/domain"
)

// Classify rescales the model's decision scores to integer risk scores in
// [0, 100] and pairs each with its feature vector. Lower decision scores
// mean more anomalous, so the min-max normalization is inverted: the most
// anomalous account in the batch lands at 100 and the least at 0. When the
// batch is degenerate (all scores equal, including single-account batches)
// every account gets the neutral score 50.
//
// Typology tags are not assigned here; see Tagger.
func Classify(vectors []domain.FeatureVector, scores []float64) []domain.Classification {
	if len(vectors) == 0 || len(vectors) != len(scores) {
		return nil
	}

	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}

	out := make([]domain.Classification, len(vectors))
	for i, v := range vectors {
		var risk int
		if hi == lo {
			risk = 50
		} else {
			// Invert so the lowest (most anomalous) score maps to 100.
			// Truncation, not rounding: 75.6 classifies as 75.
			risk = int((hi - scores[i]) / (hi - lo) * 100)
		}
		out[i] = domain.Classification{
			AccountID:        v.AccountID,
			RiskScore:        risk,
			TotalVolume:      v.TotalVolume,
			TransactionCount: v.TransactionCount,
		}
	}

	return out
}
