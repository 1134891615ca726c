package domain

// FeatureVector holds the per-account behavioral signals for one analysis run.
// All fields are non-negative. Vectors are recomputed fully on every run and
// discarded after scoring; they are never persisted on their own.
type FeatureVector struct {
	AccountID        string  `json:"accountId"`
	TotalVolume      float64 `json:"totalVolume"`
	TransactionCount int     `json:"transactionCount"`
	StructuringCount int     `json:"structuringCount"`
	MuleScore        int     `json:"muleScore"`
	RoundTripCount   int     `json:"roundTripCount"`
}

// Matrix returns the 4-dimensional feature row used by the anomaly model:
// [total_volume, structuring_count, mule_score, round_trip_count].
func (f *FeatureVector) Matrix() []float64 {
	return []float64{
		f.TotalVolume,
		float64(f.StructuringCount),
		float64(f.MuleScore),
		float64(f.RoundTripCount),
	}
}

// Classification is the classifier's output for one account: a bounded
// risk score plus the typology tags that matched. Consumed immediately by
// the alert materializer.
type Classification struct {
	AccountID        string   `json:"accountId"`
	RiskScore        int      `json:"riskScore"`
	Typologies       []string `json:"typologies"`
	TotalVolume      float64  `json:"totalVolume"`
	TransactionCount int      `json:"transactionCount"`
}

// Typology tag names assigned by the classifier.
const (
	TagHighVolume  = "High Volume"
	TagStructuring = "Structuring"
	TagMoneyMule   = "Money Mule"
	TagRoundTrip   = "Round Trip"
	TagAnomalous   = "Anomalous Behavior"
)
