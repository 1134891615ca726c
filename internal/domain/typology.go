package domain

// TagRule defines one typology tagging rule. The expression is a CEL
// program over the account's feature variables (total_volume,
// transaction_count, structuring_count, mule_score, round_trip_count,
// risk_score) that must evaluate to bool. All enabled rules are evaluated
// independently; an account can carry several tags.
type TagRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Tag is the typology label assigned when the expression is true.
	Tag string `json:"tag"`

	// Expression is the CEL condition.
	Expression string `json:"expression"`

	// Fallback rules only fire when no non-fallback rule matched.
	Fallback bool `json:"fallback,omitempty"`

	// Whether the rule is active
	Enabled bool `json:"enabled"`
}
