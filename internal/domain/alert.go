package domain

import "time"

// Alert is a persisted high-risk finding for an account.
// Alerts are created only by the materializer or seed paths and are
// immutable once created, except for status transitions owned by the
// downstream review workflow.
type Alert struct {
	AlertID          string    `json:"alertId"`
	TenantID         string    `json:"tenantId"`
	AccountID        string    `json:"accountId"`
	RiskScore        int       `json:"riskScore"`
	Typologies       string    `json:"typologies"` // comma-joined display string
	CreatedAt        time.Time `json:"createdAt"`
	Status           string    `json:"status"`
	Amount           string    `json:"amount"` // formatted currency string
	TransactionCount int       `json:"transactionCount"`
	Priority         string    `json:"priority"`
}

// Alert lifecycle statuses. The engine only ever writes StatusOpen;
// the rest belong to the review workflow.
const (
	AlertStatusOpen        = "Open"
	AlertStatusUnderReview = "Under Review"
	AlertStatusClosed      = "Closed"
)

// Alert priority tiers.
const (
	PriorityCritical = "Critical"
	PriorityHigh     = "High"
)

// AlertStats is the aggregate dashboard view over a tenant's alerts.
type AlertStats struct {
	CriticalAlerts   int             `json:"criticalAlerts"`
	TotalAlerts      int             `json:"totalAlerts"`
	FlaggedAccounts  int             `json:"flaggedAccounts"`
	TotalAccounts    int             `json:"totalAccounts"`
	SuspiciousVolume string          `json:"suspiciousVolume"`
	DetectionRate    string          `json:"detectionRate"`
	Distribution     []TypologyCount `json:"distribution"`
	Trend            []AlertTrendDay `json:"trend"`
}

// TypologyCount is one slice of the typology distribution.
type TypologyCount struct {
	Name  string `json:"name"`
	Count int    `json:"value"`
}

// AlertTrendDay is one day of the alert trend series.
type AlertTrendDay struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}
