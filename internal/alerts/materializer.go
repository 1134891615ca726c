// Package alerts turns classifications into persisted alerts, accounts and
// evidence transactions, and computes the dashboard aggregates over them.
package alerts

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Alerting thresholds. Accounts scoring above alertThreshold get an alert;
// above criticalThreshold the alert is prioritized Critical.
const (
	alertThreshold    = 50
	criticalThreshold = 90

	// evidenceLimit caps per-account evidence transactions, chosen by
	// highest amount, to keep storage bounded on large uploads.
	evidenceLimit = 5
)

// Materialized is everything one analysis run produces for persistence.
type Materialized struct {
	Accounts []*domain.Account
	Alerts   []*domain.Alert
	Evidence []*domain.StoredTransaction
}

// Materialize builds the persistable output of a run from its
// classifications and the normalized transactions they were derived from.
// Every classified account yields an account entity and up to five evidence
// transactions; only accounts above the risk threshold yield alerts.
func Materialize(tenantID string, classifications []domain.Classification, txs []domain.Transaction) *Materialized {
	now := time.Now().UTC()

	byAccount := make(map[string][]domain.Transaction)
	for _, tx := range txs {
		byAccount[tx.AccountID] = append(byAccount[tx.AccountID], tx)
	}

	out := &Materialized{
		Accounts: make([]*domain.Account, 0, len(classifications)),
		Alerts:   make([]*domain.Alert, 0),
		Evidence: make([]*domain.StoredTransaction, 0),
	}

	for _, c := range classifications {
		flagged := c.RiskScore > alertThreshold

		account := &domain.Account{
			AccountID:         c.AccountID,
			TenantID:          tenantID,
			Name:              fmt.Sprintf("Account %s", c.AccountID),
			Type:              "Checking",
			OpenDate:          now,
			TotalTransactions: c.TransactionCount,
			CreatedAt:         now,
		}
		if flagged {
			account.FlaggedTransactions = 1
		}
		out.Accounts = append(out.Accounts, account)

		if flagged {
			out.Alerts = append(out.Alerts, &domain.Alert{
				AlertID:          newAlertID(c.AccountID),
				TenantID:         tenantID,
				AccountID:        c.AccountID,
				RiskScore:        c.RiskScore,
				Typologies:       joinTypologies(c.Typologies),
				CreatedAt:        now,
				Status:           domain.AlertStatusOpen,
				Amount:           strconv.FormatFloat(c.TotalVolume, 'f', 2, 64),
				TransactionCount: c.TransactionCount,
				Priority:         priorityFor(c.RiskScore),
			})
		}

		out.Evidence = append(out.Evidence, evidenceFor(tenantID, c.AccountID, byAccount[c.AccountID], flagged, now)...)
	}

	return out
}

// newAlertID builds a human-scannable alert identifier that embeds the
// account it concerns.
func newAlertID(accountID string) string {
	id := uuid.New()
	return fmt.Sprintf("AL-%x-%s", id[:5], accountID)
}

func priorityFor(riskScore int) string {
	if riskScore > criticalThreshold {
		return domain.PriorityCritical
	}
	return domain.PriorityHigh
}

func joinTypologies(tags []string) string {
	joined := ""
	for i, tag := range tags {
		if i > 0 {
			joined += ", "
		}
		joined += tag
	}
	return joined
}

// evidenceFor selects the account's highest-amount transactions as stored
// evidence. Transactions without a parsable timestamp fall back to the
// materialization time.
func evidenceFor(tenantID, accountID string, txs []domain.Transaction, flagged bool, now time.Time) []*domain.StoredTransaction {
	if len(txs) == 0 {
		return nil
	}

	sorted := make([]domain.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount > sorted[j].Amount
	})
	if len(sorted) > evidenceLimit {
		sorted = sorted[:evidenceLimit]
	}

	evidence := make([]*domain.StoredTransaction, 0, len(sorted))
	for _, tx := range sorted {
		when := now
		if tx.Timestamp != nil {
			when = *tx.Timestamp
		}
		evidence = append(evidence, &domain.StoredTransaction{
			ID:             uuid.NewString(),
			TenantID:       tenantID,
			AccountID:      accountID,
			DateTime:       when,
			Type:           tx.Type,
			Amount:         "₹" + strconv.FormatFloat(tx.Amount, 'f', -1, 64),
			RelatedAccount: tx.RelatedAccount,
			Flagged:        flagged,
		})
	}

	return evidence
}
