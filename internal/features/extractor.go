// Package features derives per-account behavioral signals from a
// normalized transaction batch.
package features

import (
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Structuring band: amounts at or above the lower bound but strictly
// below a common reporting threshold.
const (
	structuringLow  = 45000.0
	structuringHigh = 50000.0
)

// Mule pattern bounds: a Withdrawal following a Deposit on the same
// account within the window, at ±5% of the deposited amount.
const (
	muleWindow    = 24 * time.Hour
	muleTolerance = 0.05
)

// Extract computes one FeatureVector per distinct account in the batch.
// The whole table is processed in grouped passes rather than per-row
// queries, since batches may hold hundreds of thousands of rows. Every
// account present in the input receives a vector, even when all derived
// signals are zero. Results are ordered by account ID so repeated runs
// over the same input are identical.
func Extract(txs []domain.Transaction) []domain.FeatureVector {
	if len(txs) == 0 {
		return nil
	}

	vectors := make(map[string]*domain.FeatureVector)
	grouped := make(map[string][]domain.Transaction)
	pairCounts := make(map[pairKey]int)

	for _, tx := range txs {
		vec, ok := vectors[tx.AccountID]
		if !ok {
			vec = &domain.FeatureVector{AccountID: tx.AccountID}
			vectors[tx.AccountID] = vec
		}

		vec.TotalVolume += tx.Amount
		vec.TransactionCount++
		if tx.Amount >= structuringLow && tx.Amount < structuringHigh {
			vec.StructuringCount++
		}

		grouped[tx.AccountID] = append(grouped[tx.AccountID], tx)

		if tx.RelatedAccount != "" {
			pairCounts[pairKey{tx.AccountID, tx.RelatedAccount}]++
		}
	}

	for accountID, accountTxs := range grouped {
		vectors[accountID].MuleScore = muleScore(accountTxs)
	}

	// Round trips are directional: the recorded (account, counterparty)
	// pair as-is, with no merging of inbound and outbound traffic.
	for pair, n := range pairCounts {
		if n > 1 {
			vectors[pair.account].RoundTripCount++
		}
	}

	out := make([]domain.FeatureVector, 0, len(vectors))
	for _, vec := range vectors {
		out = append(out, *vec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

type pairKey struct {
	account string
	related string
}

// muleScore counts adjacent Deposit→Withdrawal pairs in the account's
// time-ordered history that fall within the window and amount tolerance.
// Rows without a parseable timestamp cannot participate in adjacency.
func muleScore(txs []domain.Transaction) int {
	ordered := make([]domain.Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, tj := ordered[i].Timestamp, ordered[j].Timestamp
		if ti == nil {
			return false
		}
		if tj == nil {
			return true
		}
		return ti.Before(*tj)
	})

	score := 0
	for i := 1; i < len(ordered); i++ {
		cur, prev := ordered[i], ordered[i-1]
		if cur.Timestamp == nil || prev.Timestamp == nil {
			continue
		}
		if cur.Type != "Withdrawal" || prev.Type != "Deposit" {
			continue
		}
		if cur.Timestamp.Sub(*prev.Timestamp) > muleWindow {
			continue
		}
		low := prev.Amount * (1 - muleTolerance)
		high := prev.Amount * (1 + muleTolerance)
		if cur.Amount >= low && cur.Amount <= high {
			score++
		}
	}
	return score
}
