package alerts

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ComputeStats aggregates a tenant's alerts and accounts into the dashboard
// view. It is computed on read; nothing here is cached or persisted.
func ComputeStats(accounts []*domain.Account, alerts []*domain.Alert, now time.Time) *domain.AlertStats {
	stats := &domain.AlertStats{
		TotalAlerts:   len(alerts),
		TotalAccounts: len(accounts),
		Distribution:  []domain.TypologyCount{},
		Trend:         []domain.AlertTrendDay{},
	}

	flagged := make(map[string]struct{})
	typologyCounts := make(map[string]int)
	typologyOrder := make([]string, 0)
	var volume float64

	for _, alert := range alerts {
		if alert.Priority == domain.PriorityCritical {
			stats.CriticalAlerts++
		}
		flagged[alert.AccountID] = struct{}{}

		if amt, err := parseAmount(alert.Amount); err == nil {
			volume += amt
		}

		for _, name := range strings.Split(alert.Typologies, ", ") {
			if name == "" {
				continue
			}
			if _, seen := typologyCounts[name]; !seen {
				typologyOrder = append(typologyOrder, name)
			}
			typologyCounts[name]++
		}
	}

	stats.FlaggedAccounts = len(flagged)
	stats.SuspiciousVolume = formatVolume(volume)
	stats.DetectionRate = detectionRate(len(flagged), len(accounts))

	for _, name := range typologyOrder {
		stats.Distribution = append(stats.Distribution, domain.TypologyCount{
			Name:  name,
			Count: typologyCounts[name],
		})
	}

	stats.Trend = alertTrend(alerts, now)

	return stats
}

// parseAmount reads an alert amount, tolerating the currency prefix and
// thousands separators used in formatted values.
func parseAmount(raw string) (float64, error) {
	clean := strings.NewReplacer("₹", "", ",", "", " ", "").Replace(raw)
	return strconv.ParseFloat(clean, 64)
}

// formatVolume renders a compact currency figure (₹1.2M, ₹450.0K, ₹900).
func formatVolume(volume float64) string {
	switch {
	case volume >= 1000000:
		return fmt.Sprintf("₹%.1fM", volume/1000000)
	case volume >= 1000:
		return fmt.Sprintf("₹%.1fK", volume/1000)
	default:
		return fmt.Sprintf("₹%d", int(volume))
	}
}

func detectionRate(flagged, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(flagged)/float64(total)*100)
}

// alertTrend buckets alerts by calendar day over the trailing seven days.
// Days with no alerts appear with a zero count so charts stay contiguous.
func alertTrend(alerts []*domain.Alert, now time.Time) []domain.AlertTrendDay {
	counts := make(map[string]int)
	for _, alert := range alerts {
		counts[alert.CreatedAt.UTC().Format("2006-01-02")]++
	}

	trend := make([]domain.AlertTrendDay, 0, 7)
	for i := 6; i >= 0; i-- {
		day := now.UTC().AddDate(0, 0, -i)
		trend = append(trend, domain.AlertTrendDay{
			Date:  day.Format("02 Jan"),
			Count: counts[day.Format("2006-01-02")],
		})
	}
	return trend
}
