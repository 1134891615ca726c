package alerts

import (
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("bad test date %q: %v", value, err)
	}
	return parsed
}

func TestComputeStats(t *testing.T) {
	now := day(t, "2026-03-10")

	accounts := []*domain.Account{
		{AccountID: "ACC-1"},
		{AccountID: "ACC-2"},
		{AccountID: "ACC-3"},
		{AccountID: "ACC-4"},
	}
	alerts := []*domain.Alert{
		{AccountID: "ACC-1", Priority: domain.PriorityCritical, Typologies: "High Volume, Structuring", Amount: "2000000.00", CreatedAt: now},
		{AccountID: "ACC-1", Priority: domain.PriorityHigh, Typologies: "Structuring", Amount: "300000.00", CreatedAt: now.AddDate(0, 0, -1)},
		{AccountID: "ACC-2", Priority: domain.PriorityHigh, Typologies: "Money Mule", Amount: "₹1,00,000", CreatedAt: now.AddDate(0, 0, -1)},
	}

	stats := ComputeStats(accounts, alerts, now)

	if stats.TotalAlerts != 3 || stats.CriticalAlerts != 1 {
		t.Errorf("unexpected alert counts: %+v", stats)
	}
	if stats.FlaggedAccounts != 2 || stats.TotalAccounts != 4 {
		t.Errorf("unexpected account counts: %+v", stats)
	}
	if stats.SuspiciousVolume != "₹2.4M" {
		t.Errorf("unexpected volume: %q", stats.SuspiciousVolume)
	}
	if stats.DetectionRate != "50.0%" {
		t.Errorf("unexpected detection rate: %q", stats.DetectionRate)
	}

	wantDist := map[string]int{"High Volume": 1, "Structuring": 2, "Money Mule": 1}
	if len(stats.Distribution) != len(wantDist) {
		t.Fatalf("unexpected distribution size: %+v", stats.Distribution)
	}
	for _, d := range stats.Distribution {
		if wantDist[d.Name] != d.Count {
			t.Errorf("typology %s: expected %d, got %d", d.Name, wantDist[d.Name], d.Count)
		}
	}
}

func TestComputeStatsTrendWindow(t *testing.T) {
	now := day(t, "2026-03-10")
	alerts := []*domain.Alert{
		{AccountID: "ACC-1", Priority: domain.PriorityHigh, Amount: "100", CreatedAt: now},
		{AccountID: "ACC-1", Priority: domain.PriorityHigh, Amount: "100", CreatedAt: now.AddDate(0, 0, -3)},
		{AccountID: "ACC-1", Priority: domain.PriorityHigh, Amount: "100", CreatedAt: now.AddDate(0, 0, -3)},
		// Outside the 7-day window, must not appear.
		{AccountID: "ACC-1", Priority: domain.PriorityHigh, Amount: "100", CreatedAt: now.AddDate(0, 0, -10)},
	}

	stats := ComputeStats(nil, alerts, now)

	if len(stats.Trend) != 7 {
		t.Fatalf("expected 7 trend days, got %d", len(stats.Trend))
	}
	if stats.Trend[6].Date != "10 Mar" || stats.Trend[6].Count != 1 {
		t.Errorf("unexpected last trend day: %+v", stats.Trend[6])
	}
	if stats.Trend[3].Date != "07 Mar" || stats.Trend[3].Count != 2 {
		t.Errorf("unexpected mid trend day: %+v", stats.Trend[3])
	}
	var total int
	for _, d := range stats.Trend {
		total += d.Count
	}
	if total != 3 {
		t.Errorf("expected 3 alerts inside the window, got %d", total)
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(nil, nil, day(t, "2026-03-10"))

	if stats.DetectionRate != "0%" {
		t.Errorf("expected 0%% detection rate, got %q", stats.DetectionRate)
	}
	if stats.SuspiciousVolume != "₹0" {
		t.Errorf("expected zero volume, got %q", stats.SuspiciousVolume)
	}
	if len(stats.Trend) != 7 {
		t.Errorf("trend must always cover 7 days, got %d", len(stats.Trend))
	}
	if len(stats.Distribution) != 0 {
		t.Errorf("expected empty distribution, got %+v", stats.Distribution)
	}
}

func TestFormatVolume(t *testing.T) {
	tests := []struct {
		volume float64
		want   string
	}{
		{2400000, "₹2.4M"},
		{450000, "₹450.0K"},
		{900, "₹900"},
		{0, "₹0"},
	}
	for _, tt := range tests {
		if got := formatVolume(tt.volume); got != tt.want {
			t.Errorf("formatVolume(%v): expected %q, got %q", tt.volume, tt.want, got)
		}
	}
}
