package health

import (
	"testing"

	"firelater-orchestrator/internal/models"
	"firelater-orchestrator/internal/repos"
)

func TestOverallWeightedAverage(t *testing.T) {
	cfg := models.DefaultHealthScoreConfig()
	c := Components{Issue: 80, Change: 90, Sla: 85, Uptime: 100}
	got := Overall(c, cfg)
	if got != 85.75 {
		t.Fatalf("overall = %v, want 85.75", got)
	}
}

func TestOverallDividesBySuppliedWeights(t *testing.T) {
	cfg := models.HealthScoreConfig{IssueWeight: 1, ChangeWeight: 1, SlaWeight: 1, UptimeWeight: 1}
	c := Components{Issue: 60, Change: 80, Sla: 100, Uptime: 40}
	if got := Overall(c, cfg); got != 70 {
		t.Fatalf("overall = %v, want 70 with equal weights", got)
	}
}

func TestOverallZeroWeightsIsNeutral(t *testing.T) {
	if got := Overall(Components{Issue: 10}, models.HealthScoreConfig{}); got != 100 {
		t.Fatalf("overall = %v, want neutral 100 when all weights are zero", got)
	}
}

func TestIssueScoreClampsAtZero(t *testing.T) {
	cfg := models.DefaultHealthScoreConfig()
	w := repos.IssueWindow{Open: 50, OpenCritical: 50, OpenHigh: 50}
	if got := IssueScore(w, cfg); got != 0 {
		t.Fatalf("issue score = %v, want clamp to 0", got)
	}
}

func TestChangeScoreNeutralWithoutChanges(t *testing.T) {
	cfg := models.DefaultHealthScoreConfig()
	if got := ChangeScore(repos.ChangeWindow{}, cfg); got != 100 {
		t.Fatalf("change score = %v, want neutral 100", got)
	}
}

func TestChangeScorePenalizesFailures(t *testing.T) {
	cfg := models.DefaultHealthScoreConfig()
	w := repos.ChangeWindow{Completed: 8, Failed: 2}
	// 0.8*100 - 2*10 = 60
	if got := ChangeScore(w, cfg); got != 60 {
		t.Fatalf("change score = %v, want 60", got)
	}
}

func TestSlaScoreNeutralWithoutIssues(t *testing.T) {
	cfg := models.DefaultHealthScoreConfig()
	if got := SlaScore(repos.IssueWindow{}, cfg); got != 100 {
		t.Fatalf("sla score = %v, want neutral 100", got)
	}
}

func TestSlaScorePenalizesBreaches(t *testing.T) {
	cfg := models.DefaultHealthScoreConfig()
	w := repos.IssueWindow{Total: 10, Breached: 2}
	// 0.8*100 - 2*10 = 60
	if got := SlaScore(w, cfg); got != 60 {
		t.Fatalf("sla score = %v, want 60", got)
	}
}

func TestUptimeScore(t *testing.T) {
	if got := UptimeScore(repos.IssueWindow{Outages: 3}); got != 85 {
		t.Fatalf("uptime score = %v, want 85", got)
	}
	if got := UptimeScore(repos.IssueWindow{Outages: 30}); got != 0 {
		t.Fatalf("uptime score = %v, want clamp to 0", got)
	}
}

func TestTrendBands(t *testing.T) {
	cases := []struct {
		previous float64
		current  float64
		want     string
	}{
		{70, 85, models.TrendImproving},
		{85, 70, models.TrendDeclining},
		{80, 82, models.TrendStable},
		{80, 85, models.TrendStable},
		{80, 75, models.TrendStable},
	}
	for _, tc := range cases {
		if got := Trend(tc.current, tc.previous, true); got != tc.want {
			t.Fatalf("trend(%v -> %v) = %s, want %s", tc.previous, tc.current, got, tc.want)
		}
	}
	if got := Trend(55, 0, false); got != models.TrendStable {
		t.Fatalf("first computation trend = %s, want stable", got)
	}
}
