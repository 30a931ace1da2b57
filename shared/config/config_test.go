package config

import "testing"

func TestParseCSV(t *testing.T) {
	got := parseCSV("a, b, ,c,,")
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestAsBool(t *testing.T) {
	for _, raw := range []string{"true", "1", "YES", " y "} {
		b, ok := asBool(raw)
		if !ok || !b {
			t.Fatalf("expected %q to parse true", raw)
		}
	}
	if _, ok := asBool("maybe"); ok {
		t.Fatalf("expected 'maybe' to be rejected")
	}
}

func TestLoadDefaultsSweepIntervals(t *testing.T) {
	t.Setenv("ENV", "test")
	cfg, _ := Load("orchestrator", 8080)
	if cfg.SlaSweepSec != 300 {
		t.Fatalf("expected default SLA sweep 300s, got %d", cfg.SlaSweepSec)
	}
	if cfg.CloudSyncConcurrency != 1 {
		t.Fatalf("expected cloud sync concurrency 1, got %d", cfg.CloudSyncConcurrency)
	}
}

func TestLoadSlackTimeoutIndependentOfEmailRelay(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("EMAIL_RELAY_TIMEOUT_MS", "2000")
	t.Setenv("SLACK_WEBHOOK_TIMEOUT_MS", "5000")
	cfg, _ := Load("orchestrator", 8080)
	if cfg.EmailRelayTimeoutMS != 2000 {
		t.Fatalf("expected email relay timeout 2000, got %d", cfg.EmailRelayTimeoutMS)
	}
	if cfg.SlackWebhookTimeoutMS != 5000 {
		t.Fatalf("expected slack webhook timeout 5000, got %d", cfg.SlackWebhookTimeoutMS)
	}
}

func TestLoadRejectsNonPositiveInterval(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("SLA_SWEEP_INTERVAL_SECONDS", "0")
	cfg, problems := Load("orchestrator", 8080)
	if cfg.SlaSweepSec != 300 {
		t.Fatalf("expected fallback to 300, got %d", cfg.SlaSweepSec)
	}
	found := false
	for _, p := range problems {
		if p.Field == "SLA_SWEEP_INTERVAL_SECONDS" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a problem for SLA_SWEEP_INTERVAL_SECONDS, got %#v", problems)
	}
}
