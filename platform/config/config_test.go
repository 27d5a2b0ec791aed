package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/leads")
	t.Setenv("SMTP_HOST", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.GetDedupWindow() != 30*time.Second {
		t.Errorf("dedup window = %v, want 30s", cfg.GetDedupWindow())
	}
	if cfg.GetWebhookListenInterval() != 5*time.Second {
		t.Errorf("listen interval = %v, want 5s", cfg.GetWebhookListenInterval())
	}
	if cfg.GetWebhookListenTimeout() != 3*time.Minute {
		t.Errorf("listen timeout = %v, want 3m", cfg.GetWebhookListenTimeout())
	}
	if cfg.GetPhoneRegion() != "BR" {
		t.Errorf("phone region = %q, want BR", cfg.GetPhoneRegion())
	}
	if cfg.GetReportLocation().String() != "America/Sao_Paulo" {
		t.Errorf("report location = %q", cfg.GetReportLocation())
	}
	if cfg.GetEmailEnabled() {
		t.Error("email should be disabled without SMTP_HOST")
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is empty")
	}
}

func TestLoadRejectsInvalidDedupWindow(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/leads")
	t.Setenv("LEAD_DEDUP_WINDOW", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unparsable LEAD_DEDUP_WINDOW")
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" a, ,b ,c")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("splitCSV = %#v", got)
	}
}
