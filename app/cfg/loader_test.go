package cfg

import (
	"testing"
	"time"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}

	version := GetVersion()
	if version != "dev" && version != "unknown" {
		t.Logf("Version: %s", version)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load([]string{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected port '8080', got '%s'", cfg.Port)
	}
	if cfg.BudgetInitial != 10 || cfg.BudgetFloor != 3 || cfg.BudgetCeiling != 15 {
		t.Errorf("Expected budget 10/3/15, got %d/%d/%d", cfg.BudgetInitial, cfg.BudgetFloor, cfg.BudgetCeiling)
	}
	if cfg.CacheTTL != 24*time.Hour {
		t.Errorf("Expected cache TTL 24h, got %v", cfg.CacheTTL)
	}
	if cfg.Freshness != time.Hour {
		t.Errorf("Expected freshness 1h, got %v", cfg.Freshness)
	}
	if len(cfg.CheckpointHours) != 4 || cfg.CheckpointHours[0] != 7 || cfg.CheckpointHours[3] != 19 {
		t.Errorf("Expected checkpoints [7 11 15 19], got %v", cfg.CheckpointHours)
	}
	if cfg.MonitorLocation == nil || cfg.MonitorLocation.String() != "Europe/Moscow" {
		t.Errorf("Expected monitor timezone Europe/Moscow, got %v", cfg.MonitorLocation)
	}
	if cfg.MonitorWindow != 12*time.Hour {
		t.Errorf("Expected monitor window 12h, got %v", cfg.MonitorWindow)
	}
	if cfg.ActiveWindow != 30*24*time.Hour {
		t.Errorf("Expected active window 30 days, got %v", cfg.ActiveWindow)
	}
	if Get() != cfg {
		t.Error("Expected Get to return the loaded configuration")
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := load([]string{"--port", "9090", "--checkpoints", "19, 7,7", "--llm-provider", "openai"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Expected port '9090', got '%s'", cfg.Port)
	}
	if len(cfg.CheckpointHours) != 2 || cfg.CheckpointHours[0] != 7 || cfg.CheckpointHours[1] != 19 {
		t.Errorf("Expected checkpoints [7 19], got %v", cfg.CheckpointHours)
	}
	if cfg.LLMProvider != "openai" {
		t.Errorf("Expected provider 'openai', got '%s'", cfg.LLMProvider)
	}
}

func TestLoadRejectsInvalidBudget(t *testing.T) {
	_, err := load([]string{"--budget-floor", "20", "--budget-ceiling", "15"})
	if err == nil {
		t.Error("Expected error when floor exceeds ceiling")
	}
}

func TestParseHours(t *testing.T) {
	tests := []struct {
		input   string
		want    []int
		wantErr bool
	}{
		{"7,11,15,19", []int{7, 11, 15, 19}, false},
		{"15,7", []int{7, 15}, false},
		{"", nil, true},
		{"25", nil, true},
		{"x", nil, true},
	}

	for _, tt := range tests {
		got, err := parseHours(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Expected error for %q", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("Unexpected error for %q: %v", tt.input, err)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("Expected %v for %q, got %v", tt.want, tt.input, got)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Expected %v for %q, got %v", tt.want, tt.input, got)
				break
			}
		}
	}
}

func TestLoadCORSAndSync(t *testing.T) {
	cfg, err := load([]string{"--cors-origins", " https://a.example, ,https://b.example", "--sync-interval", "60"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "https://a.example" || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("Expected two trimmed origins, got %v", cfg.CORSOrigins)
	}
	if cfg.SyncInterval != time.Minute {
		t.Errorf("Expected sync interval 1m, got %v", cfg.SyncInterval)
	}
}
