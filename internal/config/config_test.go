package config

import (
	"strings"
	"testing"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidate_SniperBelowNormal(t *testing.T) {
	cfg := Defaults()
	cfg.Thresholds.Sniper.Metal = 0.80
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error when sniper threshold is below normal")
	}
	if !strings.Contains(err.Error(), "sniper threshold for metal") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "yolo"
	cfg.Capacity.BaseSlots = 0
	cfg.Execution.MaxAttempts = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"unknown mode", "base_slots", "max_attempts"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidate_UnknownAssetClass(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.Symbols = append(cfg.Engine.Symbols, SymbolConfig{Name: "BTCUSD", Class: "crypto"})
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown asset class")
	}
}

func TestInstruments_TagsClasses(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.Symbols = []SymbolConfig{
		{Name: "xauusd", Class: "metal"},
		{Name: "USDJPY", Symbol: "USDJPY.m", Class: "jpy"},
	}
	got, err := cfg.Instruments()
	if err != nil {
		t.Fatalf("Instruments: %v", err)
	}
	if got[0].Name != "XAUUSD" || got[0].Symbol != "xauusd" || got[0].Class != domain.AssetMetal {
		t.Errorf("unexpected metal instrument: %+v", got[0])
	}
	if got[1].Symbol != "USDJPY.m" || got[1].Class != domain.AssetYenCross {
		t.Errorf("unexpected yen instrument: %+v", got[1])
	}
}

func TestRedactedConfig_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Bridge.APISecret = "s3cret"
	cfg.Notify.TelegramToken = "tok"
	cfg.Postgres.Password = ""

	out := RedactedConfig(&cfg)
	if out.Bridge.APISecret != "***" || out.Notify.TelegramToken != "***" {
		t.Errorf("secrets not redacted: %+v %+v", out.Bridge, out.Notify)
	}
	if out.Postgres.Password != "" {
		t.Errorf("empty secret should stay empty, got %q", out.Postgres.Password)
	}
	if cfg.Bridge.APISecret != "s3cret" {
		t.Error("original config was mutated")
	}
	out.Engine.Symbols[0].Name = "changed"
	if cfg.Engine.Symbols[0].Name == "changed" {
		t.Error("symbols slice shared with original")
	}
}
