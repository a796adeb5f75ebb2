package config_test

import (
	"testing"
	"time"

	"casino-originals/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE", "memory")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Port)
	}
	if cfg.CrashWait != 5*time.Second || cfg.CrashCooldown != 3*time.Second {
		t.Errorf("Unexpected crash timings %s/%s", cfg.CrashWait, cfg.CrashCooldown)
	}
	if cfg.StartBalance != 100000 {
		t.Errorf("Expected starting balance 100000, got %d", cfg.StartBalance)
	}
	if cfg.JWTSecret == "" {
		t.Error("Development config should get a default JWT secret")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
	}{
		{name: "UnknownStore", key: "STORE", val: "etcd"},
		{name: "UnknownDB", key: "DB_TYPE", val: "mysql"},
		{name: "BadDuration", key: "CRASH_WAIT", val: "soon"},
		{name: "NegativeDuration", key: "CRASH_TICK", val: "-1s"},
		{name: "BadPort", key: "PORT", val: "http"},
		{name: "ZeroMaxBet", key: "MAX_BET", val: "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", "test")
			t.Setenv("STORE", "memory")
			t.Setenv(tc.key, tc.val)

			if _, err := config.Load(); err == nil {
				t.Errorf("%s=%q should be rejected", tc.key, tc.val)
			}
		})
	}
}

func TestProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")

	if _, err := config.Load(); err == nil {
		t.Error("production without JWT_SECRET should fail")
	}
}
