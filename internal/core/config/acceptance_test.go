package config

import (
	"testing"
)

// TestAcceptanceCriteria verifies configuration precedence and the
// credential rule.
func TestAcceptanceCriteria(t *testing.T) {
	t.Run("AC1: Config file with database password rejected with clear error", func(t *testing.T) {
		path := writeConfig(t, `database:
  url: "postgres://admin:secret@db/mutguard"
`)
		_, err := LoadConfig(path)
		if err == nil {
			t.Fatal("AC1 FAIL: Expected error for password in config file")
		}
		if err.Error() != "database passwords not allowed in config files (use MG_DATABASE_URL environment variable)" {
			t.Fatalf("AC1 FAIL: Wrong error message: %v", err)
		}
		t.Log("AC1 PASS: Config file with database password rejected with clear error")
	})

	t.Run("AC2: Config file database URL without password accepted", func(t *testing.T) {
		path := writeConfig(t, `database:
  url: "file:history.db"
`)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("AC2 FAIL: LoadConfig error: %v", err)
		}
		if cfg.Database.URL != "file:history.db" {
			t.Fatalf("AC2 FAIL: database url = %q", cfg.Database.URL)
		}
		t.Log("AC2 PASS: Password-free database URL accepted from file")
	})

	t.Run("AC3: Environment variables override config file", func(t *testing.T) {
		t.Setenv("MG_SERVER_PORT", "8080")

		path := writeConfig(t, `server:
  port: 9090
`)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("AC3 FAIL: LoadConfig error: %v", err)
		}
		// Environment variable (8080) should override config file (9090)
		if cfg.Server.Port != 8080 {
			t.Fatalf("AC3 FAIL: Environment should override config file. Expected 8080, got %d", cfg.Server.Port)
		}
		t.Log("AC3 PASS: Environment variables override config file (CLI flags > env > config in viper)")
	})

	t.Run("AC4: Negative guard limit rejected", func(t *testing.T) {
		t.Setenv("MG_GUARD_MAX_MUTATIONS", "-2")
		if _, err := LoadConfig(""); err == nil {
			t.Fatal("AC4 FAIL: Expected error for negative max_mutations")
		}
		t.Log("AC4 PASS: Negative guard limit rejected")
	})

	t.Run("AC5: API keys read from environment only", func(t *testing.T) {
		t.Setenv("MG_API_KEY", "key-a")
		t.Setenv("MG_API_KEY_1", "key-b")
		t.Setenv("MG_API_KEY_2", "key-c")
		t.Setenv("MG_API_KEY_4", "skipped")

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("AC5 FAIL: LoadConfig error: %v", err)
		}
		if len(cfg.APIKeys) != 3 || cfg.APIKeys[0] != "key-a" || cfg.APIKeys[2] != "key-c" {
			t.Fatalf("AC5 FAIL: keys = %v", cfg.APIKeys)
		}

		path := writeConfig(t, `api_keys:
  - "key-d"
`)
		if _, err := LoadConfig(path); err == nil {
			t.Fatal("AC5 FAIL: Expected error for API keys in config file")
		}
		t.Log("AC5 PASS: API keys are environment only")
	})
}
