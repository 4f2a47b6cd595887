package config

import (
	"os"
	"testing"
	"time"
)

// chdir switches the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service.Name != "be-ops-printshop" {
		t.Fatalf("expected default service name, got %q", cfg.Service.Name)
	}
	if cfg.Database.Driver != "postgres" {
		t.Fatalf("expected postgres driver, got %q", cfg.Database.Driver)
	}
	if cfg.Server.ShutdownTimeout != 20*time.Second {
		t.Fatalf("expected 20s shutdown timeout, got %s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Ledger.AllowNegativeBalance {
		t.Fatalf("negative balances must be disallowed by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DB_SQLITE_PATH", "/tmp/printshop.db")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("LEDGER_ALLOW_NEGATIVE_BALANCE", "true")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("WORKFLOW_CONFIG_PATH", "/etc/printshop/workflow.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.SQLitePath != "/tmp/printshop.db" {
		t.Fatalf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("expected port 9000, got %d", cfg.Server.Port)
	}
	if !cfg.Ledger.AllowNegativeBalance {
		t.Fatalf("expected negative balance override")
	}
	if cfg.Auth.JWTSecret != "s3cret" || cfg.Workflow.ConfigPath != "/etc/printshop/workflow.yaml" {
		t.Fatalf("unexpected auth/workflow config: %+v %+v", cfg.Auth, cfg.Workflow)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DB_DRIVER", "mysql")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5432, Database: "printshop", SSLMode: "disable"}
	if got, want := d.DSN(), "postgres://u:p@db:5432/printshop?sslmode=disable"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
