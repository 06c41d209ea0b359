package sessionctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sandeepkv93/weapp-session-service/internal/domain"
	"github.com/sandeepkv93/weapp-session-service/internal/repository"
	"github.com/sandeepkv93/weapp-session-service/internal/service"
	"github.com/sandeepkv93/weapp-session-service/internal/tools/common"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("WEAPP_APP_ID", "wx-test-app")
	t.Setenv("WEAPP_IGNORE_SIGNATURE", "true")
	t.Setenv("USERINFO_URL", "http://userinfo.local/api")
}

func TestInspectFindsSessionInSQLStore(t *testing.T) {
	setBaseEnv(t)
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	t.Setenv("SESSION_STORE", "sql")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", dbPath)

	db, err := repository.OpenDatabase("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	cache := service.NewSessionCache(repository.NewSessionStore(db), time.Hour, time.Second)
	ctx := context.Background()
	if err := cache.PutRecord(ctx, "abc", &domain.SessionRecord{OpenID: "OID1", UserID: "42"}); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	if err := cache.PutCodeFor(ctx, "OID1", "abc"); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()

	for _, args := range [][]string{
		{"inspect", "abc", "--ci"},
		{"inspect", "--open-id", "OID1", "--ci"},
	} {
		var out bytes.Buffer
		cmd := NewRootCommand()
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		if err := cmd.Execute(); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		var res common.CIResult
		if err := json.Unmarshal(out.Bytes(), &res); err != nil {
			t.Fatalf("%v: decode output %q: %v", args, out.String(), err)
		}
		if !res.OK || len(res.Details) != 2 || !strings.Contains(res.Details[1], `"openId":"OID1"`) {
			t.Fatalf("%v: unexpected result %+v", args, res)
		}
	}
}

func TestInspectMissingSessionFails(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SESSION_STORE", "memory")

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"inspect", "nope", "--ci"})
	err := cmd.Execute()
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if !strings.Contains(out.String(), `"ok":false`) {
		t.Fatalf("expected failed CI result, got %q", out.String())
	}
}

func TestInspectArgumentValidation(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SESSION_STORE", "memory")
	for _, args := range [][]string{
		{"inspect"},
		{"inspect", "abc", "--open-id", "OID1"},
	} {
		cmd := NewRootCommand()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		if err := cmd.Execute(); err == nil {
			t.Fatalf("%v: expected argument error", args)
		}
	}
}

func TestReportRendersTable(t *testing.T) {
	gender := 2
	var out bytes.Buffer
	rec := &domain.SessionRecord{OpenID: "OID1", Gender: &gender, YearOfBirth: json.RawMessage(`1990`)}
	if err := report(&out, false, "abc", rec, nil); err != nil {
		t.Fatalf("report: %v", err)
	}
	for _, want := range []string{"Session abc", "OID1", "1990"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %q in output %q", want, out.String())
		}
	}
}
