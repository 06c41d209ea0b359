package ui

import (
	"strings"
	"testing"
)

func TestTableSkipsEmptyValues(t *testing.T) {
	out := Table("Session abc", []Row{
		{Key: "openId", Value: "OID1"},
		{Key: "unionId", Value: ""},
	})
	if !strings.Contains(out, "Session abc") || !strings.Contains(out, "OID1") {
		t.Fatalf("expected title and value in output, got %q", out)
	}
	if strings.Contains(out, "unionId") {
		t.Fatalf("expected empty row to be skipped, got %q", out)
	}
}

func TestErrorIncludesMessage(t *testing.T) {
	if out := Error("session expired"); !strings.Contains(out, "session expired") {
		t.Fatalf("unexpected error rendering %q", out)
	}
}
