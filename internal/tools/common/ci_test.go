package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestPrintCIResult(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintCIResult(&buf, false, "inspect", []string{"code=abc"}, errors.New("session not found")); err != nil {
		t.Fatalf("print: %v", err)
	}
	var got CIResult
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.OK || got.Name != "inspect" || got.Error != "session not found" || len(got.Details) != 1 {
		t.Fatalf("unexpected result %+v", got)
	}

	buf.Reset()
	_ = PrintCIResult(&buf, true, "inspect", nil, nil)
	if bytes.Contains(buf.Bytes(), []byte(`"error"`)) {
		t.Fatalf("expected no error field on success, got %s", buf.String())
	}
}
