package domain

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestSessionRecordRoundTripKeepsUnknownKeysAndNulls(t *testing.T) {
	in := `{"openId":"OID1","nickName":"n","gender":0,"watermark":{"appid":"wx1","timestamp":1700000000},` +
		`"userId":"42","Gender":null,"YearOfBirth":1990,"profile_edit_status":{"name":true},"vendorFlag":[1,2]}`

	var rec SessionRecord
	if err := json.Unmarshal([]byte(in), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Gender == nil || *rec.Gender != 0 {
		t.Fatalf("expected explicit zero gender to survive, got %v", rec.Gender)
	}
	if rec.Watermark == nil || rec.Watermark.AppID != "wx1" {
		t.Fatalf("unexpected watermark %+v", rec.Watermark)
	}
	if string(rec.Extra["vendorFlag"]) != "[1,2]" {
		t.Fatalf("expected unknown key in Extra, got %v", rec.Extra)
	}

	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var want, got map[string]any
	_ = json.Unmarshal([]byte(in), &want)
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("round trip mismatch\nwant %v\ngot  %v", want, got)
	}
}

func TestSessionRecordOmitsAbsentFields(t *testing.T) {
	out, err := json.Marshal(SessionRecord{OpenID: "OID1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"openId":"OID1"}` {
		t.Fatalf("expected only openId, got %s", out)
	}
}

func TestSessionRecordExtraCannotShadowKnownKeys(t *testing.T) {
	rec := SessionRecord{
		OpenID: "real",
		Extra:  map[string]json.RawMessage{"openId": json.RawMessage(`"forged"`), "x": json.RawMessage(`1`)},
	}
	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	_ = json.Unmarshal(out, &got)
	if got["openId"] != "real" || got["x"] != float64(1) {
		t.Fatalf("unexpected merged output %v", got)
	}
}

func TestSessionRecordKeepsMistypedKnownKeysInExtra(t *testing.T) {
	in := `{"openId":"OID1","gender":"1","nickName":123,"watermark":"x","city":"Guangzhou"}`

	var rec SessionRecord
	if err := json.Unmarshal([]byte(in), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.OpenID != "OID1" || rec.City != "Guangzhou" {
		t.Fatalf("expected well-typed keys decoded, got %+v", rec)
	}
	if rec.Gender != nil || rec.NickName != "" || rec.Watermark != nil {
		t.Fatalf("expected mistyped keys left unset, got %+v", rec)
	}
	for k, want := range map[string]string{"gender": `"1"`, "nickName": `123`, "watermark": `"x"`} {
		if got := string(rec.Extra[k]); got != want {
			t.Fatalf("Extra[%q]=%s want %s", k, got, want)
		}
	}

	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var want, got map[string]any
	_ = json.Unmarshal([]byte(in), &want)
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("round trip mismatch\nwant %v\ngot  %v", want, got)
	}
}

func TestSessionRecordTypedValueReplacesMistypedExtra(t *testing.T) {
	var rec SessionRecord
	if err := json.Unmarshal([]byte(`{"nickName":123}`), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rec.NickName = "canonical"
	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"nickName":"canonical"}` {
		t.Fatalf("expected typed nickName to win, got %s", out)
	}
}
