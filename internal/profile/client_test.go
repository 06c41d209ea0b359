package profile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sandeepkv93/weapp-session-service/internal/security"
)

func TestEnrichSendsRequestAndParsesProfile(t *testing.T) {
	signer := security.NewServiceTokenSigner("weapp-session", "userinfo", "abcdefghijklmnopqrstuvwxyz123456")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		auth := r.Header.Get("Authorization")
		claims, err := signer.Parse(strings.TrimPrefix(auth, "Bearer "))
		if err != nil || claims.OpenID != "OID1" {
			t.Errorf("unexpected service token %q: %v", auth, err)
		}
		var in Request
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if in.User.MinaOpenID != "OID1" || !in.NeedPPTConfig || in.IP != "10.0.0.1" {
			t.Errorf("unexpected request: %+v", in)
		}
		_, _ = w.Write([]byte(`{"UserID":1024,"Name":"","Nickname":"nick","Avatar":null,"School":"MIT","Gender":"F","YearOfBirth":1990,"profile_edit_status":{"name":true}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, signer)
	got, err := c.Enrich(context.Background(), Request{
		User:          User{MinaOpenID: "OID1", NickName: "client"},
		NeedPPTConfig: true,
		IP:            "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if got.UserID != "1024" || got.Name != "" || got.Nickname != "nick" || got.Avatar != "" || got.School != "MIT" {
		t.Fatalf("unexpected profile: %+v", got)
	}
	if string(got.Gender) != `"F"` || string(got.YearOfBirth) != "1990" || string(got.ProfileEditStatus) != `{"name":true}` {
		t.Fatalf("unexpected raw fields: %+v", got)
	}
}

func TestEnrichMissingUserIDCarriesBody(t *testing.T) {
	body := `{"error":"user service down"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).Enrich(context.Background(), Request{User: User{MinaOpenID: "OID1"}})
	var contractErr *ContractError
	if !errors.As(err, &contractErr) {
		t.Fatalf("expected ContractError, got %v", err)
	}
	if string(contractErr.Body) != body {
		t.Fatalf("expected raw body to be attached, got %q", contractErr.Body)
	}
	if !errors.Is(err, ErrMissingUserID) {
		t.Fatalf("expected ErrMissingUserID, got %v", err)
	}
}

func TestEnrichNonJSONBodyIsContractError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).Enrich(context.Background(), Request{})
	var contractErr *ContractError
	if !errors.As(err, &contractErr) || contractErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected ContractError with status, got %v", err)
	}
}

func TestEnrichTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { <-release }))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, 50*time.Millisecond, nil).Enrich(context.Background(), Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
