package sheets

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"prodtrack/internal/syncer"
)

func testCredentials(t *testing.T) Credentials {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	return Credentials{
		ClientEmail: "tracker@example.iam.gserviceaccount.com",
		PrivateKey:  string(pemKey),
	}
}

type fakeGoogle struct {
	t           *testing.T
	tokenCalls  int
	appendCalls int
	appended    [][]string
	tokenStatus int
}

func (g *fakeGoogle) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		g.tokenCalls++
		if status := g.tokenStatus; status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		if err := r.ParseForm(); err != nil {
			g.t.Errorf("parse token form: %v", err)
		}
		if got := r.PostFormValue("grant_type"); got != jwtBearerGrant {
			g.t.Errorf("unexpected grant_type %q", got)
		}
		if r.PostFormValue("assertion") == "" {
			g.t.Errorf("expected a signed assertion")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-bearer-token",
			"expires_in":   3600,
			"token_type":   "Bearer",
		})
	})
	mux.HandleFunc("/sheets/", func(w http.ResponseWriter, r *http.Request) {
		g.appendCalls++
		if got := r.Header.Get("Authorization"); got != "Bearer test-bearer-token" {
			g.t.Errorf("unexpected authorization header %q", got)
		}
		if !strings.Contains(r.URL.RawQuery, "valueInputOption=USER_ENTERED") {
			g.t.Errorf("expected USER_ENTERED input option, got query %q", r.URL.RawQuery)
		}
		var payload struct {
			Values [][]string `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			g.t.Errorf("decode append payload: %v", err)
		}
		g.appended = append(g.appended, payload.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{"updates": map[string]int{"updatedRows": 1}})
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeGoogle) {
	t.Helper()

	google := &fakeGoogle{t: t}
	server := httptest.NewServer(google.handler())
	t.Cleanup(server.Close)

	client := NewClientWithEndpoints(
		testCredentials(t),
		"spreadsheet-123",
		"Sheet1!A:E",
		nil,
		server.URL+"/token",
		server.URL+"/sheets",
		server.Client(),
	)
	return client, google
}

func TestAuthenticateExchangesSignedAssertion(t *testing.T) {
	t.Parallel()

	client, google := newTestClient(t)
	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if google.tokenCalls != 1 {
		t.Fatalf("expected one token exchange, got %d", google.tokenCalls)
	}
}

func TestAuthenticateSurfacesTokenEndpointRejection(t *testing.T) {
	t.Parallel()

	client, google := newTestClient(t)
	google.tokenStatus = http.StatusUnauthorized

	err := client.Authenticate(context.Background())
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 rejection to surface, got %v", err)
	}
}

func TestAuthenticateRejectsGarbageKey(t *testing.T) {
	t.Parallel()

	client := NewClientWithEndpoints(
		Credentials{ClientEmail: "a@b", PrivateKey: "not a pem"},
		"sheet", "", nil, "http://127.0.0.1:0/token", "http://127.0.0.1:0/sheets", nil,
	)
	if err := client.Authenticate(context.Background()); err == nil {
		t.Fatalf("expected key parse failure")
	}
}

func TestAppendRowSendsFiveOrderedValues(t *testing.T) {
	t.Parallel()

	client, google := newTestClient(t)
	row := syncer.Row{"03/02/2026", "1.25", "Write spec", "outline", "writing"}
	if err := client.AppendRow(context.Background(), row); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}

	if len(google.appended) != 1 {
		t.Fatalf("expected one appended row, got %d", len(google.appended))
	}
	got := google.appended[0]
	if len(got) != 5 {
		t.Fatalf("expected 5 values, got %d", len(got))
	}
	for i := range row {
		if got[i] != row[i] {
			t.Fatalf("value %d: expected %q, got %q", i, row[i], got[i])
		}
	}
}

func TestAppendRowReusesCachedToken(t *testing.T) {
	t.Parallel()

	client, google := newTestClient(t)
	for i := 0; i < 3; i++ {
		if err := client.AppendRow(context.Background(), syncer.Row{}); err != nil {
			t.Fatalf("AppendRow %d: %v", i, err)
		}
	}
	if google.tokenCalls != 1 {
		t.Fatalf("expected one token exchange across appends, got %d", google.tokenCalls)
	}
	if google.appendCalls != 3 {
		t.Fatalf("expected 3 appends, got %d", google.appendCalls)
	}
}

func TestAppendRowRefreshesExpiredToken(t *testing.T) {
	t.Parallel()

	client, google := newTestClient(t)
	if err := client.AppendRow(context.Background(), syncer.Row{}); err != nil {
		t.Fatalf("first AppendRow: %v", err)
	}

	client.mu.Lock()
	client.tokenExpiry = client.now().Add(-time.Minute)
	client.mu.Unlock()

	if err := client.AppendRow(context.Background(), syncer.Row{}); err != nil {
		t.Fatalf("second AppendRow: %v", err)
	}
	if google.tokenCalls != 2 {
		t.Fatalf("expected token refresh after expiry, got %d exchanges", google.tokenCalls)
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Parallel()

	creds := testCredentials(t)
	path := filepath.Join(t.TempDir(), "sheets-credentials.json")
	data, err := json.Marshal(creds)
	if err != nil {
		t.Fatalf("marshal credentials: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}

	loaded, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if loaded.ClientEmail != creds.ClientEmail {
		t.Fatalf("expected client email %q, got %q", creds.ClientEmail, loaded.ClientEmail)
	}

	if _, err := LoadCredentials(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected missing file to error")
	}
}

func TestLoadCredentialsRejectsIncompleteKeyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "partial.json")
	if err := os.WriteFile(path, []byte(`{"client_email":"only@example.com"}`), 0o600); err != nil {
		t.Fatalf("write partial credentials: %v", err)
	}
	if _, err := LoadCredentials(path); err == nil {
		t.Fatalf("expected incomplete credentials to be rejected")
	}
}
