package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cardlab/emv-emulator/internal/cards"
	"github.com/cardlab/emv-emulator/internal/engine"
	"github.com/cardlab/emv-emulator/internal/history"
)

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()

	dir := t.TempDir()
	historyStore, err := history.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { historyStore.Close() })

	cardStore, err := cards.Open(filepath.Join(dir, "cards.db"))
	if err != nil {
		t.Fatalf("open card store: %v", err)
	}
	t.Cleanup(func() { cardStore.Close() })

	eng := engine.New(historyStore, nil, engine.Options{})
	hub := NewHub(eng, cardStore)
	go hub.Run()

	srv := httptest.NewServer(NewServer(hub, eng, historyStore, cardStore).Router())
	t.Cleanup(srv.Close)
	return srv, hub
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var status struct {
		Devices           []SessionInfo `json:"devices"`
		DeviceCount       int           `json:"device_count"`
		CommandsProcessed uint64        `json:"commands_processed"`
		RegisteredAIDs    []string      `json:"registered_aids"`
	}
	getJSON(t, srv.URL+"/v1/status", &status)

	if status.DeviceCount != 0 {
		t.Errorf("device count = %d, want 0", status.DeviceCount)
	}
	if len(status.RegisteredAIDs) == 0 {
		t.Error("no registered AIDs reported")
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var health struct {
		Status string `json:"status"`
	}
	getJSON(t, srv.URL+"/v1/health", &health)
	if health.Status != "ok" {
		t.Errorf("status = %q, want ok", health.Status)
	}
}

func TestVersionEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var version struct {
		Version string `json:"version"`
	}
	getJSON(t, srv.URL+"/v1/version", &version)
	if version.Version == "" {
		t.Error("version is empty")
	}
}

func TestAIDsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var entries []struct {
		AID    string `json:"aid"`
		Name   string `json:"name"`
		Scheme string `json:"scheme"`
	}
	getJSON(t, srv.URL+"/v1/aids", &entries)

	if len(entries) < 4 {
		t.Fatalf("expected at least 4 AID entries, have %d", len(entries))
	}
	found := false
	for _, e := range entries {
		if e.AID == "A0000000031010" {
			found = true
			if e.Name == "" {
				t.Error("visa entry missing name")
			}
		}
	}
	if !found {
		t.Error("visa AID not listed")
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv, hub := newTestServer(t)

	conn := dialTestHub(t, hub)
	if err := conn.WriteJSON(InboundMessage{Type: "apdu_command", Command: "80CA9F3600"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readMessage(t, conn)

	// The history writer is asynchronous.
	deadline := time.Now().Add(2 * time.Second)
	var entries []history.Entry
	for time.Now().Before(deadline) {
		getJSON(t, srv.URL+"/v1/history?limit=10", &entries)
		if len(entries) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one history entry, have %d", len(entries))
	}
	if entries[0].Command != "80CA9F3600" {
		t.Errorf("command = %q", entries[0].Command)
	}
	if !entries[0].Success {
		t.Error("GET DATA for 9F36 should record success")
	}
}

func TestHistoryEndpointBadLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/history?limit=zero")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCardLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"holder_name":"Jane Q Cardholder","pan":"5500005555555559","expiry":"2027-03-31","cvv":123,"issuer_id":"TESTBANK","amount":25.50}`
	resp, err := http.Post(srv.URL+"/cards", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /cards: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var created cards.Card
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("created card has no id")
	}

	var list []cards.Card
	getJSON(t, srv.URL+"/cards", &list)
	if len(list) != 1 {
		t.Fatalf("expected one card, have %d", len(list))
	}

	var got cards.Card
	getJSON(t, srv.URL+"/cards/"+strconv.FormatInt(created.ID, 10), &got)
	if got.PAN != "5500005555555559" {
		t.Errorf("pan = %q", got.PAN)
	}
	if got.HolderName != "Jane Q Cardholder" {
		t.Errorf("holder = %q", got.HolderName)
	}
}

func TestAPDUCommandWithStoredCard(t *testing.T) {
	srv, hub := newTestServer(t)

	body := `{"holder_name":"Stored Card","pan":"4000001234567899","expiry":"2028-12-31"}`
	resp, err := http.Post(srv.URL+"/cards", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /cards: %v", err)
	}
	var created cards.Card
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()

	conn := dialTestHub(t, hub)
	err = conn.WriteJSON(InboundMessage{
		Type:    "apdu_command",
		Command: "00B2010C00",
		CardID:  created.ID,
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readMessage(t, conn)
	if !strings.Contains(msg.Response, "4000001234567899") {
		t.Errorf("record response %q does not carry the stored PAN", msg.Response)
	}
}

func TestCreateCardValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing pan", `{"holder_name":"X","expiry":"2027-03-31"}`},
		{"missing holder", `{"pan":"4111111111111111","expiry":"2027-03-31"}`},
		{"bad expiry", `{"holder_name":"X","pan":"4111111111111111","expiry":"03/27"}`},
		{"not json", `{{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/cards", "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestGetCardNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/cards/9999")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSettingsDefaultScheme(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("config dir override via XDG_CONFIG_HOME is linux-only")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/settings", "application/json",
		strings.NewReader(`{"defaultScheme":"amex"}`))
	if err != nil {
		t.Fatalf("POST /v1/settings: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var saved struct {
		DefaultScheme string `json:"defaultScheme"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if saved.DefaultScheme != "amex" {
		t.Errorf("saved scheme = %q, want amex", saved.DefaultScheme)
	}

	var status struct {
		DefaultScheme string `json:"default_scheme"`
	}
	getJSON(t, srv.URL+"/v1/status", &status)
	if status.DefaultScheme != "amex" {
		t.Errorf("status scheme = %q, want amex", status.DefaultScheme)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/v1/status", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Error("missing CORS allow-origin header")
	}
}
