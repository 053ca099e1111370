package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sebdah/goldie/v2"

	"location-relay/internal/database"
)

type capturedRequest struct {
	path    string
	headers http.Header
	body    []byte
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, *capturedRequest) {
	t.Helper()

	captured := &capturedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		captured.path = r.URL.Path
		captured.headers = r.Header.Clone()
		captured.body, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)

	return server, captured
}

func newTestClient(server *httptest.Server) *Client {
	client := NewClient(server.Client(), nil)
	client.newRequestID = func() string { return "req-1" }
	return client
}

// prettyBody re-encodes a request body with sorted keys for golden comparison
func prettyBody(t *testing.T, body []byte) []byte {
	t.Helper()

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("Request body is not JSON: %v", err)
	}
	pretty, err := json.MarshalIndent(decoded, "", "  ")
	if err != nil {
		t.Fatalf("Failed to re-encode body: %v", err)
	}
	return pretty
}

func TestSaveCoordinates(t *testing.T) {
	server, captured := newTestServer(t, http.StatusOK, `{"ids_saved": ["1700000000.000001", 1700000000.000002]}`)
	client := newTestClient(server)

	locations := []*database.Location{
		{
			ID:          "1700000000.000001",
			AccessToken: "secret",
			Latitude:    "43.0731",
			Longitude:   "-89.4012",
			OtherData:   json.RawMessage(`{"hacc":5.5,"spd":1.25,"idim":0,"ii":1,"ipsm":0,"iibo":-1,"ic":1}`),
			CreateDate:  "1700000000.000001",
		},
		{
			ID:          "1700000000.000002",
			AccessToken: "secret",
			Latitude:    "43.0766",
			Longitude:   "-89.4125",
			CreateDate:  "1700000000.000002",
		},
	}

	target := Target{BaseURL: server.URL + "/api/", Token: "secret", UserAgent: "relay-test/1.0"}
	ids, err := client.SaveCoordinates(context.Background(), target, locations)
	if err != nil {
		t.Fatalf("SaveCoordinates failed: %v", err)
	}

	if len(ids) != 2 || ids[0] != "1700000000.000001" || ids[1] != "1700000000.000002" {
		t.Errorf("Expected both ids acknowledged, got %v", ids)
	}

	if captured.path != "/api"+SaveCoordinatesPath {
		t.Errorf("Expected path /api%s, got %s", SaveCoordinatesPath, captured.path)
	}
	if ua := captured.headers.Get("User-Agent"); ua != "relay-test/1.0" {
		t.Errorf("Expected User-Agent relay-test/1.0, got %s", ua)
	}
	if id := captured.headers.Get("X-Request-Id"); id != "req-1" {
		t.Errorf("Expected X-Request-Id req-1, got %s", id)
	}
	if ct := captured.headers.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", ct)
	}

	g := goldie.New(t)
	g.Assert(t, "save_coordinates_request", prettyBody(t, captured.body))
}

func TestSaveEvents(t *testing.T) {
	server, captured := newTestServer(t, http.StatusOK, `{"ids_saved": ["1700000000.000003"]}`)
	client := newTestClient(server)

	events := []*database.Event{
		{
			ID:          "1700000000.000003",
			AccessToken: "secret",
			Service:     "location tracking",
			Action:      "entering geofence",
			Objects:     json.RawMessage(`{"activated_geofence_place_ids":"home,park"}`),
			CreateDate:  "1700000000.000003",
		},
		{
			ID:          "1700000000.000004",
			AccessToken: "secret",
			Service:     "location tracking",
			Action:      "changing monitoring or permissions status",
			CreateDate:  "1700000000.000004",
		},
	}

	ids, err := client.SaveEvents(context.Background(), Target{BaseURL: server.URL, Token: "secret"}, events)
	if err != nil {
		t.Fatalf("SaveEvents failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "1700000000.000003" {
		t.Errorf("Expected one acknowledged id, got %v", ids)
	}

	if captured.path != SaveEventPath {
		t.Errorf("Expected path %s, got %s", SaveEventPath, captured.path)
	}
	if ua := captured.headers.Get("User-Agent"); ua == "relay-test/1.0" {
		t.Errorf("Expected default User-Agent when none configured, got %s", ua)
	}

	g := goldie.New(t)
	g.Assert(t, "save_event_request", prettyBody(t, captured.body))
}

func TestSaveCoordinatesServerError(t *testing.T) {
	server, _ := newTestServer(t, http.StatusServiceUnavailable, `maintenance`)
	client := newTestClient(server)

	_, err := client.SaveCoordinates(context.Background(), Target{BaseURL: server.URL}, []*database.Location{{ID: "1"}})
	if err == nil {
		t.Fatal("Expected error for 503 response")
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected *HTTPError, got %T", err)
	}
	if httpErr.StatusCode != http.StatusServiceUnavailable || httpErr.Body != "maintenance" {
		t.Errorf("Expected 503 maintenance, got %d %s", httpErr.StatusCode, httpErr.Body)
	}
	if !IsServerError(err) {
		t.Error("Expected IsServerError to return true for 503")
	}
}

func TestSaveEventsMalformedAck(t *testing.T) {
	for _, body := range []string{`not json`, `{"ids_saved": [true]}`, `{"ids_saved": [null]}`} {
		server, _ := newTestServer(t, http.StatusOK, body)
		client := newTestClient(server)

		_, err := client.SaveEvents(context.Background(), Target{BaseURL: server.URL}, []*database.Event{{ID: "1"}})
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("Expected ErrMalformedResponse for %q, got %v", body, err)
		}
	}
}

func TestSaveCoordinatesNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(nil, nil)
	_, err := client.SaveCoordinates(context.Background(), Target{BaseURL: url}, []*database.Location{{ID: "1"}})
	if err == nil {
		t.Fatal("Expected error when server is unreachable")
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		t.Errorf("Expected transport error, got HTTP status %d", httpErr.StatusCode)
	}
}

func TestHTTPErrorHelpers(t *testing.T) {
	if !IsUnauthorized(&HTTPError{StatusCode: 401, Body: "Unauthorized"}) {
		t.Error("Expected IsUnauthorized to return true for 401")
	}
	if IsServerError(&HTTPError{StatusCode: 400, Body: "Bad Request"}) {
		t.Error("Expected IsServerError to return false for 400")
	}
}
