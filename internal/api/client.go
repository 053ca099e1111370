// Package api uploads queued rows to the remote logging server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"location-relay/internal/database"
)

const (
	SaveCoordinatesPath = "/gps-coordinates/save-coordinates"
	SaveEventPath       = "/logging/save-event"
)

// Target identifies the server and credentials for one upload. It is read
// from settings before each batch so a re-initialize takes effect
// immediately.
type Target struct {
	BaseURL   string
	Token     string
	UserAgent string
}

// Client posts batches to the upload API
type Client struct {
	httpClient   *http.Client
	logger       *slog.Logger
	newRequestID func() string
}

// NewClient creates a new upload client. A nil httpClient uses
// http.DefaultClient, which has no request timeout.
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:   httpClient,
		logger:       logger,
		newRequestID: uuid.NewString,
	}
}

// CoordinateRow is a location as the server expects it
type CoordinateRow struct {
	ClientDatabaseID string `json:"client_database_id"`
	AccessToken      string `json:"access_token"`
	Latitude         string `json:"latitude"`
	Longitude        string `json:"longitude"`
	OtherData        string `json:"other_data"`
	CreateDate       string `json:"create_date"`
}

// EventRow is an event as the server expects it
type EventRow struct {
	ClientDatabaseID string          `json:"client_database_id"`
	AccessToken      string          `json:"access_token"`
	Service          string          `json:"service"`
	Action           string          `json:"action"`
	Objects          json.RawMessage `json:"objects"`
	CreateDate       string          `json:"create_date"`
}

type coordinatesRequest struct {
	Token       string          `json:"token"`
	Coordinates []CoordinateRow `json:"coordinates"`
}

type eventsRequest struct {
	Token  string     `json:"token"`
	Events []EventRow `json:"events"`
}

// NewCoordinateRow converts a stored location
func NewCoordinateRow(loc *database.Location) CoordinateRow {
	return CoordinateRow{
		ClientDatabaseID: loc.ID,
		AccessToken:      loc.AccessToken,
		Latitude:         loc.Latitude,
		Longitude:        loc.Longitude,
		OtherData:        string(loc.OtherData),
		CreateDate:       loc.CreateDate,
	}
}

// NewEventRow converts a stored event
func NewEventRow(ev *database.Event) EventRow {
	objects := ev.Objects
	if len(objects) == 0 {
		objects = json.RawMessage(`{}`)
	}
	return EventRow{
		ClientDatabaseID: ev.ID,
		AccessToken:      ev.AccessToken,
		Service:          ev.Service,
		Action:           ev.Action,
		Objects:          objects,
		CreateDate:       ev.CreateDate,
	}
}

// SaveCoordinates uploads a batch of locations and returns the ids the
// server acknowledged
func (c *Client) SaveCoordinates(ctx context.Context, target Target, locations []*database.Location) ([]string, error) {
	rows := make([]CoordinateRow, len(locations))
	for i, loc := range locations {
		rows[i] = NewCoordinateRow(loc)
	}

	return c.post(ctx, target, SaveCoordinatesPath, coordinatesRequest{Token: target.Token, Coordinates: rows}, len(rows))
}

// SaveEvents uploads a batch of events and returns the ids the server
// acknowledged
func (c *Client) SaveEvents(ctx context.Context, target Target, events []*database.Event) ([]string, error) {
	rows := make([]EventRow, len(events))
	for i, ev := range events {
		rows[i] = NewEventRow(ev)
	}

	return c.post(ctx, target, SaveEventPath, eventsRequest{Token: target.Token, Events: rows}, len(rows))
}

func (c *Client) post(ctx context.Context, target Target, path string, payload any, rows int) ([]string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(target.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := c.newRequestID()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if target.UserAgent != "" {
		req.Header.Set("User-Agent", target.UserAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("upload request failed", "path", path, "request_id", requestID, "error", err, "duration_ms", duration.Milliseconds())
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Info("upload_request", "path", path, "request_id", requestID, "rows", rows, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	return parseAck(respBody)
}

type ackResponse struct {
	IDsSaved []json.RawMessage `json:"ids_saved"`
}

// parseAck extracts ids_saved. Ids may arrive as strings or numbers; numbers
// keep their literal text.
func parseAck(body []byte) ([]string, error) {
	var ack ackResponse
	if err := json.Unmarshal(body, &ack); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	ids := make([]string, 0, len(ack.IDsSaved))
	for _, raw := range ack.IDsSaved {
		raw = bytes.TrimSpace(raw)
		switch {
		case len(raw) > 0 && raw[0] == '"':
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
			}
			ids = append(ids, s)
		case json.Valid(raw) && isNumber(raw[0]):
			ids = append(ids, string(raw))
		default:
			return nil, fmt.Errorf("%w: unexpected id %s", ErrMalformedResponse, raw)
		}
	}

	return ids, nil
}

func isNumber(first byte) bool {
	return first == '-' || (first >= '0' && first <= '9')
}
