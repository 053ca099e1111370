package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"location-relay/internal/api"
	"location-relay/internal/database"
)

type fakeUploader struct {
	mu        sync.Mutex
	locations [][]*database.Location
	events    [][]*database.Event
	err       error
	// ack overrides the default of acknowledging every row
	ack     func(ids []string) []string
	onCall  func()
	targets []api.Target
}

func (f *fakeUploader) SaveCoordinates(_ context.Context, target api.Target, rows []*database.Location) ([]string, error) {
	if f.onCall != nil {
		f.onCall()
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.locations = append(f.locations, rows)
	f.targets = append(f.targets, target)
	if f.err != nil {
		return nil, f.err
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	if f.ack != nil {
		return f.ack(ids), nil
	}
	return ids, nil
}

func (f *fakeUploader) SaveEvents(_ context.Context, target api.Target, rows []*database.Event) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, rows)
	f.targets = append(f.targets, target)
	if f.err != nil {
		return nil, f.err
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}

func (f *fakeUploader) locationBatches() [][]*database.Location {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locations
}

func setupStore(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	db.SetIDGenerator(database.NewIDGenerator(func() time.Time { return time.Unix(1700000000, 0) }))

	err = db.SaveSettings(context.Background(), map[string]string{
		database.SettingAPIURL:      "https://example.com/api",
		database.SettingAccessToken: "secret",
		database.SettingUserAgent:   "relay-test",
	})
	require.NoError(t, err)

	return db
}

func insertLocations(t *testing.T, db *database.DB, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := db.InsertLocation(context.Background(), &database.Location{
			AccessToken: "secret",
			Latitude:    fmt.Sprintf("%d", i),
			Longitude:   "0",
		})
		require.NoError(t, err)
	}
}

func insertEvents(t *testing.T, db *database.DB, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := db.InsertEvent(context.Background(), &database.Event{
			AccessToken: "secret",
			Service:     "location tracking",
			Action:      fmt.Sprintf("event %d", i),
		})
		require.NoError(t, err)
	}
}

func countLocations(t *testing.T, db *database.DB) int {
	t.Helper()
	n, err := db.LocationCount(context.Background())
	require.NoError(t, err)
	return n
}

func TestLocationLowWaterMark(t *testing.T) {
	ctx := context.Background()
	db := setupStore(t)
	uploader := &fakeUploader{}
	engine := New(db, uploader, DefaultConfig(), nil)

	insertLocations(t, db, 1)
	assert.False(t, engine.SyncLocations(ctx, false), "one queued location must not trigger an upload")
	engine.Wait()
	assert.Empty(t, uploader.locationBatches())

	insertLocations(t, db, 1)
	assert.True(t, engine.SyncLocations(ctx, false))
	engine.Wait()

	batches := uploader.locationBatches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
	assert.Equal(t, 0, countLocations(t, db))

	assert.Equal(t, api.Target{BaseURL: "https://example.com/api", Token: "secret", UserAgent: "relay-test"}, uploader.targets[0])
}

func TestLocationHighWaterMark(t *testing.T) {
	ctx := context.Background()
	db := setupStore(t)
	uploader := &fakeUploader{}

	cfg := DefaultConfig()
	cfg.MaxDrainRounds = 0
	engine := New(db, uploader, cfg, nil)

	insertLocations(t, db, 45)
	require.True(t, engine.SyncLocations(ctx, false))
	engine.Wait()

	batches := uploader.locationBatches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 30)

	// Oldest rows go first
	assert.Equal(t, "0", batches[0][0].Latitude)
	assert.Equal(t, "29", batches[0][29].Latitude)
	assert.Equal(t, 15, countLocations(t, db))
}

func TestDrainAfterAck(t *testing.T) {
	ctx := context.Background()
	db := setupStore(t)
	uploader := &fakeUploader{}
	engine := New(db, uploader, DefaultConfig(), nil)

	insertLocations(t, db, 75)
	require.True(t, engine.SyncLocations(ctx, false))
	engine.Wait()

	// One triggered batch plus one drain round
	batches := uploader.locationBatches()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 30)
	assert.Len(t, batches[1], 30)
	assert.Equal(t, "30", batches[1][0].Latitude)
	assert.Equal(t, 15, countLocations(t, db))
}

func TestForcedSync(t *testing.T) {
	ctx := context.Background()
	db := setupStore(t)
	uploader := &fakeUploader{}
	engine := New(db, uploader, DefaultConfig(), nil)

	assert.False(t, engine.SyncLocations(ctx, true), "an empty queue has nothing to send")

	insertLocations(t, db, 1)
	assert.True(t, engine.SyncLocations(ctx, true))
	engine.Wait()

	assert.Len(t, uploader.locationBatches(), 1)
	assert.Equal(t, 0, countLocations(t, db))
}

func TestFailedUploadKeepsRows(t *testing.T) {
	ctx := context.Background()
	db := setupStore(t)
	uploader := &fakeUploader{err: &api.HTTPError{StatusCode: 500, Body: "boom"}}
	engine := New(db, uploader, DefaultConfig(), nil)

	previous := 0
	for i := 0; i < 5; i++ {
		insertLocations(t, db, 1)
		engine.SyncLocations(ctx, false)
		engine.Wait()

		count := countLocations(t, db)
		assert.GreaterOrEqual(t, count, previous, "queue shrank without an acknowledgement")
		previous = count
	}

	assert.Equal(t, 5, previous)
	assert.NotEmpty(t, uploader.locationBatches())

	uploader.err = errors.New("connection refused")
	engine.SyncLocations(ctx, true)
	engine.Wait()
	assert.Equal(t, 5, countLocations(t, db))
}

func TestRejectedTokenKeepsRows(t *testing.T) {
	ctx := context.Background()
	db := setupStore(t)
	uploader := &fakeUploader{err: &api.HTTPError{StatusCode: 401, Body: "bad token"}}

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	engine := New(db, uploader, DefaultConfig(), logger)

	insertLocations(t, db, 2)
	require.True(t, engine.SyncLocations(ctx, false))
	engine.Wait()

	assert.Equal(t, 2, countLocations(t, db))
	assert.Contains(t, logs.String(), "Access token rejected")
	assert.Contains(t, logs.String(), "result=unauthorized")
}

func TestServerErrorResult(t *testing.T) {
	ctx := context.Background()
	db := setupStore(t)
	uploader := &fakeUploader{err: &api.HTTPError{StatusCode: 503, Body: "down"}}

	var logs bytes.Buffer
	engine := New(db, uploader, DefaultConfig(), slog.New(slog.NewTextHandler(&logs, nil)))

	insertLocations(t, db, 2)
	engine.SyncLocations(ctx, false)
	engine.Wait()

	assert.Equal(t, 2, countLocations(t, db))
	assert.Contains(t, logs.String(), "result=server_error")
	assert.NotContains(t, logs.String(), "Access token rejected")
}

func TestPartialAck(t *testing.T) {
	ctx := context.Background()
	db := setupStore(t)
	uploader := &fakeUploader{ack: func(ids []string) []string { return ids[:1] }}

	cfg := DefaultConfig()
	cfg.MaxDrainRounds = 0
	engine := New(db, uploader, cfg, nil)

	insertLocations(t, db, 3)
	require.True(t, engine.SyncLocations(ctx, false))
	engine.Wait()

	assert.Equal(t, 2, countLocations(t, db))
}

func TestAckOutsideSnapshotIsIgnored(t *testing.T) {
	ctx := context.Background()
	db := setupStore(t)

	late := &database.Location{ID: "1800000000.000000", Latitude: "late", Longitude: "0"}
	uploader := &fakeUploader{}
	uploader.ack = func(ids []string) []string { return append(ids, late.ID) }
	uploader.onCall = func() {
		// Arrives while the batch is in flight
		assert.NoError(t, db.InsertLocation(ctx, late))
	}

	cfg := DefaultConfig()
	cfg.MaxDrainRounds = 0
	engine := New(db, uploader, cfg, nil)

	insertLocations(t, db, 2)
	require.True(t, engine.SyncLocations(ctx, false))
	engine.Wait()

	remaining, err := db.FirstNLocations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "late", remaining[0].Latitude)
}

func TestOneBatchInFlightPerQueue(t *testing.T) {
	ctx := context.Background()
	db := setupStore(t)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	uploader := &fakeUploader{onCall: func() {
		started <- struct{}{}
		<-release
	}}
	engine := New(db, uploader, DefaultConfig(), nil)

	insertLocations(t, db, 2)
	require.True(t, engine.SyncLocations(ctx, false))
	<-started

	assert.True(t, engine.InFlight("locations"))
	assert.False(t, engine.SyncLocations(ctx, true), "a second trigger must not start a parallel batch")

	close(release)
	engine.Wait()

	assert.False(t, engine.InFlight("locations"))
	assert.Len(t, uploader.locationBatches(), 1)
}

func TestUploadOutlivesCallerContext(t *testing.T) {
	db := setupStore(t)
	uploader := &fakeUploader{}
	engine := New(db, uploader, DefaultConfig(), nil)

	insertLocations(t, db, 2)

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, engine.SyncLocations(ctx, false))
	cancel()
	engine.Wait()

	assert.Equal(t, 0, countLocations(t, db))
}

func TestNotInitialized(t *testing.T) {
	ctx := context.Background()
	db := setupStore(t)
	require.NoError(t, db.DeleteSettings(ctx))

	uploader := &fakeUploader{}
	engine := New(db, uploader, DefaultConfig(), nil)

	insertLocations(t, db, 5)
	assert.False(t, engine.SyncLocations(ctx, false))
	engine.Wait()
	assert.Empty(t, uploader.locationBatches())
	assert.False(t, engine.InFlight("locations"))
}

func TestEventLowWaterMarks(t *testing.T) {
	ctx := context.Background()
	db := setupStore(t)
	uploader := &fakeUploader{}
	engine := New(db, uploader, DefaultConfig(), nil)

	insertEvents(t, db, 4)
	assert.False(t, engine.SyncEvents(ctx, GeofenceEventMark))
	assert.True(t, engine.SyncEvents(ctx, SensitiveEventMark))
	engine.Wait()

	require.Len(t, uploader.events, 1)
	assert.Len(t, uploader.events[0], 4)
	assert.Equal(t, "event 0", uploader.events[0][0].Action)

	count, err := db.EventCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMatchAcked(t *testing.T) {
	snapshot := []string{"1700000000.100000", "1700000000.200000", "1700000000.300000"}

	got := matchAcked(snapshot, []string{"1700000000.1", "1700000000.300000", "1700000000.3", "1900000000.000000", "junk"})
	assert.Equal(t, []string{"1700000000.100000", "1700000000.300000"}, got)

	assert.Empty(t, matchAcked(snapshot, nil))
}
