package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"location-relay/internal/database"
)

type countingMaintainer struct {
	runs atomic.Int32
}

func (m *countingMaintainer) PerformMaintenance(context.Context) {
	m.runs.Add(1)
}

type memorySettings map[string]string

func (s memorySettings) GetSetting(_ context.Context, key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}

type failingSettings struct{}

func (failingSettings) GetSetting(context.Context, string) (string, bool, error) {
	return "", false, errors.New("database is locked")
}

func setupWorkerTest(t *testing.T, settings Settings) (*Worker, *countingMaintainer) {
	t.Helper()

	maintainer := &countingMaintainer{}
	worker := NewWorker(maintainer, settings)
	worker.minInterval = time.Millisecond

	return worker, maintainer
}

func TestRunOnce(t *testing.T) {
	worker, maintainer := setupWorkerTest(t, memorySettings{
		database.SettingAPIURL: "https://example.com/api",
	})

	if !worker.RunOnce(context.Background()) {
		t.Error("Expected maintenance to run")
	}
	if maintainer.runs.Load() != 1 {
		t.Errorf("Expected 1 run, got %d", maintainer.runs.Load())
	}
}

func TestRunOnce_NotInitialized(t *testing.T) {
	worker, maintainer := setupWorkerTest(t, memorySettings{})

	if worker.RunOnce(context.Background()) {
		t.Error("Expected maintenance to be skipped without settings")
	}
	if maintainer.runs.Load() != 0 {
		t.Errorf("Expected no runs, got %d", maintainer.runs.Load())
	}
}

func TestRunOnce_SettingsError(t *testing.T) {
	worker, maintainer := setupWorkerTest(t, failingSettings{})

	if worker.RunOnce(context.Background()) {
		t.Error("Expected maintenance to be skipped when settings cannot be read")
	}
	if maintainer.runs.Load() != 0 {
		t.Errorf("Expected no runs, got %d", maintainer.runs.Load())
	}
}

func TestInterval(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		want     time.Duration
	}{
		{"unset", memorySettings{}, DefaultInterval},
		{"configured", memorySettings{database.SettingTrackingFrequencyMS: "60000"}, time.Minute},
		{"garbage", memorySettings{database.SettingTrackingFrequencyMS: "often"}, DefaultInterval},
		{"zero", memorySettings{database.SettingTrackingFrequencyMS: "0"}, DefaultInterval},
		{"negative", memorySettings{database.SettingTrackingFrequencyMS: "-5"}, DefaultInterval},
		{"read error", failingSettings{}, DefaultInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			worker, _ := setupWorkerTest(t, tt.settings)
			if got := worker.Interval(context.Background()); got != tt.want {
				t.Errorf("Expected interval %v, got %v", tt.want, got)
			}
		})
	}
}

func TestInterval_Minimum(t *testing.T) {
	worker := NewWorker(&countingMaintainer{}, memorySettings{database.SettingTrackingFrequencyMS: "1"})

	if got := worker.Interval(context.Background()); got != time.Second {
		t.Errorf("Expected interval to be raised to 1s, got %v", got)
	}
}

func TestStart_RunsRepeatedly(t *testing.T) {
	worker, maintainer := setupWorkerTest(t, memorySettings{
		database.SettingAPIURL:              "https://example.com/api",
		database.SettingTrackingFrequencyMS: "5",
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.Start(ctx)
	}()

	deadline := time.After(time.Second)
	for maintainer.runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("Expected at least 3 runs, got %d", maintainer.runs.Load())
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestStart_Cancellation(t *testing.T) {
	worker, maintainer := setupWorkerTest(t, memorySettings{
		database.SettingAPIURL: "https://example.com/api",
	})

	ctx, cancel := context.WithCancel(context.Background())

	// Start worker in goroutine
	done := make(chan error, 1)
	go func() {
		done <- worker.Start(ctx)
	}()

	// Let it run briefly
	time.Sleep(50 * time.Millisecond)

	// Cancel and wait
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled error, got %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Worker did not stop after context cancellation")
	}

	// The default interval is far longer than the test
	if maintainer.runs.Load() != 1 {
		t.Errorf("Expected exactly 1 run, got %d", maintainer.runs.Load())
	}
}
