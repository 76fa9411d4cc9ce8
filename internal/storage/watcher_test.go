package storage

import (
	"context"
	"sync"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatchReports_NewReportFires(t *testing.T) {
	fs := tempStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string
	go WatchReports(ctx, fs, quietLogger(), func(kind, path string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, kind+":"+path)
	})
	time.Sleep(100 * time.Millisecond)

	_ = fs.Write("reports/2026-10-14_report.csv", []byte("ignored"))
	_ = fs.Write("reports/2026-10-14_report.json", []byte("{}"))

	eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:reports/2026-10-14_report.json" {
				return true
			}
		}
		return false
	}, "expected created event for the JSON report")

	mu.Lock()
	defer mu.Unlock()
	for _, e := range events {
		if e == "created:reports/2026-10-14_report.csv" {
			t.Errorf("csv report should be ignored, got %v", events)
		}
	}
}
