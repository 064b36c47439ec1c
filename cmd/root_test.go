package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"sweepq/internal/config"
)

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestSingleRun(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1)%5 == 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out, err := execute(t, context.Background(), "-u", srv.URL, "-c", "4", "-n", "20")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits.Load() != 20 {
		t.Errorf("server saw %d requests, want 20", hits.Load())
	}

	for _, want := range []string{
		"with 4 concurrent connections",
		"Total requests: 20",
		"Successful requests: 16 (80.0%)",
		"Failed requests: 4 (20.0%)",
		"Error summary:",
		"HTTP 500: 4",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "Concurrency Comparison") {
		t.Error("single run should not print a sweep comparison")
	}
}

func TestSweepWithExport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Millisecond)
	}))
	defer srv.Close()

	prefix := filepath.Join(t.TempDir(), "sweep")
	out, err := execute(t, context.Background(),
		"--url", srv.URL,
		"--find-optimal",
		"--start", "1", "--max", "3", "--step", "1",
		"--requests", "6",
		"--cooldown", "0s",
		"--out", prefix,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"with 1 concurrent connections",
		"with 2 concurrent connections",
		"with 3 concurrent connections",
		"Waiting 0s before next test...",
		"=== Concurrency Comparison ===",
		"Optimal concurrency level:",
		"Reports saved to",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if n := strings.Count(out, "Waiting"); n != 2 {
		t.Errorf("cooldown printed %d times, want 2", n)
	}

	data, err := os.ReadFile(prefix + ".json")
	if err != nil {
		t.Fatal(err)
	}
	var res struct {
		Found  bool              `json:"found"`
		Rounds []json.RawMessage `json:"rounds"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatal(err)
	}
	if !res.Found || len(res.Rounds) != 3 {
		t.Errorf("export = found %v with %d rounds", res.Found, len(res.Rounds))
	}
	if _, err := os.Stat(prefix + ".csv"); err != nil {
		t.Errorf("csv not written: %v", err)
	}
}

func TestSweepNoOptimal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	out, err := execute(t, context.Background(),
		"-u", srv.URL, "--find-optimal", "--start", "2", "--max", "4", "--step", "2", "-n", "4", "--cooldown", "0s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No optimal concurrency level found with >=95% success rate") {
		t.Errorf("unexpected output\n%s", out)
	}
}

func TestSweepStartAboveMax(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	out, err := execute(t, context.Background(), "-u", srv.URL, "--find-optimal", "--start", "10", "--max", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("server saw %d requests, want none", hits.Load())
	}
	if !strings.Contains(out, "No optimal concurrency level found") {
		t.Errorf("unexpected output\n%s", out)
	}
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{name: "missing url", args: []string{}, want: config.ErrURLRequired},
		{name: "bad scheme", args: []string{"-u", "ftp://example.com"}},
		{name: "zero concurrency", args: []string{"-u", "http://example.com", "-c", "0"}},
		{name: "zero step", args: []string{"-u", "http://example.com", "--find-optimal", "--step", "0"}},
		{name: "too many sweep rounds", args: []string{"-u", "http://example.com", "--find-optimal", "--start", "1", "--max", "2000000000", "--step", "1"}},
		{name: "bad log level", args: []string{"-u", "http://example.com", "--log-level", "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			root := NewRootCmd()
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			root.SetArgs(tt.args)

			err := root.ExecuteContext(context.Background())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if errors.Is(err, errInterrupted) {
				t.Error("config errors must not be reported as interruptions")
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	t.Setenv("SWEEPQ_URL", srv.URL)
	t.Setenv("SWEEPQ_REQUESTS", "7")

	if _, err := execute(t, context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits.Load() != 7 {
		t.Errorf("server saw %d requests, want 7", hits.Load())
	}
}

func TestConfigFile(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "sweepq.yaml")
	body := "url: " + srv.URL + "\nrequests: 3\nconcurrency: 1\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, context.Background(), "--config", path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("server saw %d requests, want 3", hits.Load())
	}

	if _, err := execute(t, context.Background(), "--config", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing config file")
	}
}

func TestInterruptedSweep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	out, err := execute(t, ctx,
		"-u", srv.URL, "--find-optimal", "--start", "1", "--max", "3", "--step", "1", "-n", "2", "--cooldown", "10s")
	if !errors.Is(err, errInterrupted) {
		t.Fatalf("err = %v, want errInterrupted", err)
	}
	if !strings.Contains(out, "Interrupted after 1 completed round(s)") {
		t.Errorf("unexpected output\n%s", out)
	}
	if !strings.Contains(out, "=== Concurrency Comparison ===") {
		t.Errorf("completed rounds should still be compared\n%s", out)
	}
}
