package cmd

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fakeAPI stands in for the Lambda Labs API: a local server the real
// client talks to over HTTP.
func fakeAPI(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LAMBDA_API_KEY", "test-key")
	t.Setenv("LAMBDA_API_URL", srv.URL)
	return srv
}

func runCommand(t *testing.T, args ...string) error {
	t.Helper()
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

const offersWithCapacity = `{"data": {
	"gpu_8x_h100": {
		"instance_type": {
			"description": "8x NVIDIA H100",
			"price_cents_per_hour": 2400,
			"specs": {"vcpus": 208, "memory_gib": 1800, "storage_gib": 26000}
		},
		"regions_with_capacity_available": [{"name": "us-east-1", "description": "Virginia"}]
	}
}}`

func TestBareInvocationValidatesKey(t *testing.T) {
	var gotAuth atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/instances", func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		io.WriteString(w, `{"data": []}`)
	})
	fakeAPI(t, mux)

	if err := runCommand(t); err != nil {
		t.Fatalf("bare invocation: %v", err)
	}
	if auth, _ := gotAuth.Load().(string); auth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want %q", auth, "Bearer test-key")
	}
}

func TestBareInvocationRejectedKey(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/instances", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error": {"code": "global/invalid-api-key", "message": "API key is invalid"}}`)
	})
	fakeAPI(t, mux)

	if err := runCommand(t); err == nil {
		t.Fatal("expected error for rejected key")
	}
}

func TestMissingAPIKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LAMBDA_API_KEY", "")

	if err := runCommand(t); err == nil {
		t.Fatal("expected error when LAMBDA_API_KEY is unset")
	}
}

func TestRunningCommand(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/instances", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data": [{"id": "i-1", "status": "active", "ip": "192.0.2.7", "ssh_key_names": ["my-key"]}]}`)
	})
	fakeAPI(t, mux)

	if err := runCommand(t, "running"); err != nil {
		t.Fatalf("running: %v", err)
	}
}

func TestListCommand(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/instances", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data": []}`)
	})
	mux.HandleFunc("/instance-types", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, offersWithCapacity)
	})
	fakeAPI(t, mux)

	if err := runCommand(t, "list"); err != nil {
		t.Fatalf("list: %v", err)
	}
}

func TestStopCommand(t *testing.T) {
	var terminated atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/instances", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data": []}`)
	})
	mux.HandleFunc("/instance-operations/terminate", func(w http.ResponseWriter, r *http.Request) {
		terminated.Store(true)
		io.WriteString(w, `{"data": {"terminated_instances": [{"id": "i-1", "status": "terminating"}]}}`)
	})
	fakeAPI(t, mux)

	if err := runCommand(t, "stop", "--gpu", "i-1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !terminated.Load() {
		t.Error("terminate endpoint was never called")
	}
}

func TestFindWatchOnlyNeverLaunches(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/instances", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data": []}`)
	})
	mux.HandleFunc("/instance-types", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, offersWithCapacity)
	})
	mux.HandleFunc("/instance-operations/launch", func(w http.ResponseWriter, r *http.Request) {
		t.Error("watch-only find issued a launch request")
	})
	fakeAPI(t, mux)

	if err := runCommand(t, "find", "--gpu", "gpu_8x_h100"); err != nil {
		t.Fatalf("find (watch-only): %v", err)
	}
}

func TestFindStartsInstance(t *testing.T) {
	restoreInterval, restoreTimeout := activePollInterval, activeWaitTimeout
	activePollInterval, activeWaitTimeout = time.Millisecond, 50*time.Millisecond
	t.Cleanup(func() {
		activePollInterval, activeWaitTimeout = restoreInterval, restoreTimeout
	})

	var launches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/instances", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data": []}`)
	})
	mux.HandleFunc("/instances/i-7", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data": {"id": "i-7", "status": "active", "ip": "192.0.2.9"}}`)
	})
	mux.HandleFunc("/instance-types", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, offersWithCapacity)
	})
	mux.HandleFunc("/instance-operations/launch", func(w http.ResponseWriter, r *http.Request) {
		launches.Add(1)
		io.WriteString(w, `{"data": {"instance_ids": ["i-7"]}}`)
	})
	fakeAPI(t, mux)

	if err := runCommand(t, "find", "--gpu", "gpu_8x_h100", "--ssh", "my-key"); err != nil {
		t.Fatalf("find: %v", err)
	}
	if got := launches.Load(); got != 1 {
		t.Errorf("launches = %d, want exactly 1", got)
	}
}

func TestFindUnknownTypeFailsFast(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/instances", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data": []}`)
	})
	mux.HandleFunc("/instance-types", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data": {}}`)
	})
	fakeAPI(t, mux)

	start := time.Now()
	if err := runCommand(t, "find", "--gpu", "gpu_512x_z9000"); err == nil {
		t.Fatal("expected error for unknown instance type")
	}
	// Fatal errors must not wait out even one poll interval.
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("find took %s to fail on a fatal error", elapsed)
	}
}
