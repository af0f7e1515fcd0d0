package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/capgo-event-probe/internal/config"
	"github.com/PratikDhanave/capgo-event-probe/internal/httpserver"
	"github.com/PratikDhanave/capgo-event-probe/internal/models"
	"github.com/PratikDhanave/capgo-event-probe/internal/probe"
	"github.com/PratikDhanave/capgo-event-probe/internal/store"
)

func startStub(t *testing.T, mode string) (string, *store.MemoryStore) {
	t.Helper()
	cfg := config.Default()
	cfg.CapgKey = "stub-key"
	cfg.Stub.Mode = mode
	st := store.NewMemoryStore()
	srv := httptest.NewServer(httpserver.NewRouter(cfg, st))
	t.Cleanup(srv.Close)
	return srv.URL + "/private/events", st
}

func probeArgs(url string, extra ...string) []string {
	args := []string{
		"--url", url,
		"--capgkey", "stub-key",
		"--timeout", "200ms",
		"--retries", "1",
		"--retry-wait-min", "1ms",
		"--retry-wait-max", "2ms",
		"--log-level", "warn",
	}
	return append(args, extra...)
}

func TestExecute_ExitsZeroOnEveryOutcome(t *testing.T) {
	for _, mode := range []string{
		config.StubModeOK,
		config.StubModeStatus,
		config.StubModeMalformed,
		config.StubModeHang,
	} {
		t.Run(mode, func(t *testing.T) {
			url, st := startStub(t, mode)

			start := time.Now()
			code := execute(context.Background(), probeArgs(url))
			assert.Equal(t, 0, code)
			assert.Less(t, time.Since(start), 5*time.Second)
			assert.NotEmpty(t, st.Events())
		})
	}
}

func TestExecute_RunSubcommand(t *testing.T) {
	url, st := startStub(t, config.StubModeOK)

	code := execute(context.Background(), append([]string{"run"}, probeArgs(url)...))
	assert.Equal(t, 0, code)
	assert.Len(t, st.Events(), 1)
}

func TestExecute_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/private/events"
	srv.Close()

	assert.Equal(t, 0, execute(context.Background(), probeArgs(url)))
}

func TestExecute_ConfigFile(t *testing.T) {
	url, st := startStub(t, config.StubModeOK)

	path := filepath.Join(t.TempDir(), "probe.toml")
	content := "url = \"" + url + "\"\ncapgkey = \"stub-key\"\ntimeout_ms = 200\nretries = 0\nlog_level = \"warn\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	assert.Equal(t, 0, execute(context.Background(), []string{"--config", path}))
	assert.Len(t, st.Events(), 1)
}

func TestExecute_CommandErrorsExitOne(t *testing.T) {
	cases := map[string][]string{
		"unknown flag":    {"--nope"},
		"bad retries":     {"--retries", "many"},
		"invalid timeout": {"--timeout", "0s"},
		"relative url":    {"--url", "/private/events"},
		"missing config":  {"--config", filepath.Join(t.TempDir(), "absent.toml")},
		"stray argument":  {"now"},
		"bad stub mode":   {"serve", "--mode", "sometimes"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, 1, execute(context.Background(), args))
		})
	}
}

func TestExecute_BadEnvExitsOne(t *testing.T) {
	t.Setenv("PROBE_RETRIES", "abc")

	assert.Equal(t, 1, execute(context.Background(), []string{}))
}

func TestRootCmd_HelpNamesExitCodes(t *testing.T) {
	root := newRootCmd(&options{})
	assert.Contains(t, root.Long, "exits 0")
	assert.Contains(t, root.Long, "exit code is 1 only when the command cannot start")
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func serveArgs(addr, mode string) []string {
	return []string{"serve", "--addr", addr, "--mode", mode, "--capgkey", "stub-key", "--log-level", "warn"}
}

func waitHealthy(t *testing.T, base string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServe_StopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, 0, execute(ctx, serveArgs(freeAddr(t), config.StubModeOK)))
}

func TestServe_AnswersThenShutsDown(t *testing.T) {
	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	go func() {
		done <- execute(ctx, serveArgs(addr, config.StubModeOK))
	}()
	waitHealthy(t, "http://"+addr)

	code := execute(context.Background(), probeArgs("http://"+addr+"/private/events"))
	assert.Equal(t, 0, code)

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestServe_CutsHangingRequestsOnShutdown(t *testing.T) {
	prev := shutdownTimeout
	shutdownTimeout = 50 * time.Millisecond
	t.Cleanup(func() { shutdownTimeout = prev })

	addr := freeAddr(t)
	base := "http://" + addr
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	go func() {
		done <- execute(ctx, serveArgs(addr, config.StubModeHang))
	}()
	waitHealthy(t, base)

	reqErr := make(chan error, 1)
	go func() {
		req, err := http.NewRequest(http.MethodPost, base+"/private/events", strings.NewReader(`{"event":"test_event"}`))
		if err != nil {
			reqErr <- err
			return
		}
		req.Header.Set("capgkey", "stub-key")
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
		}
		reqErr <- err
	}()

	// The hang handler records the event before it blocks.
	require.Eventually(t, func() bool {
		req, err := http.NewRequest(http.MethodGet, base+"/private/stats?event=test_event", nil)
		if err != nil {
			return false
		}
		req.Header.Set("capgkey", "stub-key")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var ec models.EventCount
		if err := json.NewDecoder(resp.Body).Decode(&ec); err != nil {
			return false
		}
		return ec.Count == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop while a request was hanging")
	}
	select {
	case err := <-reqErr:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("hanging request was not cut")
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(probe.Outcome{}))
	assert.Equal(t, 0, exitCode(probe.Outcome{Kind: probe.KindTimeout, Err: context.DeadlineExceeded}))
}
