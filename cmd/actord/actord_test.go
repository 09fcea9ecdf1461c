package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enverbisevac/actors/actor"
)

func testConfig(t *testing.T, args ...string) config {
	t.Helper()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	serverFlags(fs)
	require.NoError(t, fs.Parse(args))

	v := newViper()
	require.NoError(t, v.BindPFlags(fs))

	cfg, err := loadConfig(v, "")
	require.NoError(t, err)
	require.NoError(t, cfg.validate())
	return cfg
}

func newTestServer(t *testing.T, args ...string) *httptest.Server {
	t.Helper()

	a := &app{cfg: testConfig(t, args...), log: logr.Discard()}
	handler, closeFn, err := a.handler(context.Background())
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		assert.NoError(t, closeFn())
	})
	return srv
}

func call(t *testing.T, method, url string) (int, actor.Record[Counter]) {
	t.Helper()

	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var rec actor.Record[Counter]
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	}
	return resp.StatusCode, rec
}

func TestUpdateAndGet(t *testing.T) {
	for _, mode := range []string{"split", "index-only"} {
		t.Run(mode, func(t *testing.T) {
			srv := newTestServer(t, "--mode", mode)

			status, rec := call(t, http.MethodPost, srv.URL+"/update/alpha")
			require.Equal(t, http.StatusOK, status)
			assert.Equal(t, 1, rec.Payload.Count)
			assert.Equal(t, "entity", rec.PartitionKey)
			assert.Equal(t, "alpha", rec.RowKey)

			status, rec = call(t, http.MethodGet, srv.URL+"/update/alpha")
			require.Equal(t, http.StatusOK, status)
			assert.Equal(t, 2, rec.Payload.Count)

			status, rec = call(t, http.MethodGet, srv.URL+"/get/alpha")
			require.Equal(t, http.StatusOK, status)
			assert.Equal(t, 2, rec.Payload.Count)
			assert.False(t, rec.Timestamp.IsZero())

			status, rec = call(t, http.MethodGet, srv.URL+"/get/unknown")
			require.Equal(t, http.StatusOK, status)
			assert.Zero(t, rec.Payload.Count)
		})
	}
}

func TestConcurrentUpdates(t *testing.T) {
	srv := newTestServer(t, "--retry-interval", "10ms", "--retry-attempts", "50")

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(srv.URL+"/update/busy", "application/json", nil)
			if assert.NoError(t, err) {
				assert.Equal(t, http.StatusOK, resp.StatusCode)
				_ = resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	status, rec := call(t, http.MethodGet, srv.URL+"/get/busy")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 5, rec.Payload.Count)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, _ := call(t, http.MethodPost, srv.URL+"/update/m")
	require.Equal(t, http.StatusOK, status)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `actors_operations_total{kind="counter",op="hold",outcome="ok"} 1`)
	assert.Contains(t, string(body), `actors_operations_total{kind="counter",op="flush",outcome="ok"} 1`)
}

func TestClientCommands(t *testing.T) {
	srv := newTestServer(t)

	run := func(args ...string) actor.Record[Counter] {
		t.Helper()

		var out bytes.Buffer
		cmd := newRootCommand()
		cmd.SetOut(&out)
		cmd.SetErr(io.Discard)
		cmd.SetArgs(append(args, "--server", srv.URL))
		require.NoError(t, cmd.ExecuteContext(context.Background()))

		var rec actor.Record[Counter]
		require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
		return rec
	}

	assert.Equal(t, 1, run("increment", "cli").Payload.Count)
	assert.Equal(t, 2, run("increment", "cli").Payload.Count)
	assert.Equal(t, 2, run("get", "cli").Payload.Count)
}

func TestServeRejectsUnknownBackend(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"serve", "--lease", "zookeeper"})

	err := cmd.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, `unknown lease backend "zookeeper"`)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("ACTORD_LEASE", "redis")
	t.Setenv("ACTORD_REDIS_ADDR", "cache:6379")
	t.Setenv("ACTORD_RETRY_INTERVAL", "250ms")

	cfg := testConfig(t)
	assert.Equal(t, "redis", cfg.Lease)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.Equal(t, "250ms", cfg.RetryInterval.String())
	assert.Equal(t, "memory", cfg.Index)
}

func TestConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "actord.yaml")
	require.NoError(t, os.WriteFile(file, []byte("index: mongo\nmongo-database: counters\nretry-attempts: 3\n"), 0o600))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	serverFlags(fs)
	require.NoError(t, fs.Parse(nil))
	v := newViper()
	require.NoError(t, v.BindPFlags(fs))

	cfg, err := loadConfig(v, file)
	require.NoError(t, err)
	assert.Equal(t, "mongo", cfg.Index)
	assert.Equal(t, "counters", cfg.MongoDatabase)
	assert.Equal(t, 3, cfg.RetryAttempts)
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig(t)

	bad := cfg
	bad.Lease = "zookeeper"
	assert.ErrorContains(t, bad.validate(), "lease backend")

	bad = cfg
	bad.Index = "sqlite"
	assert.ErrorContains(t, bad.validate(), "index backend")

	bad = cfg
	bad.RetryAttempts = 0
	assert.Error(t, bad.validate())
}

func TestOpenBackendsErrors(t *testing.T) {
	cfg := testConfig(t, "--lease", "postgres")
	_, err := openBackends(context.Background(), cfg)
	assert.ErrorContains(t, err, "postgres-url")

	cfg = testConfig(t, "--mode", "blob")
	_, err = openBackends(context.Background(), cfg)
	assert.Error(t, err)

	cfg = testConfig(t, "--state", "nope://bucket")
	_, err = openBackends(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRedisLeases(t *testing.T) {
	mr := miniredis.RunT(t)
	srv := newTestServer(t, "--lease", "redis", "--redis-addr", mr.Addr())

	for want := 1; want <= 2; want++ {
		status, rec := call(t, http.MethodPost, srv.URL+"/update/r")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, want, rec.Payload.Count)
	}
	assert.True(t, mr.Exists("entitylocks:resources"))
}
