package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"distributed-bnb/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:2379"}, cfg.EtcdEndpoints)
	assert.Equal(t, 5*time.Second, cfg.EtcdTimeout)
	assert.Equal(t, ":50051", cfg.GrpcListenAddr)
	assert.Equal(t, 1, cfg.WorkerCount)
	assert.Equal(t, domain.Maximize, cfg.SenseValue())
	assert.Equal(t, BackendNone, cfg.CheckpointBackend)
	assert.Nil(t, cfg.BoundStop)

	opts := cfg.DispatcherOptions(mustChecker(t, cfg))
	assert.Nil(t, opts.NodeLimit)
	assert.Nil(t, opts.TimeLimit)
	assert.Equal(t, domain.StrategyBound, opts.Strategy)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := writeConfig(t, `
etcd_endpoints: ["etcd-1:2379", "etcd-2:2379"]
worker_count: 3
sense: minimize
queue_strategy: depth
node_limit: 1000
time_limit: 90s
bound_stop: 12.5
checkpoint_backend: sqlite
sqlite_path: /var/lib/bnb/state.db
checkpoint_schedule: "*/10 * * * * *"
knapsack_capacity: 10
knapsack_items:
  - {name: a, weight: 4, value: 7}
  - {name: b, weight: 6, value: 9}
`)
	t.Setenv("BNB_WORKER_COUNT", "5")
	t.Setenv("BNB_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"etcd-1:2379", "etcd-2:2379"}, cfg.EtcdEndpoints)
	assert.Equal(t, 5, cfg.WorkerCount)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.NotNil(t, cfg.BoundStop)
	assert.Equal(t, 12.5, *cfg.BoundStop)

	checker := mustChecker(t, cfg)
	assert.Equal(t, domain.Minimize, checker.Sense())
	assert.True(t, checker.CutoffIsMet(13))

	opts := cfg.DispatcherOptions(checker)
	require.NotNil(t, opts.NodeLimit)
	assert.Equal(t, int64(1000), *opts.NodeLimit)
	require.NotNil(t, opts.TimeLimit)
	assert.Equal(t, 90*time.Second, *opts.TimeLimit)

	p, err := cfg.Knapsack()
	require.NoError(t, err)
	assert.InDelta(t, 7+9*6.0/6, p.Bound(), 1e-9)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"sense":         "sense: sideways\n",
		"strategy":      "queue_strategy: random\n",
		"workers":       "worker_count: 0\n",
		"backend":       "checkpoint_backend: s3\n",
		"schedule":      "checkpoint_schedule: every now and then\n",
		"sqlite path":   "checkpoint_backend: sqlite\nsqlite_path: \"\"\n",
		"negative gap":  "relative_gap: -0.1\n",
		"log level":     "log_level: loud\n",
		"solve id":      "solve_id: a/b\n",
		"bad item":      "knapsack_items:\n  - {name: x, weight: 0, value: 1}\n",
		"leader ttl":    "leader_election_ttl: 10ms\n",
		"worker uuid":   "worker_uuid: worker-1\n",
		"malformed yml": "worker_count: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	for level, want := range map[string]string{"debug": "DEBUG", "info": "INFO", "warn": "WARN", "error": "ERROR"} {
		cfg := Config{LogLevel: level}
		assert.Equal(t, want, cfg.SlogLevel().String())
	}
}

func mustChecker(t *testing.T, cfg *Config) domain.ConvergenceChecker {
	t.Helper()
	c, err := cfg.Checker()
	require.NoError(t, err)
	return c
}

func TestAdvertiseAddress(t *testing.T) {
	hostname, err := os.Hostname()
	require.NoError(t, err)

	tests := []struct {
		cfg  Config
		want string
	}{
		{cfg: Config{AdvertiseAddr: "dispatcher-0.bnb:50051", GrpcListenAddr: ":50051"}, want: "dispatcher-0.bnb:50051"},
		{cfg: Config{GrpcListenAddr: "10.0.0.5:6000"}, want: "10.0.0.5:6000"},
		{cfg: Config{GrpcListenAddr: ":50051"}, want: hostname + ":50051"},
		{cfg: Config{GrpcListenAddr: "0.0.0.0:7000"}, want: hostname + ":7000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cfg.AdvertiseAddress(), tt.cfg.GrpcListenAddr)
	}
}
