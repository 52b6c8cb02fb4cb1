package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow/config"
)

func TestNew(t *testing.T) {
	assert.NotNil(t, config.New(nil).Raw())
	assert.False(t, config.New(nil).Has("anything"))
}

func TestString(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		key  string
		want string
	}{
		{"key exists", map[string]any{"addr": ":9090"}, "addr", ":9090"},
		{"key missing", map[string]any{"other": "value"}, "addr", "default"},
		{"empty string", map[string]any{"addr": ""}, "addr", ""},
		{"wrong type", map[string]any{"addr": 123}, "addr", "default"},
		{"nested", map[string]any{"server": map[string]any{"addr": ":9090"}}, "server.addr", ":9090"},
		{"nested missing", map[string]any{"server": map[string]any{}}, "server.addr", "default"},
		{"through a scalar", map[string]any{"server": "x"}, "server.addr", "default"},
		{"literal dotted key wins", map[string]any{"server.addr": "a", "server": map[string]any{"addr": "b"}}, "server.addr", "a"},
		{"yaml v2 style map", map[string]any{"server": map[any]any{"addr": ":1"}}, "server.addr", ":1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, config.New(tt.data).String(tt.key, "default"))
		})
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  time.Duration
	}{
		{"string", "2m", 2 * time.Minute},
		{"invalid string", "soon", time.Second},
		{"int seconds", 30, 30 * time.Second},
		{"int64 seconds", int64(5), 5 * time.Second},
		{"float seconds", 1.5, 1500 * time.Millisecond},
		{"duration", 3 * time.Millisecond, 3 * time.Millisecond},
		{"bool", true, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"redis": map[string]any{"lock_ttl": tt.value}})
			assert.Equal(t, tt.want, cfg.Duration("redis.lock_ttl", time.Second))
		})
	}
}

func TestInt64(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int64
	}{
		{"int", 2_000_000, 2_000_000},
		{"int64", int64(45_000_000_000), 45_000_000_000},
		{"uint64", uint64(7), 7},
		{"whole float", 3.0, 3},
		{"fractional float", 3.5, -1},
		{"string", "3", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"amount": tt.value})
			assert.Equal(t, tt.want, cfg.Int64("amount", -1))
			assert.Equal(t, int(tt.want), cfg.Int("amount", -1))
		})
	}
}

func TestBool(t *testing.T) {
	cfg := config.New(map[string]any{"on": true, "text": "true"})
	assert.True(t, cfg.Bool("on", false))
	assert.False(t, cfg.Bool("text", false))
	assert.True(t, cfg.Bool("missing", true))
}

func TestStringSlice(t *testing.T) {
	cfg := config.New(map[string]any{
		"typed": []string{"a.bpmn"},
		"any":   []any{"a.bpmn", "b.bpmn"},
		"mixed": []any{"a.bpmn", 1},
	})
	def := []string{"default"}

	assert.Equal(t, []string{"a.bpmn"}, cfg.StringSlice("typed", def))
	assert.Equal(t, []string{"a.bpmn", "b.bpmn"}, cfg.StringSlice("any", def))
	assert.Equal(t, def, cfg.StringSlice("mixed", def))
	assert.Equal(t, def, cfg.StringSlice("missing", def))
}

func TestSub(t *testing.T) {
	cfg := config.New(map[string]any{
		"redis": map[string]any{"addr": "localhost:6379"},
		"flat":  "x",
	})

	assert.Equal(t, "localhost:6379", cfg.Sub("redis").String("addr", ""))
	assert.Empty(t, cfg.Sub("flat").Raw())
	assert.Empty(t, cfg.Sub("missing").Raw())
}

func TestMerge(t *testing.T) {
	base := config.New(map[string]any{
		"store": map[string]any{"driver": "memory", "path": "a.db"},
		"log":   map[string]any{"level": "info"},
	})
	over := config.New(map[string]any{
		"store": map[string]any{"driver": "sqlite"},
		"log":   "flat",
	})

	merged := base.Merge(over)
	assert.Equal(t, "sqlite", merged.String("store.driver", ""))
	assert.Equal(t, "a.db", merged.String("store.path", ""))
	assert.Equal(t, "flat", merged.String("log", ""))
	assert.Equal(t, "memory", base.String("store.driver", ""), "base is untouched")
}

func TestFromEnv(t *testing.T) {
	cfg := config.FromEnv("ESCROWFLOW_", []string{
		"ESCROWFLOW_STORE__DRIVER=sqlite",
		"ESCROWFLOW_REDIS__LOCK_TTL=30s",
		"ESCROWFLOW_ESCROW__PROCEED_AMOUNT=5000000",
		"ESCROWFLOW_BAD____KEY=x",
		"OTHER_STORE__DRIVER=memory",
		"ESCROWFLOW_NOEQUALS",
	})

	assert.Equal(t, "sqlite", cfg.String("store.driver", ""))
	assert.Equal(t, 30*time.Second, cfg.Duration("redis.lock_ttl", 0))
	assert.Equal(t, "5000000", cfg.String("escrow.proceed_amount", ""))
	assert.False(t, cfg.Has("bad"))
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "escrowflow.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("store:\n  driver: sqlite\n  path: ./escrows.db\n"), 0o600))
	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "./escrows.db", cfg.String("store.path", ""))

	jsonPath := filepath.Join(dir, "escrowflow.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"escrow":{"proceed_amount":3000000}}`), 0o600))
	cfg, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, int64(3_000_000), cfg.Int64("escrow.proceed_amount", 0))

	_, err = config.FromFile(filepath.Join(dir, "escrowflow.toml"))
	assert.Error(t, err)

	tomlPath := filepath.Join(dir, "present.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("x = 1"), 0o600))
	_, err = config.FromFile(tomlPath)
	assert.ErrorContains(t, err, "unsupported")

	_, err = config.FromYAML([]byte("store: [unclosed"))
	assert.Error(t, err)
	_, err = config.FromJSON([]byte("{"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "escrowflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: memory\nlog:\n  level: info\n"), 0o600))

	cfg, err := config.Load(path, []string{"ESCROWFLOW_STORE__DRIVER=sqlite"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.String("store.driver", ""))
	assert.Equal(t, "info", cfg.String("log.level", ""))

	cfg, err = config.Load("", []string{"ESCROWFLOW_LOG__FORMAT=json"})
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.String("log.format", ""))

	_, err = config.Load(filepath.Join(dir, "missing.yaml"), nil)
	assert.Error(t, err)
}
