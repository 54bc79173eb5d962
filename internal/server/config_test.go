package server

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shaunagostinho/globe-radio/internal/grid"
)

func TestLoadConfigYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := "encoder:\n  type: serial\n  serial:\n    port_path: /dev/ttyUSB3\ntuning:\n  fuzziness: 3\n"
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STICKINESS", "7")
	t.Setenv("DATA_DIR", "/srv/globe")

	cfg := LoadConfig(path)
	if cfg.Encoder.Type != "serial" || cfg.Encoder.Serial.PortPath != "/dev/ttyUSB3" {
		t.Fatalf("encoder=%+v", cfg.Encoder)
	}
	if cfg.Encoder.Serial.BaudRate != 115200 {
		t.Fatalf("default baud lost: %d", cfg.Encoder.Serial.BaudRate)
	}
	if cfg.Tuning.Fuzziness != 3 || cfg.Tuning.Stickiness != 7 {
		t.Fatalf("tuning=%+v", cfg.Tuning)
	}
	if got := cfg.StationsPath(); got != "/srv/globe/stations.json" {
		t.Fatalf("StationsPath=%s", got)
	}
	if p := cfg.IndexPaths(); p.Index != "/srv/globe/map.dat" || p.Checksums != "/srv/globe/checksums.json" {
		t.Fatalf("IndexPaths=%+v", p)
	}
}

func TestLoadConfigEnvFile(t *testing.T) {
	dir := t.TempDir()
	env := "# comment\nFUZZINESS=5\nPLAYER_TYPE='mqtt'\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0644); err != nil {
		t.Fatal(err)
	}
	// Registered so the values loadEnvFile sets are cleared afterwards.
	t.Setenv("FUZZINESS", "")
	t.Setenv("PLAYER_TYPE", "")

	cfg := LoadConfig(filepath.Join(dir, "missing.yaml"))
	if cfg.Tuning.Fuzziness != 5 || cfg.Player.Type != "mqtt" {
		t.Fatalf("fuzziness=%d player=%s", cfg.Tuning.Fuzziness, cfg.Player.Type)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"resolution_zero", func(c *Config) { c.Tuning.Resolution = 0 }},
		{"resolution_too_large", func(c *Config) { c.Tuning.Resolution = 1<<16 + 1 }},
		{"fuzziness", func(c *Config) { c.Tuning.Fuzziness = 0 }},
		{"stickiness", func(c *Config) { c.Tuning.Stickiness = -2 }},
		{"encoder_type", func(c *Config) { c.Encoder.Type = "i2c" }},
		{"player_type", func(c *Config) { c.Player.Type = "vlc" }},
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, grid.ErrInvalidConfig) {
				t.Fatalf("err=%v want ErrInvalidConfig", err)
			}
		})
	}
}

func TestUpdateFromJSONPreservesUntouchedFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Encoder.Serial.PortPath = "/dev/custom"
	if err := cfg.UpdateFromJSON([]byte(`{"encoder":{"pollMs":100},"logging":{"enabled":true}}`)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if cfg.Encoder.PollMs != 100 || !cfg.Logging.Enabled {
		t.Fatalf("patch not applied: %+v %+v", cfg.Encoder, cfg.Logging)
	}
	if cfg.Encoder.Serial.PortPath != "/dev/custom" || cfg.Tuning.Stickiness != 3 {
		t.Fatalf("untouched fields changed: port=%s stickiness=%d", cfg.Encoder.Serial.PortPath, cfg.Tuning.Stickiness)
	}
	if err := cfg.UpdateFromJSON([]byte(`not json`)); err == nil {
		t.Fatalf("bad JSON accepted")
	}
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]interface{}{
		"a": map[string]interface{}{"x": 1.0, "y": 2.0},
		"b": "keep",
	}
	deepMerge(dst, map[string]interface{}{
		"a": map[string]interface{}{"y": 3.0},
		"c": true,
	})
	a := dst["a"].(map[string]interface{})
	if a["x"] != 1.0 || a["y"] != 3.0 || dst["b"] != "keep" || dst["c"] != true {
		t.Fatalf("merged=%v", dst)
	}
}

func TestSaveConcurrentWithUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := LoadConfig(path)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := cfg.Save(); err != nil {
				t.Errorf("save: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := cfg.UpdateFromJSON([]byte(`{"tuning":{"stickiness":5}}`)); err != nil {
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()

	if err := cfg.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := LoadConfig(path); got.Tuning.Stickiness != 5 {
		t.Fatalf("reloaded stickiness=%d want 5", got.Tuning.Stickiness)
	}
}

func TestLoadConfigDefaultsPath(t *testing.T) {
	if cfg := LoadConfig(""); cfg.path != DefaultConfigPath {
		t.Fatalf("path=%q want %q", cfg.path, DefaultConfigPath)
	}
}
