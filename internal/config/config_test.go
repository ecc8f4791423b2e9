package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tiemma/sonic-distribute/internal/logger"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return path
}

func TestLoadFileYAML(t *testing.T) {
	content := `
run:
  workers: 4
  shutdown_stagger: 50ms
  mode: goroutine
  log_level: debug
  quiet: true
  status_addr: ":9090"
  params:
    dir: ./testdata
`
	cfg, err := LoadFile(writeFile(t, "config.yaml", content))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Run.Workers != 4 {
		t.Errorf("expected workers 4, got %d", cfg.Run.Workers)
	}
	if cfg.Run.Mode != ModeGoroutine {
		t.Errorf("expected mode goroutine, got '%s'", cfg.Run.Mode)
	}
	if cfg.Run.Params["dir"] != "./testdata" {
		t.Errorf("expected dir param, got %v", cfg.Run.Params)
	}
	if !cfg.Run.Quiet {
		t.Error("expected quiet to be enabled")
	}
}

func TestLoadFileJSON(t *testing.T) {
	content := `{
  "run": {
    "workers": 2,
    "mode": "process",
    "params": {"double": "true"}
  }
}`
	cfg, err := LoadFile(writeFile(t, "config.json", content))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Run.Workers != 2 {
		t.Errorf("expected workers 2, got %d", cfg.Run.Workers)
	}
	if cfg.Run.Params["double"] != "true" {
		t.Errorf("expected double param, got %v", cfg.Run.Params)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := LoadFile("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFileUnsupportedFormat(t *testing.T) {
	_, err := LoadFile(writeFile(t, "config.txt", "test"))
	if err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoadFileInvalidYAML(t *testing.T) {
	_, err := LoadFile(writeFile(t, "config.yaml", "run: [unclosed"))
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestToSettings(t *testing.T) {
	cfg := &FileConfig{
		Run: RunConfig{
			Workers:         8,
			ShutdownStagger: "250ms",
			Mode:            "goroutine",
			LogLevel:        "warn",
			StatusAddr:      ":8080",
			Params:          map[string]string{"dir": "/data"},
		},
	}

	settings, err := cfg.ToSettings()
	if err != nil {
		t.Fatalf("failed to convert config: %v", err)
	}

	if settings.NumWorkers != 8 {
		t.Errorf("expected 8 workers, got %d", settings.NumWorkers)
	}
	if settings.ShutdownStagger != 250*time.Millisecond {
		t.Errorf("expected 250ms stagger, got %v", settings.ShutdownStagger)
	}
	if !settings.InProcess {
		t.Error("expected goroutine mode")
	}
	if settings.LogLevel != logger.LevelWarn {
		t.Errorf("expected warn level, got %v", settings.LogLevel)
	}
	if settings.StatusAddr != ":8080" {
		t.Errorf("expected :8080, got %s", settings.StatusAddr)
	}
	if settings.Params["dir"] != "/data" {
		t.Errorf("expected dir param, got %v", settings.Params)
	}

	// 変換後の変更は元の設定に影響しない
	settings.Params["dir"] = "changed"
	if cfg.Run.Params["dir"] != "/data" {
		t.Error("expected params to be copied")
	}
}

func TestToSettingsDefaults(t *testing.T) {
	settings, err := (&FileConfig{}).ToSettings()
	if err != nil {
		t.Fatalf("failed to convert config: %v", err)
	}

	defaults := DefaultSettings()
	if settings.NumWorkers != defaults.NumWorkers {
		t.Errorf("expected default workers, got %d", settings.NumWorkers)
	}
	if settings.ShutdownStagger != 100*time.Millisecond {
		t.Errorf("expected 100ms stagger, got %v", settings.ShutdownStagger)
	}
	if settings.InProcess {
		t.Error("expected process mode by default")
	}
	if settings.LogLevel != logger.LevelInfo {
		t.Errorf("expected info level, got %v", settings.LogLevel)
	}
}

func TestToSettingsInvalid(t *testing.T) {
	tests := []struct {
		name string
		run  RunConfig
	}{
		{"invalid stagger", RunConfig{ShutdownStagger: "soon"}},
		{"invalid mode", RunConfig{Mode: "cluster"}},
		{"invalid log level", RunConfig{LogLevel: "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &FileConfig{Run: tt.run}
			if _, err := cfg.ToSettings(); err == nil {
				t.Error("expected conversion error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		config   FileConfig
		hasError bool
	}{
		{
			name:     "valid config",
			config:   FileConfig{},
			hasError: false,
		},
		{
			name: "negative workers",
			config: FileConfig{
				Run: RunConfig{Workers: -1},
			},
			hasError: true,
		},
		{
			name: "negative stagger",
			config: FileConfig{
				Run: RunConfig{ShutdownStagger: "-1s"},
			},
			hasError: true,
		},
		{
			name: "unknown mode",
			config: FileConfig{
				Run: RunConfig{Mode: "threads"},
			},
			hasError: true,
		},
		{
			name: "unknown log level",
			config: FileConfig{
				Run: RunConfig{LogLevel: "verbose"},
			},
			hasError: true,
		},
		{
			name: "process mode",
			config: FileConfig{
				Run: RunConfig{Mode: "PROCESS", LogLevel: "error"},
			},
			hasError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.hasError && err == nil {
				t.Error("expected validation error")
			}
			if !tt.hasError && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "run.yml", "run:\n  workers: 3\n  mode: goroutine\n")
	settings, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load settings: %v", err)
	}
	if settings.NumWorkers != 3 || !settings.InProcess {
		t.Errorf("unexpected settings: %+v", settings)
	}

	bad := writeFile(t, "bad.yml", "run:\n  workers: -2\n")
	if _, err := Load(bad); err == nil {
		t.Error("expected validation error")
	}
}
