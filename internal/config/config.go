package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tiemma/sonic-distribute/internal/logger"
)

// 実行モード
const (
	ModeProcess   = "process"
	ModeGoroutine = "goroutine"
)

const defaultShutdownStagger = 100 * time.Millisecond

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Run RunConfig `yaml:"run" json:"run"`
}

// RunConfig は実行設定
type RunConfig struct {
	Workers         int               `yaml:"workers" json:"workers"`
	ShutdownStagger string            `yaml:"shutdown_stagger" json:"shutdown_stagger"`
	Mode            string            `yaml:"mode" json:"mode"`
	LogLevel        string            `yaml:"log_level" json:"log_level"`
	Quiet           bool              `yaml:"quiet" json:"quiet"`
	StatusAddr      string            `yaml:"status_addr" json:"status_addr"`
	Params          map[string]string `yaml:"params" json:"params"`
}

// Settings は検証済みの実行設定
type Settings struct {
	NumWorkers      int
	ShutdownStagger time.Duration
	InProcess       bool
	LogLevel        logger.Level
	Quiet           bool
	StatusAddr      string
	Params          map[string]string
}

// DefaultSettings はデフォルト設定を返す
func DefaultSettings() Settings {
	return Settings{
		NumWorkers:      0, // CPU数
		ShutdownStagger: defaultShutdownStagger,
		LogLevel:        logger.LevelInfo,
		Params:          map[string]string{},
	}
}

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// Load は設定ファイルを読み込み、検証して Settings に変換する
func Load(path string) (Settings, error) {
	fileConfig, err := LoadFile(path)
	if err != nil {
		return DefaultSettings(), err
	}
	if err := fileConfig.Validate(); err != nil {
		return DefaultSettings(), fmt.Errorf("invalid config: %w", err)
	}
	return fileConfig.ToSettings()
}

// ToSettings は FileConfig を Settings に変換する
func (f *FileConfig) ToSettings() (Settings, error) {
	rc := f.Run

	// デフォルト値の設定
	settings := DefaultSettings()

	if rc.Workers > 0 {
		settings.NumWorkers = rc.Workers
	}
	if rc.ShutdownStagger != "" {
		d, err := time.ParseDuration(rc.ShutdownStagger)
		if err != nil {
			return settings, fmt.Errorf("invalid shutdown_stagger: %w", err)
		}
		settings.ShutdownStagger = d
	}

	inProcess, err := parseMode(rc.Mode)
	if err != nil {
		return settings, err
	}
	settings.InProcess = inProcess

	level, err := logger.ParseLevel(rc.LogLevel)
	if err != nil {
		return settings, err
	}
	settings.LogLevel = level

	settings.Quiet = rc.Quiet
	settings.StatusAddr = rc.StatusAddr
	maps.Copy(settings.Params, rc.Params)

	return settings, nil
}

// parseMode は実行モードをパースし、ゴルーチンモードかどうかを返す
func parseMode(mode string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeProcess:
		return false, nil
	case ModeGoroutine:
		return true, nil
	default:
		return false, fmt.Errorf("unknown mode: %s", mode)
	}
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	rc := f.Run

	if rc.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}

	if rc.ShutdownStagger != "" {
		d, err := time.ParseDuration(rc.ShutdownStagger)
		if err != nil {
			return fmt.Errorf("shutdown_stagger must be a duration: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("shutdown_stagger must be non-negative")
		}
	}

	if _, err := parseMode(rc.Mode); err != nil {
		return err
	}

	if _, err := logger.ParseLevel(rc.LogLevel); err != nil {
		return err
	}

	return nil
}
