package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"example.com/n2kgate/internal/common"
	"example.com/n2kgate/internal/ring"
	"example.com/n2kgate/internal/window"
)

type config struct {
	Port             int              `yaml:"port"`
	StorageDir       string           `yaml:"storageDir"`
	BufferCapacity   int              `yaml:"bufferCapacity"`
	RefreshThreshold int              `yaml:"refreshThreshold"`
	ImportWindow     int              `yaml:"importWindow"`
	ExportWindow     int              `yaml:"exportWindow"`
	PGNTable         string           `yaml:"pgnTable"`
	Replay           string           `yaml:"replay"`
	ReplayInterval   string           `yaml:"replayInterval"`
	Lang             string           `yaml:"lang"`
	Logs             common.LogConfig `yaml:"logs"`
}

// loadConfig reads the YAML file at path and fills defaults. Relative paths
// are looked up next to the config file first.
func loadConfig(path string) (config, error) {
	var cfg config
	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrap(err, "open config")
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "decode %s", path)
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		candidate := filepath.Clean(filepath.Join(baseDir, p))
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		return filepath.Clean(p)
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = filepath.Join(".", "data")
	}
	if cfg.BufferCapacity == 0 {
		cfg.BufferCapacity = ring.DefaultCapacity
	}
	if cfg.BufferCapacity < 0 {
		return cfg, errors.Wrapf(ring.ErrInvalidCapacity, "bufferCapacity %d", cfg.BufferCapacity)
	}
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = ring.DefaultRefreshThreshold
	}
	if cfg.ImportWindow <= 0 {
		cfg.ImportWindow = window.DefaultImportSize
	}
	if cfg.ExportWindow <= 0 {
		cfg.ExportWindow = window.DefaultExportSize
	}
	cfg.PGNTable = resolvePath(cfg.PGNTable)
	cfg.Replay = resolvePath(cfg.Replay)
	if cfg.Lang == "" {
		cfg.Lang = "fr"
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.StorageDir, "logs")
	}
	if cfg.Logs.FileName == "" {
		cfg.Logs.FileName = "n2kd.log"
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	return cfg, nil
}
