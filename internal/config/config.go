// Package config loads the termgraph configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math/bits"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Object store backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Config is the service configuration. The commit log always lives in
// SQLite under DataDir; Backend selects where chronicles, identifiers,
// stamps and coordinator state are kept.
type Config struct {
	DataDir       string `yaml:"data_dir" validate:"required"`
	Backend       string `yaml:"backend" validate:"oneof=sqlite badger memory"`
	SpineSize     int    `yaml:"spine_size" validate:"gte=64,lte=1048576,pow2"`
	WritePermits  int    `yaml:"write_permits" validate:"gte=1,lte=4096"`
	Workers       int    `yaml:"workers" validate:"gte=0,lte=1024"`
	TreeMode      string `yaml:"tree_mode" validate:"oneof=tree direct"`
	LogLevel      string `yaml:"log_level" validate:"oneof=debug info warn error"`
	CompressBlobs bool   `yaml:"compress_blobs"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("pow2", func(fl validator.FieldLevel) bool {
		n := fl.Field().Int()
		return n > 0 && bits.OnesCount64(uint64(n)) == 1
	})
}

// Default returns the configuration used when no file is given. Workers 0
// means one per CPU.
func Default() Config {
	return Config{
		DataDir:       ".termgraph",
		Backend:       BackendSQLite,
		SpineSize:     1024,
		WritePermits:  64,
		Workers:       0,
		TreeMode:      "tree",
		LogLevel:      "info",
		CompressBlobs: true,
	}
}

// Load reads path over the defaults. An empty path or a missing file yields
// the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse decodes YAML over the defaults and validates the result. A relative
// data_dir is resolved against baseDir.
func Parse(data []byte, baseDir string) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if baseDir != "" && !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(baseDir, cfg.DataDir)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
