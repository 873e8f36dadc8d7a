package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	rendererMagick = "magick"
	rendererNative = "native"
)

type AppConfig struct {
	Addr        string        `env:"PORTRAIT_ADDR" envDefault:"127.0.0.1:37375"`
	ScratchDir  string        `env:"PORTRAIT_SCRATCH_DIR"`
	DBPath      string        `env:"PORTRAIT_DB" envDefault:"./portraitgate.db"`
	Renderer    string        `env:"PORTRAIT_RENDERER" envDefault:"magick"`
	MagickBin   string        `env:"PORTRAIT_MAGICK_BIN" envDefault:"convert"`
	StepTimeout time.Duration `env:"PORTRAIT_STEP_TIMEOUT" envDefault:"10s"`
	MaxRenders  int64         `env:"PORTRAIT_MAX_RENDERS" envDefault:"1"`
	OpenBrowser bool          `env:"PORTRAIT_OPEN_BROWSER" envDefault:"false"`
	KeepLast    bool          `env:"PORTRAIT_KEEP_LAST" envDefault:"false"`

	Log LogConfig
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
	File   string `env:"LOG_FILE"`
}

func loadConfig() (AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = filepath.Join(os.TempDir(), "portraitgate")
	}
	switch cfg.Renderer {
	case rendererMagick, rendererNative:
	default:
		return cfg, fmt.Errorf("unknown renderer %q (want %s or %s)", cfg.Renderer, rendererMagick, rendererNative)
	}
	if cfg.MaxRenders < 1 {
		return cfg, fmt.Errorf("PORTRAIT_MAX_RENDERS must be at least 1, got %d", cfg.MaxRenders)
	}
	return cfg, nil
}
