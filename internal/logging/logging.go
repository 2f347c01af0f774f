// Package logging builds the root hclog logger from configuration.
package logging

import (
	"io"
	"strings"

	"github.com/hashicorp/go-hclog"
)

type Config struct {
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
	Color  bool   `yaml:"color"`
}

// New returns the root logger named name. Unknown levels fall back to info.
func New(name string, cfg Config, w io.Writer) hclog.Logger {
	level := hclog.LevelFromString(strings.TrimSpace(cfg.Level))
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	color := hclog.ColorOff
	if cfg.Color {
		color = hclog.AutoColor
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:            name,
		Level:           level,
		Output:          w,
		JSONFormat:      strings.EqualFold(cfg.Format, "json"),
		Color:           color,
		IncludeLocation: level <= hclog.Debug,
		TimeFormat:      "2006-01-02T15:04:05.000Z0700",
	})
}
