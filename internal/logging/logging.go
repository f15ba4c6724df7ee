// Package logging builds the root hclog logger from configuration.
package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/xob0t/musngr/internal/config"
)

// New returns the root logger. Components derive named sub-loggers from it
// with Named.
func New(cfg config.LoggingConfig, out io.Writer) hclog.Logger {
	if out == nil {
		out = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:            "musngr",
		Level:           hclog.LevelFromString(cfg.Level),
		Output:          out,
		JSONFormat:      cfg.JSON,
		IncludeLocation: cfg.Level == "trace",
	})
}
