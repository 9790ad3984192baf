package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/dgallion1/docreview/internal/config"
	"github.com/dgallion1/docreview/internal/ledger"
	"github.com/dgallion1/docreview/internal/logging"
	"github.com/dgallion1/docreview/internal/storage"
)

// statsWindow is how long storage latency samples are kept.
const statsWindow = 15 * time.Minute

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = fmt.Errorf("invalid configuration: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger builds the command logger. Output to a terminal defaults to the text
// format unless LOG_FORMAT is set.
func (c *commandContext) logger(w io.Writer) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	format := cfg.LogFormat
	if os.Getenv("LOG_FORMAT") == "" && isTerminal(w) {
		format = "text"
	}
	return logging.New(cfg.LogLevel, format, w)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// openStore builds the configured artifact store, instrumented for latency
// stats. The returned close function releases backend resources.
func (c *commandContext) openStore(log *slog.Logger) (*storage.Instrumented, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	switch cfg.StorageBackend {
	case config.BackendPathstore:
		ps := storage.NewPathstoreStore(cfg.PathstoreURL, cfg.PathstoreAPIKey, log)
		return storage.Instrument(ps, statsWindow), ps.Close, nil
	default:
		fs, err := storage.NewFSStore(cfg.StorageRoot)
		if err != nil {
			return nil, nil, err
		}
		return storage.Instrument(fs, statsWindow), func() {}, nil
	}
}

func (c *commandContext) openLedger(ctx context.Context) (*ledger.Ledger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return ledger.Open(ctx, cfg.LedgerPath)
}
