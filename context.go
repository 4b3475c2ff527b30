package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/metcalfc/flick/internal/config"
	"github.com/metcalfc/flick/internal/library"
	"github.com/metcalfc/flick/internal/logging"
	"github.com/metcalfc/flick/internal/service"
)

// appContext carries what every command shares: configuration, the log
// file and the library.
type appContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
	logger     *slog.Logger
	logCloser  io.Closer
}

func newAppContext(configFlag *string) *appContext {
	return &appContext{configFlag: configFlag}
}

func (a *appContext) ensureConfig() (*config.Config, error) {
	a.configOnce.Do(func() {
		var path string
		if a.configFlag != nil {
			path = strings.TrimSpace(*a.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			a.configErr = err
			return
		}
		a.config = cfg

		logger, closer, err := logging.SetupLogger(cfg.Logging)
		if err != nil {
			// Logging is best effort; reading works without it.
			logger = logging.NullLogger()
		}
		a.logger = logger
		a.logCloser = closer
	})
	return a.config, a.configErr
}

// openLibrary opens the configured library. When durable storage is
// unavailable a single warning is printed and the in-memory library is used.
func (a *appContext) openLibrary(cmd *cobra.Command) (*service.Library, error) {
	cfg, err := a.ensureConfig()
	if err != nil {
		return nil, err
	}
	lib, err := service.OpenLibrary(cmd.Context(), cfg, a.logger)
	if err != nil {
		if !errors.Is(err, library.ErrStoreUnavailable) {
			lib.Close()
			return nil, err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\nReading progress will not be saved this session.\n", err)
	}
	return lib, nil
}

func (a *appContext) withLibrary(cmd *cobra.Command, fn func(*service.Library) error) error {
	lib, err := a.openLibrary(cmd)
	if err != nil {
		return err
	}
	defer lib.Close()
	return fn(lib)
}

func (a *appContext) close() {
	if a.logCloser != nil {
		a.logCloser.Close()
		a.logCloser = nil
	}
}
