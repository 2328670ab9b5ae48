package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/roach88/rxdoc/internal/collection"
	"github.com/roach88/rxdoc/internal/config"
	"github.com/roach88/rxdoc/internal/schema"
	"github.com/roach88/rxdoc/internal/store"
	"github.com/roach88/rxdoc/internal/telemetry"
)

// Session is everything one command invocation needs: configuration,
// telemetry, the open store and the configured collection.
type Session struct {
	Config     config.Config
	Log        *telemetry.Logger
	Metrics    *telemetry.Metrics
	Store      *store.Store
	Collection *collection.Collection

	server *http.Server
}

// openSession loads the config at path and opens the collection it names.
// A missing config file falls back to config.Default. Logs configured for
// stderr go to errOut.
func openSession(path string, errOut io.Writer) (*Session, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}

	logCfg, metricsCfg := cfg.Telemetry()
	var log *telemetry.Logger
	if logCfg.Output == "" || logCfg.Output == "stderr" {
		log, err = telemetry.NewLoggerTo(errOut, logCfg)
	} else {
		log, err = telemetry.NewLogger(logCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	metrics := telemetry.NewMetrics(metricsCfg)

	sch, err := schema.CompileFile(cfg.Collection.SchemaID, cfg.Collection.Schema)
	if err != nil {
		_ = log.Close()
		return nil, fmt.Errorf("schema %s: %w", cfg.Collection.Schema, err)
	}

	st, err := store.Open(cfg.Storage.Path, cfg.StoreOptions()...)
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	s := &Session{
		Config:  cfg,
		Log:     log,
		Metrics: metrics,
		Store:   st,
		Collection: collection.New(cfg.Collection.Name, sch, st.Collection(cfg.Collection.Name),
			collection.WithLogger(log),
			collection.WithMetrics(metrics),
		),
	}

	if metrics.Enabled() && cfg.Metrics.ListenAddress != "" {
		if err := s.serveMetrics(cfg.Metrics.ListenAddress); err != nil {
			s.Close()
			return nil, err
		}
	}
	seq, err := st.LastSeq(context.Background())
	if err != nil {
		s.Close()
		return nil, err
	}
	log.WithFields(map[string]any{"storage": cfg.Storage.Path, "last_seq": seq}).Debug("session opened")
	return s, nil
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func (s *Session) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Metrics.Handler())
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Log.WithError(err).Error("metrics server stopped")
		}
	}()
	s.Log.WithField("address", ln.Addr().String()).Info("serving metrics")
	return nil
}

// Close releases everything openSession acquired.
func (s *Session) Close() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.server.Shutdown(ctx)
		cancel()
	}
	s.Collection.Close()
	if err := s.Store.Close(); err != nil {
		s.Log.WithError(err).Warn("close store")
	}
	_ = s.Log.Close()
}

// withSession opens a session for cmd, runs fn and closes the session.
// Failures to open are reported as command errors.
func withSession(opts *RootOptions, f *OutputFormatter, fn func(*Session) error) error {
	s, err := openSession(opts.ConfigPath, f.ErrWriter)
	if err != nil {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "open session", err)
	}
	defer s.Close()
	return fn(s)
}

func newFormatter(opts *RootOptions, out, errOut io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    out,
		ErrWriter: errOut,
		Verbose:   opts.Verbose,
	}
}
