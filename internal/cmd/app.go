package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/servicehub/internal/account"
	"github.com/felixgeelhaar/servicehub/internal/api"
	"github.com/felixgeelhaar/servicehub/internal/config"
	"github.com/felixgeelhaar/servicehub/internal/errors"
	"github.com/felixgeelhaar/servicehub/internal/httpclient"
	"github.com/felixgeelhaar/servicehub/internal/identity"
	"github.com/felixgeelhaar/servicehub/internal/identity/firebase"
	"github.com/felixgeelhaar/servicehub/internal/log"
	"github.com/felixgeelhaar/servicehub/internal/metrics"
	"github.com/felixgeelhaar/servicehub/internal/session"
	"github.com/felixgeelhaar/servicehub/internal/tokenstore"
	"github.com/felixgeelhaar/servicehub/internal/tui"
)

// App is the dependency graph of one command invocation.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Store    tokenstore.Store
	Sessions *session.Manager
	Pipeline *httpclient.Client
	API      *api.Client
	Account  *account.Controller

	Out         io.Writer
	Err         io.Writer
	Styles      tui.Styles
	Format      string
	Interactive bool

	provider      identity.Provider
	metricsServer *http.Server
	logFile       io.Closer
}

// newApp wires configuration, storage, the session manager and the request
// pipeline. Nothing here touches the network or the token store.
func newApp(cmd *cobra.Command) (*App, error) {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(cc.ConfigPath)
	if err != nil {
		return nil, err
	}
	if cc.BaseURL != "" {
		cfg.API.BaseURL = cc.BaseURL
	}
	if cc.LogLevel != "" {
		cfg.Logging.Level = log.ParseLevel(cc.LogLevel)
	}
	if cc.LogFormat != "" {
		cfg.Logging.Format = log.ParseFormat(cc.LogFormat)
	}
	if cc.Ephemeral {
		cfg.Storage.Backend = config.BackendMemory
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cc.Format {
	case "text", "json", "yaml":
	default:
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, fmt.Sprintf("unknown output format %q (want text, json or yaml)", cc.Format))
	}
	if cc.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	var (
		logOutput = cmd.ErrOrStderr()
		logFile   io.Closer
	)
	if cfg.Logging.File != "" {
		file := log.NewFileOutput(log.FileConfig{
			Path:       cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxSize,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAge,
			Compress:   cfg.Logging.Compress,
		})
		logOutput, logFile = file, file
	}
	logger := log.New(log.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: logOutput,
	})
	log.SetDefaultLogger(logger)

	store, err := tokenstore.Open(cfg.Storage)
	if err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, err
	}

	registry, m := metrics.NewRegistry()
	sessions := session.NewManager(store, session.WithLogger(logger))
	session.SetDefault(sessions)

	pipeline := httpclient.New(httpclient.ConfigFromAPI(cfg.API), sessions,
		httpclient.WithLogger(logger),
		httpclient.WithMetrics(m),
	)
	client := api.NewClient(pipeline)

	app := &App{
		Config:      cfg,
		Logger:      logger,
		Registry:    registry,
		Metrics:     m,
		Store:       store,
		Sessions:    sessions,
		Pipeline:    pipeline,
		API:         client,
		Account:     account.New(sessions, client, account.WithLogger(logger), account.WithMetrics(m)),
		Out:         cmd.OutOrStdout(),
		Err:         cmd.ErrOrStderr(),
		Styles:      tui.DefaultStyles(),
		Format:      cc.Format,
		Interactive: tui.ShouldPrompt(),
		logFile:     logFile,
	}

	if cc.MetricsAddr != "" {
		if err := app.serveMetrics(cc.MetricsAddr); err != nil {
			_ = app.Close()
			return nil, err
		}
	}
	return app, nil
}

func (a *App) serveMetrics(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.NewConfigError("--metrics-addr", err.Error())
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HandlerFor(a.Registry))
	a.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metricsServer.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			a.Logger.WithError(err).Warn("metrics server stopped")
		}
	}()
	a.Logger.Info("serving metrics", "addr", listener.Addr().String())
	return nil
}

// Close releases the token store, stops the metrics server and closes the
// log file.
func (a *App) Close() error {
	if a.Account != nil {
		a.Account.Close()
	}
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.metricsServer.Shutdown(ctx)
	}
	err := tokenstore.Close(a.Store)
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
	return err
}

// IdentityProvider returns the Firebase client, created on first use.
func (a *App) IdentityProvider() (identity.Provider, error) {
	if a.provider != nil {
		return a.provider, nil
	}
	client, err := firebase.New(a.Config.Firebase, firebase.WithLogger(a.Logger))
	if err != nil {
		return nil, err
	}
	a.provider = client
	return client, nil
}

// runFunc is a command body with its App.
type runFunc func(cmd *cobra.Command, args []string, app *App) error

// withApp builds the App for the invocation and closes it afterwards.
func withApp(run runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := app.Close(); cerr != nil {
				app.Logger.WithError(cerr).Warn("failed to close token store")
			}
		}()
		return run(cmd, args, app)
	}
}

// requireSession restores the persisted session and fails when there is none.
func (a *App) requireSession(ctx context.Context) error {
	if err := a.Sessions.Initialize(ctx); err != nil {
		return err
	}
	if !a.Sessions.IsAuthenticated() {
		return errors.NewNotSignedInError()
	}
	return nil
}

// checkAuth signs the user out when the backend rejected the session.
func (a *App) checkAuth(ctx context.Context, err error) error {
	if err != nil && httpclient.IsAuthFailure(err) {
		_ = a.Account.HandleError(ctx, err)
	}
	return err
}
