// Package app wires the components of cquest together.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/cquest/internal/adapters/claude"
	"github.com/brianly1003/cquest/internal/adapters/history"
	"github.com/brianly1003/cquest/internal/appdata"
	"github.com/brianly1003/cquest/internal/config"
	"github.com/brianly1003/cquest/internal/domain/events"
	"github.com/brianly1003/cquest/internal/domain/ports"
	"github.com/brianly1003/cquest/internal/hub"
	"github.com/brianly1003/cquest/internal/pathutil"
	"github.com/brianly1003/cquest/internal/process"
	"github.com/brianly1003/cquest/internal/rpc"
	"github.com/brianly1003/cquest/internal/rpc/handler"
	"github.com/brianly1003/cquest/internal/rpc/handler/methods"
	"github.com/brianly1003/cquest/internal/rpc/transport"
	"github.com/brianly1003/cquest/internal/server"
	"github.com/brianly1003/cquest/internal/service"
	"github.com/brianly1003/cquest/internal/shell"
)

// App owns every long-lived component.
type App struct {
	cfg     *config.Config
	version string

	hub       *hub.Hub
	jobs      *process.Registry
	svcProcs  *process.Registry
	shell     *shell.Runner
	services  *service.Runner
	assistant *claude.Session
	data      *appdata.Store
	history   *history.Store

	registry   *handler.Registry
	rpcServer  *rpc.Server
	httpServer *server.Server

	startOnce sync.Once
	closeOnce sync.Once
}

// New builds the application from cfg. Nothing runs until Start.
func New(cfg *config.Config, version string) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	a := &App{
		cfg:      cfg,
		version:  version,
		hub:      hub.NewWithBuffer(cfg.Limits.EventBufferLen),
		jobs:     process.NewRegistry("jobs"),
		svcProcs: process.NewRegistry("services"),
	}

	var recorder ports.HistoryRecorder
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			// History is a convenience; the processes still run without it.
			log.Warn().Err(err).Str("path", cfg.History.Path).Msg("process history disabled")
		} else {
			a.history = store
			recorder = store
		}
	}

	a.shell = shell.NewRunner(shell.Config{
		Shell:        pathutil.Shell{Program: cfg.Shell.Program, Flag: cfg.Shell.Flag},
		PollInterval: cfg.Shell.PollInterval(),
	}, a.jobs, recorder)

	a.services = service.NewRunner(service.Config{
		Shell:        pathutil.Shell{Program: cfg.Service.Program, Flag: cfg.Service.Flag},
		PollInterval: cfg.Service.PollInterval(),
	}, a.svcProcs, a.hub, recorder)

	a.assistant = claude.NewSession(assistantConfig(cfg), a.hub)
	a.data = appdata.NewStore(cfg.App.DataDir, a.hub)

	a.registry = a.buildRegistry()
	a.rpcServer = rpc.NewServer(handler.NewDispatcher(a.registry), a.hub)
	a.httpServer = server.New(a.serverConfig(), a.rpcServer, a.registry, a.hub)

	return a, nil
}

func assistantConfig(cfg *config.Config) claude.Config {
	c := claude.Config{
		Command:        cfg.Assistant.Command,
		AppName:        cfg.App.Name,
		PermissionMode: cfg.Assistant.PermissionMode,
		ExtraArgs:      cfg.Assistant.ExtraArgs,
		MaxStderrBytes: cfg.Limits.MaxStderrKB * 1024,
	}
	// An empty list keeps the session's defaults.
	if len(cfg.Assistant.AllowedTools) > 0 {
		c.AllowedTools = cfg.Assistant.AllowedTools
	}
	return c
}

func (a *App) serverConfig() server.Config {
	return server.Config{
		Host:           a.cfg.Server.Host,
		Port:           a.cfg.Server.Port,
		Name:           a.cfg.App.Name,
		Version:        a.version,
		ConnectLimit:   a.cfg.Server.ConnectLimit,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
	}
}

func (a *App) buildRegistry() *handler.Registry {
	r := handler.NewRegistry()
	r.Use(logMiddleware)

	methods.NewAssistantService(a.assistant).RegisterMethods(r)
	methods.NewShellService(a.shell).RegisterMethods(r)
	methods.NewServiceService(a.services).RegisterMethods(r)
	methods.NewFSService().RegisterMethods(r)
	methods.NewDataService(a.data).RegisterMethods(r)

	var reader ports.HistoryReader
	if a.history != nil {
		reader = a.history
	}
	methods.NewHistoryService(reader).RegisterMethods(r)

	subscriptions := methods.NewSubscriptionService()
	subscriptions.RegisterMethods(r)
	// The RPC server is created from this registry, so it is bound lazily.
	subscriptions.SetProvider(providerFunc(func(clientID string) *hub.FilteredSubscriber {
		return a.rpcServer.GetFilteredSubscriber(clientID)
	}))

	methods.NewStatusService(a, func() interface{} { return a.OpenRPC() }).RegisterMethods(r)
	return r
}

type providerFunc func(clientID string) *hub.FilteredSubscriber

func (f providerFunc) GetFilteredSubscriber(clientID string) *hub.FilteredSubscriber {
	return f(clientID)
}

// Start starts the event hub. It is safe to call more than once.
func (a *App) Start() error {
	var err error
	a.startOnce.Do(func() {
		if err = a.hub.Start(); err != nil {
			err = fmt.Errorf("failed to start event hub: %w", err)
			return
		}
		a.hub.Subscribe(hub.NewFuncSubscriber("event-trace", func(event events.Event) {
			log.Trace().
				Str("event_type", string(event.Type())).
				Str("topic", event.Topic().String()).
				Msg("event broadcast")
		}))
	})
	return err
}

// Serve runs the HTTP/WebSocket server until ctx is done, then shuts down.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}
	if err := a.httpServer.Start(); err != nil {
		_ = a.Close()
		return err
	}

	log.Info().
		Str("addr", a.httpServer.Addr()).
		Str("version", a.version).
		Msg(a.cfg.App.Name + " ready")

	<-ctx.Done()
	return a.Close()
}

// ServeStdio serves a single JSON-RPC client over stdin/stdout until the
// input ends or ctx is done.
func (a *App) ServeStdio(ctx context.Context) error {
	return a.ServeTransport(ctx, transport.NewStdioTransport())
}

// ServeTransport serves a single client over t and shuts down afterwards.
func (a *App) ServeTransport(ctx context.Context, t transport.Transport) error {
	if err := a.Start(); err != nil {
		return err
	}
	err := a.rpcServer.ServeTransport(ctx, t)
	if closeErr := a.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Close stops running services, disconnects clients and releases storage.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		log.Info().Msg("shutting down")

		a.services.StopAll()
		if err := a.httpServer.Stop(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop server: %w", err))
		}
		if err := a.hub.Stop(); err != nil {
			errs = append(errs, err)
		}
		if a.history != nil {
			if err := a.history.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close history: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}

// ApplyConfig applies the parts of a reloaded config that can change while
// running.
func (a *App) ApplyConfig(cfg *config.Config) {
	if SetLogLevel(cfg.Logging.Level) {
		log.Info().Str("level", cfg.Logging.Level).Msg("log level changed")
	}
}

// Hub returns the event hub.
func (a *App) Hub() *hub.Hub { return a.hub }

// Assistant returns the assistant session.
func (a *App) Assistant() *claude.Session { return a.assistant }

// Shell returns the shell job runner.
func (a *App) Shell() *shell.Runner { return a.shell }

// Services returns the service runner.
func (a *App) Services() *service.Runner { return a.services }

// Registry returns the RPC method registry.
func (a *App) Registry() *handler.Registry { return a.registry }

// OpenRPC returns the discovery document for the registered methods.
func (a *App) OpenRPC() *handler.OpenRPCSpec {
	return server.GenerateSpec(a.registry, a.serverConfig())
}

// Version implements methods.StatusProvider.
func (a *App) Version() string { return a.version }

// ConnectedClients implements methods.StatusProvider.
func (a *App) ConnectedClients() int { return a.rpcServer.ClientCount() }

// RunningJobs implements methods.StatusProvider.
func (a *App) RunningJobs() []string { return a.shell.Running() }

// RunningServices implements methods.StatusProvider.
func (a *App) RunningServices() []string { return a.services.List() }

// AssistantInstalled implements methods.StatusProvider.
func (a *App) AssistantInstalled() bool { return a.assistant.Installed() }

var _ methods.StatusProvider = (*App)(nil)
