// Package dependency wires core inkforge services using go.uber.org/dig.
package dependency

import (
	"net/http"

	"github.com/viant/afs"
	"go.uber.org/dig"

	"github.com/inkforge/inkforge/internal/config"
	"github.com/inkforge/inkforge/internal/material"
	"github.com/inkforge/inkforge/internal/mcp"
	"github.com/inkforge/inkforge/internal/providers"
	"github.com/inkforge/inkforge/internal/publisher"
	"github.com/inkforge/inkforge/internal/runner"
	"github.com/inkforge/inkforge/internal/server"
	"github.com/inkforge/inkforge/internal/tools"
)

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	cfg       *config.Config
	registry  *tools.Registry
	runner    *runner.Runner
	publisher *publisher.Service
	wordpress *publisher.Client
	fetcher   *material.Fetcher
	server    *server.Server
	mcp       *mcp.Server
}

func (c *Container) Config() *config.Config        { return c.cfg }
func (c *Container) Registry() *tools.Registry     { return c.registry }
func (c *Container) Runner() *runner.Runner        { return c.runner }
func (c *Container) Publisher() *publisher.Service { return c.publisher }
func (c *Container) WordPress() *publisher.Client  { return c.wordpress }
func (c *Container) Fetcher() *material.Fetcher    { return c.fetcher }
func (c *Container) HTTPServer() *server.Server    { return c.server }
func (c *Container) MCPServer() *mcp.Server        { return c.mcp }

// Version is a named string so dig can tell it apart from plain strings.
type Version string

// ProviderHTTPClient is the client shared by every provider adapter.
type ProviderHTTPClient struct{ *http.Client }

// New builds and wires all core services from cfg.
func New(cfg *config.Config, version Version) (*Container, error) {
	d := dig.New()

	for _, ctor := range []any{
		func() *config.Config { return cfg },
		func() Version { return version },
		afs.New,
		newProviderHTTPClient,
		newFactory,
		newRegistry,
		newRunnerSettings,
		newRunner,
		newWordPressClient,
		newPublisher,
		newFetcher,
		newHTTPServer,
		newMCPServer,
	} {
		if err := d.Provide(ctor); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		registry *tools.Registry,
		r *runner.Runner,
		pub *publisher.Service,
		wp *publisher.Client,
		fetcher *material.Fetcher,
		srv *server.Server,
		mcpSrv *mcp.Server,
	) {
		result = &Container{
			cfg:       cfg,
			registry:  registry,
			runner:    r,
			publisher: pub,
			wordpress: wp,
			fetcher:   fetcher,
			server:    srv,
			mcp:       mcpSrv,
		}
	})
	return result, err
}

func newProviderHTTPClient(cfg *config.Config) ProviderHTTPClient {
	return ProviderHTTPClient{&http.Client{Timeout: cfg.RequestTimeout}}
}

func newFactory(c ProviderHTTPClient) *providers.Factory {
	return providers.NewFactory(c.Client)
}

func newRegistry(fs afs.Service, cfg *config.Config) *tools.Registry {
	return tools.NewRegistry(fs, cfg.ToolsURL(), cfg.PromptsURL())
}

// newRunnerSettings copies the provider section of cfg into the runner's
// explicit settings.
func newRunnerSettings(cfg *config.Config) runner.Settings {
	s := runner.Settings{
		DefaultProvider: cfg.DefaultProvider,
		Providers:       make(map[string]runner.ProviderSettings, len(providers.PROVIDERS)),
	}
	for _, spec := range providers.PROVIDERS {
		p := cfg.ProviderByName(spec.Name)
		if p == nil {
			continue
		}
		s.Providers[spec.Name] = runner.ProviderSettings{
			BaseURL:      p.APIBase,
			APIKey:       p.APIKey,
			DefaultModel: p.Model,
		}
	}
	return s
}

func newRunner(registry *tools.Registry, factory *providers.Factory, settings runner.Settings) *runner.Runner {
	return runner.New(registry, factory, settings)
}

func newWordPressClient(cfg *config.Config) *publisher.Client {
	wp := cfg.WordPress
	return publisher.NewClient(publisher.Credentials{
		APIBase:     wp.APIBase,
		Username:    wp.Username,
		AppPassword: wp.AppPassword,
	}, &http.Client{Timeout: wp.Timeout})
}

func newPublisher(r *runner.Runner, wp *publisher.Client) *publisher.Service {
	return publisher.NewService(r, wp)
}

func newFetcher() *material.Fetcher {
	return material.NewFetcher(0)
}

func newHTTPServer(cfg *config.Config, r *runner.Runner, registry *tools.Registry, pub *publisher.Service, fetcher *material.Fetcher) *server.Server {
	return server.New(r, registry, pub, fetcher, server.Options{
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RequestTimeout: cfg.RequestTimeout,
	})
}

func newMCPServer(version Version, r *runner.Runner, registry *tools.Registry) *mcp.Server {
	return mcp.NewServer("inkforge", string(version), r, registry)
}
