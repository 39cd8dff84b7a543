// internal/app/app.go
package app

import (
	"context"
	"fmt"

	awsclient "shopping-agent/internal/common/aws"
	"shopping-agent/internal/common/config"
	"shopping-agent/internal/common/database"
	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/common/observability"

	"shopping-agent/internal/agent"
	"shopping-agent/internal/llm"
	"shopping-agent/internal/orchestrator"
	"shopping-agent/internal/rag/cashback"
	"shopping-agent/internal/rag/retailers"
	"shopping-agent/internal/servers"
	"shopping-agent/internal/tracker"
	"shopping-agent/internal/vectorstore"
	"shopping-agent/internal/websearch"
	"shopping-agent/pkg/registry"

	"github.com/elastic/go-elasticsearch/v8"
)

// App holds every service built from one configuration.
type App struct {
	Config        *config.Config
	Logger        logger.Logger
	LLM           *llm.Client
	Search        *websearch.Client
	Agent         *agent.Agent
	Cashback      *cashback.Service
	Retailers     *retailers.Service
	Registry      *registry.Registry
	Orchestrator  *orchestrator.Orchestrator
	Tracker       *tracker.Tracker
	Observability *observability.Observability

	closers []func() error
}

type options struct {
	progress      orchestrator.ProgressFunc
	withTracker   bool
	agentOnly     bool
	observability bool
}

type Option func(*options)

// WithProgress forwards orchestrator stage events.
func WithProgress(fn orchestrator.ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// WithoutTracker skips opening the price database.
func WithoutTracker() Option {
	return func(o *options) { o.withTracker = false }
}

// AgentOnly stops after the search agent. Knowledge bases, vector indexes,
// MCP servers and the tracker are not opened.
func AgentOnly() Option {
	return func(o *options) {
		o.agentOnly = true
		o.withTracker = false
	}
}

// WithObservability installs the otel meter and tracer.
func WithObservability() Option {
	return func(o *options) { o.observability = true }
}

// Build connects the external clients and assembles the services. The caller
// must Close the returned App.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*App, error) {
	o := options{withTracker: true}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: log}

	var cache database.Cache
	if cfg.Cache.Enabled {
		rc, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return nil, err
		}
		if err := rc.Ping(ctx); err != nil {
			rc.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		cache = rc
	}
	ttl := config.GetDuration(cfg.Cache.TTL)

	a.LLM = llm.New(cfg.APIs.OpenAI, log)

	var searchOpts []websearch.Option
	if cache != nil {
		searchOpts = append(searchOpts, websearch.WithCache(cache, ttl))
	}
	a.Search = websearch.New(cfg.APIs.Tavily, log, searchOpts...)

	a.Agent = agent.New(a.LLM, a.Search, cfg.Shopping.MaxIterations, agent.PromptSettings{
		TaxRate:      cfg.Shopping.TaxRate,
		ZipCode:      cfg.Shopping.ZipCode,
		MinRetailers: cfg.Shopping.MinRetailers,
	}, log)
	if o.agentOnly {
		return a, nil
	}

	var es *elasticsearch.Client
	if cfg.Knowledge.VectorBackend == vectorstore.BackendElasticsearch {
		ec, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := ec.Ping(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("elasticsearch: %w", err)
		}
		es = ec.Client
	}

	cashbackStore, err := vectorstore.New(cfg.Knowledge, cashback.Collection, cfg.Knowledge.CashbackIndexDir, es, a.LLM)
	if err != nil {
		a.Close()
		return nil, err
	}
	var cashbackOpts []cashback.Option
	if cache != nil {
		cashbackOpts = append(cashbackOpts, cashback.WithCache(cache, ttl))
	}
	a.Cashback, err = cashback.Open(ctx, cfg.Knowledge.CashbackPath, cashbackStore, a.LLM, log, cashbackOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	retailerStore, err := vectorstore.New(cfg.Knowledge, retailers.Collection, cfg.Knowledge.RetailersIndexDir, es, a.LLM)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Retailers, err = retailers.Open(ctx, cfg.Knowledge.RetailersPath, retailerStore, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Registry = registry.New(
		servers.NewProductSearch(a.Agent, log),
		servers.NewCashback(a.Cashback, a.Agent, log),
		servers.NewCreditCard(a.Agent, log),
		servers.NewVerification(a.LLM, log),
	)

	var orchOpts []orchestrator.Option
	if o.progress != nil {
		orchOpts = append(orchOpts, orchestrator.WithProgress(o.progress))
	}
	a.Orchestrator = orchestrator.New(a.Registry, a.LLM, log, orchOpts...)

	if o.withTracker {
		if err := a.openTracker(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	if o.observability {
		a.Observability = observability.New(cfg.App.Name, observability.Options{
			JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		})
		a.closers = append(a.closers, func() error {
			a.Observability.Shutdown()
			return nil
		})
	}

	return a, nil
}

func (a *App) openTracker(ctx context.Context) error {
	cfg := a.Config

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, db.Close)

	store := tracker.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	trackerOpts := []tracker.Option{
		tracker.WithThreshold(cfg.Tracker.AlertThresholdPercent),
		tracker.WithTaxRate(cfg.Shopping.TaxRate),
	}
	if n, err := newNotifier(ctx, cfg.Notifications); err != nil {
		a.Logger.Warn("price alert notifications disabled", map[string]interface{}{
			"error": err.Error(),
		})
	} else if n != nil {
		trackerOpts = append(trackerOpts, tracker.WithNotifier(n))
	}

	a.Tracker = tracker.New(store, a.Agent, a.Logger, trackerOpts...)
	a.closers = append(a.closers, func() error {
		a.Tracker.StopAll()
		a.Tracker.Wait()
		return nil
	})
	return nil
}

func newNotifier(ctx context.Context, cfg config.NotificationConfig) (tracker.Notifier, error) {
	if !cfg.SNS.Enabled && !cfg.Email.Enabled {
		return nil, nil
	}

	var (
		snsClient *awsclient.SNSClient
		sesClient *awsclient.SESClient
		err       error
	)
	if cfg.SNS.Enabled {
		if snsClient, err = awsclient.NewSNSClient(ctx, cfg.AWS.Region); err != nil {
			return nil, err
		}
	}
	if cfg.Email.Enabled {
		if sesClient, err = awsclient.NewSESClient(ctx, cfg.AWS.Region); err != nil {
			return nil, err
		}
	}
	return tracker.NewAWSNotifier(snsClient, cfg.SNS.TopicARN, sesClient, cfg.Email.FromEmail, cfg.Email.To), nil
}

// Close releases the clients in reverse order of creation.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
