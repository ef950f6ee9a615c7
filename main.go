package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/bingwa/agent/agents/orchestrator"
	"github.com/tanpawarit/bingwa/agent/llm"
	statex "github.com/tanpawarit/bingwa/agent/state"
	toolx "github.com/tanpawarit/bingwa/agent/tool"
	"github.com/tanpawarit/bingwa/domain/catalog"
	"github.com/tanpawarit/bingwa/domain/order"
	"github.com/tanpawarit/bingwa/domain/order/pgstore"
	configx "github.com/tanpawarit/bingwa/pkg/config"
	"github.com/tanpawarit/bingwa/pkg/keylock"
	logx "github.com/tanpawarit/bingwa/pkg/logger"
	_ "github.com/tanpawarit/bingwa/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/bingwa/pkg/openrouter"
	qstashx "github.com/tanpawarit/bingwa/pkg/qstash"
	"github.com/tanpawarit/bingwa/server"
)

// eat is East Africa Time, the zone bookings are made in.
var eat = time.FixedZone("EAT", 3*60*60)

type AppConfig struct {
	HTTPAddr          string        `envconfig:"HTTP_ADDR" default:":8080"`
	OrderStore        string        `split_words:"true" default:"memory"`
	SessionStore      string        `split_words:"true" default:"memory"`
	MaxToolRounds     int           `split_words:"true" default:"6"`
	ModelRetries      int           `split_words:"true" default:"1"`
	RateLimitRPS      float64       `envconfig:"RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst    int           `split_words:"true" default:"10"`
	RequestTimeout    time.Duration `split_words:"true" default:"2m"`
	QStashEnabled     bool          `envconfig:"QSTASH_ENABLED" default:"false"`
	EventsDestination string        `split_words:"true"`
	ProbeModel        bool          `split_words:"true" default:"false"`
}

func (c AppConfig) Validate() error {
	switch c.OrderStore {
	case "memory", "postgres":
	default:
		return fmt.Errorf("order store must be memory or postgres, got %q", c.OrderStore)
	}
	switch c.SessionStore {
	case "memory", "upstash", "redis":
	default:
		return fmt.Errorf("session store must be memory, upstash or redis, got %q", c.SessionStore)
	}
	if c.MaxToolRounds <= 0 {
		return fmt.Errorf("max tool rounds must be positive")
	}
	if c.ModelRetries < 0 {
		return fmt.Errorf("model retries must not be negative")
	}
	if strings.TrimSpace(c.EventsDestination) != "" && !c.QStashEnabled {
		return fmt.Errorf("events destination requires QStash to be enabled")
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("bingwa stopped")
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logx.Component("main")
	appCfg := configx.MustNew[AppConfig]("APP")
	llmCfg := configx.MustNew[llm.Config]("LLM")

	routerCfg := llmCfg.OpenRouter()
	if appCfg.ProbeModel {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := openrouterx.Probe(probeCtx, openrouterx.NewClient(routerCfg), routerCfg.Model)
		cancel()
		if err != nil {
			return err
		}
		logger.Info().Str("model", routerCfg.Model).Msg("model probe succeeded")
	}
	chatModel, err := routerCfg.New(ctx)
	if err != nil {
		return err
	}

	orderStore, closeStore, err := newOrderStore(ctx, appCfg.OrderStore)
	if err != nil {
		return err
	}
	defer closeStore()

	sessionStore, err := newSessionStore(appCfg.SessionStore)
	if err != nil {
		return err
	}

	var (
		events   order.EventPublisher
		verifier server.SignatureVerifier
	)
	if appCfg.QStashEnabled {
		qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")
		qstashClient := qstashx.MustNew(*qstashCfg)
		verifier = qstashClient
		if dest := strings.TrimSpace(appCfg.EventsDestination); dest != "" {
			publisher, err := qstashx.NewOrderEventPublisher(qstashClient, dest)
			if err != nil {
				return err
			}
			events = publisher
		}
	}

	cat := catalog.MustDefault()
	orders, err := order.NewManager(order.Deps{
		Orders:  orderStore,
		Catalog: cat,
		Events:  events,
		Locks:   keylock.New(),
	})
	if err != nil {
		return err
	}

	registry, err := toolx.NewRegistry(toolx.Deps{Catalog: cat, Orders: orders, Location: eat})
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(sessionStore, chatModel, registry, orchestrator.Config{
		MaxToolRounds: appCfg.MaxToolRounds,
		ModelRetries:  appCfg.ModelRetries,
		Location:      eat,
	})
	if err != nil {
		return err
	}

	deps := server.Deps{Orchestrator: orch, Tools: registry}
	if verifier != nil {
		deps.Fulfillment = orders
		deps.Verifier = verifier
	}
	srv, err := server.New(server.Config{
		Address:        appCfg.HTTPAddr,
		RequestTimeout: appCfg.RequestTimeout,
		RateLimitRPS:   appCfg.RateLimitRPS,
		RateLimitBurst: appCfg.RateLimitBurst,
	}, deps)
	if err != nil {
		return err
	}

	logger.Info().
		Str("order_store", appCfg.OrderStore).
		Str("session_store", appCfg.SessionStore).
		Bool("qstash", appCfg.QStashEnabled).
		Int("operations", len(registry.Names())).
		Msg("bingwa ready")
	return srv.Run(ctx)
}

func newOrderStore(ctx context.Context, kind string) (order.Store, func(), error) {
	if kind != "postgres" {
		return order.NewMemoryStore(), func() {}, nil
	}

	dbCfg := configx.MustNew[pgstore.Config]("DATABASE")
	store, err := pgstore.Open(*dbCfg)
	if err != nil {
		return nil, nil, err
	}
	if err := store.CreateSchema(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close order database")
		}
	}, nil
}

func newSessionStore(kind string) (statex.Store, error) {
	switch kind {
	case "upstash":
		cfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		return statex.NewUpstashRedisStore(*cfg)
	case "redis":
		cfg := configx.MustNew[statex.RedisConfig]("REDIS")
		client, err := statex.NewRedisClient(*cfg)
		if err != nil {
			return nil, err
		}
		return statex.NewRedisStore(client)
	default:
		return statex.NewMemoryStore(), nil
	}
}
