package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/httpapi"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/factory"
	"github.com/mikey/mail-triage/internal/logging"
	"github.com/mikey/mail-triage/internal/ports"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewRemoteFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewRulesFactory); err != nil {
		return nil, err
	}

	// Register repositories
	if err := container.Provide(func(f *factory.StoreFactory) (factory.Repositories, error) {
		return f.CreateRepositories()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(r factory.Repositories) core.ProfileRepository {
		return r.Profiles
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(r factory.Repositories) core.StatsRepository {
		return r.Stats
	}); err != nil {
		return nil, err
	}

	// Register classifiers
	if err := container.Provide(func(f *factory.RulesFactory) *core.RuleClassifier {
		return f.CreateRuleClassifier()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.RemoteFactory) (core.RemoteClassifier, error) {
		return f.CreateRemoteClassifier()
	}); err != nil {
		return nil, err
	}

	// Register stats hub and aggregator
	if err := container.Provide(httpapi.NewStatsHub); err != nil {
		return nil, err
	}
	if err := container.Provide(func(
		repo core.StatsRepository,
		hub *httpapi.StatsHub,
		logger *zap.Logger,
		cfg *config.Config,
	) (*core.StatsAggregator, error) {
		return core.NewStatsAggregator(repo, hub, logger, cfg.GetInt("stats.queue_size"))
	}); err != nil {
		return nil, err
	}

	// Register the core service
	if err := container.Provide(core.NewTriageService); err != nil {
		return nil, err
	}

	// Register the HTTP API server
	if err := container.Provide(func(
		service *core.TriageService,
		hub *httpapi.StatsHub,
		logger *zap.Logger,
		cfg *config.Config,
	) ports.APIServer {
		return httpapi.NewServer(service, hub, logger, cfg.GetServer().ListenAddress)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
