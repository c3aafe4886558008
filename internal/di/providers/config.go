// Package providers contains dependency injection providers for the mapflag daemon.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/mapflag/mapflag-client/internal/clock"
	"github.com/mapflag/mapflag-client/internal/config"
	"github.com/mapflag/mapflag-client/internal/logger"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Format:      cfg.Logger.Format,
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("starting mapflag daemon",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Data.BasePath,
		"graphql_url", cfg.GraphQL.HTTPURL,
		"subscription_url", cfg.GraphQL.SubscriptionURL,
		"auth_provider", cfg.Firebase.Provider,
	)

	return log, nil
}

// ProvideClock provides the wall clock.
func ProvideClock(i do.Injector) (clock.Clock, error) {
	return clock.NewSystem(), nil
}
