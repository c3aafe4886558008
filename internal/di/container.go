// Package di provides dependency injection configuration for the mapflag daemon.
package di

import (
	"github.com/samber/do/v2"

	"github.com/mapflag/mapflag-client/internal/auth"
	"github.com/mapflag/mapflag-client/internal/clock"
	"github.com/mapflag/mapflag-client/internal/config"
	"github.com/mapflag/mapflag-client/internal/di/providers"
	"github.com/mapflag/mapflag-client/internal/graphql"
	"github.com/mapflag/mapflag-client/internal/logger"
	"github.com/mapflag/mapflag-client/internal/mission"
	"github.com/mapflag/mapflag-client/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideClock)
	do.Provide(injector, providers.ProvideValidator)

	// Local state
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideSearchIndex)

	// Identity
	do.Provide(injector, providers.ProvideAuthProviders)
	do.Provide(injector, providers.ProvideSessionManager)

	// GraphQL gateway
	do.Provide(injector, providers.ProvideGraphQLCache)
	do.Provide(injector, providers.ProvideOutboundLimiter)
	do.Provide(injector, providers.ProvideHTTPTransport)
	do.Provide(injector, providers.ProvideWSTransport)
	do.Provide(injector, providers.ProvideGateway)

	// Client state
	do.Provide(injector, providers.ProvideTagStore)
	do.Provide(injector, providers.ProvideMission)
	do.Provide(injector, providers.ProvideMissionBar)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services in dependency order.
// This triggers lazy initialization of every provider.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[clock.Clock](injector)
	_ = do.MustInvoke[*validation.Validator](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[auth.Providers](injector)
	_ = do.MustInvoke[*providers.SessionManagerHandle](injector)
	_ = do.MustInvoke[*providers.GraphQLCacheHandle](injector)
	_ = do.MustInvoke[*providers.OutboundLimiterHandle](injector)
	_ = do.MustInvoke[*graphql.HTTPTransport](injector)
	_ = do.MustInvoke[*providers.WSTransportHandle](injector)
	_ = do.MustInvoke[*graphql.Gateway](injector)
	_ = do.MustInvoke[*providers.TagStoreHandle](injector)
	_ = do.MustInvoke[*mission.Context](injector)
	_ = do.MustInvoke[*mission.Bar](injector)
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
