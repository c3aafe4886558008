package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/mapflag/mapflag-client/internal/config"
	"github.com/mapflag/mapflag-client/internal/graphql"
	"github.com/mapflag/mapflag-client/internal/logger"
	"github.com/mapflag/mapflag-client/internal/ratelimit"
	"github.com/mapflag/mapflag-client/internal/sse"
)

// cacheEntries bounds the normalized response cache.
const cacheEntries = 10_000

// GraphQLCacheHandle wraps the response cache with shutdown capability.
type GraphQLCacheHandle struct {
	*graphql.Cache
}

// Shutdown implements do.Shutdownable.
func (h *GraphQLCacheHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideGraphQLCache provides the normalized cache shared by both channels.
func ProvideGraphQLCache(i do.Injector) (*GraphQLCacheHandle, error) {
	cache, err := graphql.NewCache(cacheEntries)
	if err != nil {
		return nil, err
	}
	return &GraphQLCacheHandle{Cache: cache}, nil
}

// OutboundLimiterHandle wraps the outbound GraphQL rate limiter.
type OutboundLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *OutboundLimiterHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideOutboundLimiter provides the per-operation-kind limiter for GraphQL requests.
func ProvideOutboundLimiter(i do.Injector) (*OutboundLimiterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return &OutboundLimiterHandle{
		KeyedRateLimiter: ratelimit.New(cfg.GraphQL.RequestsPerSec, cfg.GraphQL.Burst),
	}, nil
}

// ProvideHTTPTransport provides the one-shot channel for queries and mutations.
func ProvideHTTPTransport(i do.Injector) (*graphql.HTTPTransport, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sessionHandle := do.MustInvoke[*SessionManagerHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	limiter := do.MustInvoke[*OutboundLimiterHandle](i)

	return graphql.NewHTTPTransport(graphql.HTTPOptions{
		URL:      cfg.GraphQL.HTTPURL,
		Token:    sessionHandle.Token,
		ClientID: storeHandle.DeviceID,
		Limiter:  limiter.KeyedRateLimiter,
		Logger:   log.Component("graphql.http"),
	}), nil
}

// WSTransportHandle wraps the subscription transport with shutdown capability.
type WSTransportHandle struct {
	*graphql.WSTransport
}

// Shutdown implements do.Shutdownable.
func (h *WSTransportHandle) Shutdown() error {
	return h.Close()
}

// ProvideWSTransport provides the persistent subscription channel. Connection
// failures are logged by the transport and pushed to SSE clients.
func ProvideWSTransport(i do.Injector) (*WSTransportHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sessionHandle := do.MustInvoke[*SessionManagerHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	transport := graphql.NewWSTransport(graphql.WSOptions{
		URL: cfg.GraphQL.SubscriptionURL,
		ConnectionParams: func(ctx context.Context) (map[string]any, error) {
			token, err := sessionHandle.Token(ctx)
			if err != nil || token == "" {
				return nil, err
			}
			return map[string]any{"Authorization": "Bearer " + token}, nil
		},
		OnError: func(err error) {
			sseHandle.Emit(sse.NewSubscriptionErrorEvent(err))
		},
		Logger: log.Component("graphql.ws"),
	})

	return &WSTransportHandle{WSTransport: transport}, nil
}

// ProvideGateway provides the GraphQL gateway.
func ProvideGateway(i do.Injector) (*graphql.Gateway, error) {
	log := do.MustInvoke[*logger.Logger](i)
	httpTransport := do.MustInvoke[*graphql.HTTPTransport](i)
	wsHandle := do.MustInvoke[*WSTransportHandle](i)
	cacheHandle := do.MustInvoke[*GraphQLCacheHandle](i)

	return graphql.NewGateway(httpTransport, wsHandle.WSTransport, cacheHandle.Cache, log.Component("graphql")), nil
}
