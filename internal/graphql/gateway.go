package graphql

import (
	"context"
	"log/slog"

	"github.com/mapflag/mapflag-client/internal/errors"
)

// Doer sends one request and returns one response.
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Subscriber starts a live subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, req Request) (<-chan *Response, error)
}

// Gateway routes each request by its root operation: subscriptions to the persistent
// channel, everything else to the one-shot channel. Both share one Cache.
type Gateway struct {
	doer       Doer
	subscriber Subscriber
	cache      *Cache
	logger     *slog.Logger
}

// NewGateway creates a gateway. cache may be nil to disable caching.
func NewGateway(doer Doer, subscriber Subscriber, cache *Cache, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{doer: doer, subscriber: subscriber, cache: cache, logger: logger}
}

// Cache returns the shared response cache.
func (g *Gateway) Cache() *Cache {
	return g.cache
}

// Execute dispatches req and returns its response stream. One-shot requests yield
// exactly one response and the channel is closed; subscriptions stream until ctx
// ends or the server completes them.
func (g *Gateway) Execute(ctx context.Context, req Request) (<-chan *Response, error) {
	kind, err := Classify(req)
	if err != nil {
		return nil, err
	}

	if kind == KindSubscription {
		return g.subscribe(ctx, req)
	}

	resp, err := g.doer.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	g.store(kind, req, resp)

	out := make(chan *Response, 1)
	out <- resp
	close(out)
	return out, nil
}

// Query runs a query and decodes its data into dest. CacheFirst answers from the
// cache when possible.
func (g *Gateway) Query(ctx context.Context, req Request, policy FetchPolicy, dest any) error {
	if policy == CacheFirst && g.cache != nil {
		if data, ok := g.cache.Read(req); ok {
			return (&Response{Data: data}).Decode(dest)
		}
	}
	return g.once(ctx, req, KindQuery, dest)
}

// Mutate runs a mutation and decodes its data into dest.
func (g *Gateway) Mutate(ctx context.Context, req Request, dest any) error {
	return g.once(ctx, req, KindMutation, dest)
}

// Subscribe starts a subscription; req must be a subscription operation.
func (g *Gateway) Subscribe(ctx context.Context, req Request) (<-chan *Response, error) {
	kind, err := Classify(req)
	if err != nil {
		return nil, err
	}
	if kind != KindSubscription {
		return nil, errors.Validationf("expected a subscription, got a %s", kind)
	}
	return g.subscribe(ctx, req)
}

func (g *Gateway) once(ctx context.Context, req Request, want OperationKind, dest any) error {
	kind, err := Classify(req)
	if err != nil {
		return err
	}
	if kind != want {
		return errors.Validationf("expected a %s, got a %s", want, kind)
	}

	stream, err := g.Execute(ctx, req)
	if err != nil {
		return err
	}
	resp := <-stream
	if err := resp.Err(); err != nil {
		return err
	}
	return resp.Decode(dest)
}

func (g *Gateway) subscribe(ctx context.Context, req Request) (<-chan *Response, error) {
	src, err := g.subscriber.Subscribe(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan *Response)
	go func() {
		defer close(out)
		for resp := range src {
			g.store(KindSubscription, req, resp)
			select {
			case out <- resp:
			case <-ctx.Done():
				// Drain until the transport closes src.
			}
		}
	}()
	return out, nil
}

func (g *Gateway) store(kind OperationKind, req Request, resp *Response) {
	if g.cache == nil || resp == nil || len(resp.Data) == 0 {
		return
	}

	var err error
	if kind == KindQuery && len(resp.Errors) == 0 {
		err = g.cache.Write(req, resp.Data)
	} else {
		err = g.cache.WriteEntities(resp.Data)
	}
	if err != nil {
		g.logger.Warn("cache write failed", "kind", kind, "error", err)
	}
}
