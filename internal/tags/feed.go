package tags

import (
	"context"
	"log/slog"
	"time"

	"github.com/mapflag/mapflag-client/internal/domain"
	"github.com/mapflag/mapflag-client/internal/errors"
	"github.com/mapflag/mapflag-client/internal/graphql"
	"github.com/mapflag/mapflag-client/internal/sse"
)

const (
	defaultMinResubscribe = time.Second
	defaultMaxResubscribe = time.Minute
)

// LiveFeed turns the tagChangeSubscription stream into domain changes.
type LiveFeed struct {
	gw      Gateway
	emitter sse.Emitter
	logger  *slog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewLiveFeed creates a feed. emitter receives subscription.error events.
func NewLiveFeed(gw Gateway, emitter sse.Emitter, logger *slog.Logger) *LiveFeed {
	if emitter == nil {
		emitter = sse.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveFeed{
		gw:         gw,
		emitter:    emitter,
		logger:     logger,
		minBackoff: defaultMinResubscribe,
		maxBackoff: defaultMaxResubscribe,
	}
}

// Changes subscribes and returns the change stream. The channel closes when ctx
// ends or the server completes the subscription. Error payloads are reported and
// skipped.
func (f *LiveFeed) Changes(ctx context.Context) (<-chan domain.TagChange, error) {
	src, err := f.gw.Subscribe(ctx, graphql.Request{Query: tagChangeSubscription})
	if err != nil {
		return nil, err
	}

	out := make(chan domain.TagChange)
	go func() {
		defer close(out)
		for resp := range src {
			change, err := decodeChange(resp)
			if err != nil {
				f.logger.Error("tag subscription error", "error", err)
				f.emitter.Emit(sse.NewSubscriptionErrorEvent(err))
				continue
			}
			select {
			case out <- change:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// Follow feeds store with live changes until ctx ends. A failed subscribe or a
// subscription the server ends is logged, reported as subscription.error, and
// retried with capped exponential backoff.
func (f *LiveFeed) Follow(ctx context.Context, store *Store) {
	backoff := f.minBackoff
	for {
		changes, err := f.Changes(ctx)
		if err == nil {
			started := time.Now()
			err = store.Run(ctx, changes)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				err = errors.Transport("tag subscription ended")
			}
			// A subscription that stayed up for a while starts the backoff over.
			if time.Since(started) > f.maxBackoff {
				backoff = f.minBackoff
			}
		}
		if ctx.Err() != nil {
			return
		}

		f.logger.Warn("tag feed interrupted, resubscribing", "retry_in", backoff, "error", err)
		f.emitter.Emit(sse.NewSubscriptionErrorEvent(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, f.maxBackoff)
	}
}

func decodeChange(resp *graphql.Response) (domain.TagChange, error) {
	if err := resp.Err(); err != nil {
		return domain.TagChange{}, err
	}

	var data struct {
		TagChangeSubscription struct {
			ChangeType string    `json:"changeType"`
			TagContent remoteTag `json:"tagContent"`
		} `json:"tagChangeSubscription"`
	}
	if err := resp.Decode(&data); err != nil {
		return domain.TagChange{}, err
	}

	change := domain.TagChange{
		ChangeType: domain.ChangeType(data.TagChangeSubscription.ChangeType),
		Tag:        data.TagChangeSubscription.TagContent.toDomain(),
	}
	switch change.ChangeType {
	case domain.ChangeAdded, domain.ChangeUpdated, domain.ChangeDeleted:
		return change, nil
	default:
		return domain.TagChange{}, errors.Validationf("unknown change type %q", change.ChangeType)
	}
}
