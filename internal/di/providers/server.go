package providers

import (
	"errors"
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"github.com/mapflag/mapflag-client/internal/api"
	"github.com/mapflag/mapflag-client/internal/config"
	"github.com/mapflag/mapflag-client/internal/logger"
	"github.com/mapflag/mapflag-client/internal/mission"
	"github.com/mapflag/mapflag-client/internal/ratelimit"
	"github.com/mapflag/mapflag-client/internal/sse"
)

// Local API limits per client address.
const (
	localAPIRequestsPerSec = 50
	localAPIBurst          = 100
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	limiter *ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	defer h.limiter.Stop()
	return stopWithin("local api", h.Server.Shutdown)
}

// ProvideHTTPServer provides the local state API server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	sessionHandle := do.MustInvoke[*SessionManagerHandle](i)
	tagHandle := do.MustInvoke[*TagStoreHandle](i)
	missionCtx := do.MustInvoke[*mission.Context](i)
	bar := do.MustInvoke[*mission.Bar](i)

	apiLog := log.Component("api")
	limiter := ratelimit.New(localAPIRequestsPerSec, localAPIBurst)

	handler := api.NewServer(api.Options{
		Services: &api.Services{
			Session: sessionHandle.Manager,
			Tags:    tagHandle.Store,
			Mission: missionCtx,
			Bar:     bar,
		},
		SSEHandler:      sse.NewHandler(sseHandle.Manager, log.Component("sse")),
		SSEManager:      sseHandle.Manager,
		RateLimiter:     limiter,
		AllowedOrigins:  cfg.LocalAPI.AllowedOrigins,
		DefaultLanguage: cfg.UI.Language,
		Logger:          apiLog,
	})

	srv := &http.Server{
		Addr:              cfg.LocalAPI.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		log.Info("Local API starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Local API error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, limiter: limiter}, nil
}
