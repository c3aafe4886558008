package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// Component health states, in increasing severity.
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

var severity = map[string]int{statusHealthy: 0, statusDegraded: 1, statusUnhealthy: 2}

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Reports the session phase, the tag cache and the event stream",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" enum:"healthy,degraded,unhealthy" doc:"Component status"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" enum:"healthy,degraded,unhealthy" doc:"Worst component status"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	resp := HealthResponse{
		Status: statusHealthy,
		Components: map[string]ComponentHealth{
			"session": s.sessionHealth(),
			"tags":    s.tagsHealth(),
			"sse":     s.streamHealth(),
		},
	}
	for _, c := range resp.Components {
		if severity[c.Status] > severity[resp.Status] {
			resp.Status = c.Status
		}
	}
	return &HealthOutput{Body: resp}, nil
}

// sessionHealth reports the token lifecycle phase. A recorded token error degrades it.
func (s *Server) sessionHealth() ComponentHealth {
	if s.services == nil || s.services.Session == nil {
		return ComponentHealth{Status: statusUnhealthy, Message: "session manager not configured"}
	}
	state := s.services.Session.State()
	if state.LastError != "" {
		return ComponentHealth{Status: statusDegraded, Message: state.LastError}
	}
	return ComponentHealth{Status: statusHealthy, Message: string(state.Phase())}
}

// tagsHealth reports how many tags are cached and how many pass the filters.
func (s *Server) tagsHealth() ComponentHealth {
	if s.services == nil || s.services.Tags == nil {
		return ComponentHealth{Status: statusUnhealthy, Message: "tag store not configured"}
	}
	all, visible := len(s.services.Tags.Tags()), len(s.services.Tags.VisibleTags())
	return ComponentHealth{Status: statusHealthy, Message: fmt.Sprintf("%d cached, %d visible", all, visible)}
}

// streamHealth reports connected event stream clients. The stream is optional.
func (s *Server) streamHealth() ComponentHealth {
	if s.sseManager == nil {
		return ComponentHealth{Status: statusDegraded, Message: "event stream disabled"}
	}
	n := s.sseManager.ClientCount()
	msg := fmt.Sprintf("%d connected clients", n)
	switch n {
	case 0:
		msg = "no connected clients"
	case 1:
		msg = "1 connected client"
	}
	return ComponentHealth{Status: statusHealthy, Message: msg}
}
