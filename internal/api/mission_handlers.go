package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mapflag/mapflag-client/internal/domain"
	"github.com/mapflag/mapflag-client/internal/mission"
)

func (s *Server) registerMissionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getMissionBar",
		Method:      http.MethodGet,
		Path:        "/api/v1/mission/bar",
		Summary:     "Get mission bar",
		Description: "Renders the mission bar in the requested language (lang, then Accept-Language)",
		Tags:        []string{"Mission"},
	}, s.handleGetMissionBar)

	huma.Register(s.api, huma.Operation{
		OperationID: "getMission",
		Method:      http.MethodGet,
		Path:        "/api/v1/mission",
		Summary:     "Get mission",
		Description: "Returns whether a mission runs and its draft",
		Tags:        []string{"Mission"},
	}, s.handleGetMission)

	huma.Register(s.api, huma.Operation{
		OperationID: "openMission",
		Method:      http.MethodPost,
		Path:        "/api/v1/mission/open",
		Summary:     "Open mission",
		Description: "Starts placing a new tag of the given category",
		Tags:        []string{"Mission"},
	}, s.handleOpenMission)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateMissionDraft",
		Method:      http.MethodPut,
		Path:        "/api/v1/mission/draft",
		Summary:     "Update mission draft",
		Description: "Sets the position and/or content of the draft",
		Tags:        []string{"Mission"},
	}, s.handleUpdateDraft)

	huma.Register(s.api, huma.Operation{
		OperationID: "cancelMission",
		Method:      http.MethodPost,
		Path:        "/api/v1/mission/cancel",
		Summary:     "Cancel mission",
		Tags:        []string{"Mission"},
	}, s.handleCancelMission)

	huma.Register(s.api, huma.Operation{
		OperationID:   "submitMission",
		Method:        http.MethodPost,
		Path:          "/api/v1/mission/submit",
		Summary:       "Submit mission",
		Description:   "Creates the tag on the server and closes the mission",
		Tags:          []string{"Mission"},
		DefaultStatus: http.StatusCreated,
	}, s.handleSubmitMission)
}

// MissionBarInput selects the bar language.
type MissionBarInput struct {
	Lang string `query:"lang" doc:"BCP 47 language tag"`
}

// MissionBarOutput wraps the bar view for Huma.
type MissionBarOutput struct {
	Body mission.BarView
}

// MissionResponse is the mission state.
type MissionResponse struct {
	Active bool             `json:"active"`
	Draft  *domain.TagDraft `json:"draft,omitempty"`
}

// MissionOutput wraps the mission state for Huma.
type MissionOutput struct {
	Body MissionResponse
}

// OpenMissionInput names the category of the new tag.
type OpenMissionInput struct {
	Body struct {
		CategoryID int `json:"category_id" minimum:"1"`
	}
}

// UpdateDraftInput carries the draft fields to change. Absent fields are left as they are.
type UpdateDraftInput struct {
	Body struct {
		Position *domain.Position `json:"position,omitempty"`
		Content  *string          `json:"content,omitempty"`
	}
}

// SubmitMissionOutput wraps the created tag for Huma.
type SubmitMissionOutput struct {
	Body TagResponse
}

func (s *Server) handleGetMissionBar(ctx context.Context, input *MissionBarInput) (*MissionBarOutput, error) {
	lang := input.Lang
	if lang == "" {
		lang = getLanguage(ctx)
	}
	if lang == "" {
		lang = s.defaultLang
	}
	return &MissionBarOutput{Body: s.services.Bar.View(lang)}, nil
}

func (s *Server) missionOutput() *MissionOutput {
	out := &MissionOutput{}
	if draft, ok := s.services.Mission.Draft(); ok {
		out.Body.Active = true
		out.Body.Draft = &draft
	}
	return out
}

func (s *Server) handleGetMission(_ context.Context, _ *struct{}) (*MissionOutput, error) {
	return s.missionOutput(), nil
}

func (s *Server) handleOpenMission(_ context.Context, input *OpenMissionInput) (*MissionOutput, error) {
	if err := s.services.Mission.Open(input.Body.CategoryID); err != nil {
		return nil, apiError(err)
	}
	return s.missionOutput(), nil
}

func (s *Server) handleUpdateDraft(_ context.Context, input *UpdateDraftInput) (*MissionOutput, error) {
	if input.Body.Position != nil {
		if err := s.services.Mission.SetPosition(*input.Body.Position); err != nil {
			return nil, apiError(err)
		}
	}
	if input.Body.Content != nil {
		if err := s.services.Mission.SetContent(*input.Body.Content); err != nil {
			return nil, apiError(err)
		}
	}
	return s.missionOutput(), nil
}

func (s *Server) handleCancelMission(_ context.Context, _ *struct{}) (*MissionOutput, error) {
	s.services.Bar.Cancel()
	return s.missionOutput(), nil
}

func (s *Server) handleSubmitMission(ctx context.Context, _ *struct{}) (*SubmitMissionOutput, error) {
	tag, err := s.services.Mission.Submit(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	return &SubmitMissionOutput{Body: toTagResponse(tag)}, nil
}
