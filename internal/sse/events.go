// Package sse streams client state changes to local UI processes as Server-Sent Events.
package sse

import (
	"time"

	"github.com/mapflag/mapflag-client/internal/domain"
)

// EventType is the SSE event name.
type EventType string

const (
	EventSessionChanged EventType = "session.changed"

	EventTagChanged       EventType = "tag.changed"
	EventTagsRefetched    EventType = "tags.refetched"
	EventActiveTagChanged EventType = "tag.active_changed"
	EventTagDetailLoaded  EventType = "tag.detail_loaded"
	EventFiltersChanged   EventType = "filters.changed"

	EventMissionOpened EventType = "mission.opened"
	EventMissionClosed EventType = "mission.closed"

	// EventSubscriptionError reports a failure of the live update channel.
	EventSubscriptionError EventType = "subscription.error"

	EventHeartbeat EventType = "heartbeat"
)

// Event is one SSE message. ID is assigned by the Manager when the event is
// broadcast; heartbeats carry none.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	ID        uint64    `json:"id,omitempty"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
}

// Emitter accepts events for broadcast.
type Emitter interface {
	Emit(Event)
}

type discard struct{}

func (discard) Emit(Event) {}

// Discard is an Emitter that drops everything.
var Discard Emitter = discard{}

// SessionChangedData is the payload of session.changed.
type SessionChangedData struct {
	Session domain.Session      `json:"session"`
	Phase   domain.SessionPhase `json:"phase"`
	IsGuest bool                `json:"is_guest"`
}

// ActiveTagData is the payload of tag.active_changed and tag.detail_loaded.
type ActiveTagData struct {
	ActiveTagID string            `json:"active_tag_id"`
	Detail      *domain.TagDetail `json:"detail,omitempty"`
}

// FiltersData is the payload of filters.changed.
type FiltersData struct {
	FilterTags []int `json:"filter_tags"`
}

// TagsRefetchedData is the payload of tags.refetched.
type TagsRefetchedData struct {
	Count int `json:"count"`
}

// MissionData is the payload of mission.opened and mission.closed.
type MissionData struct {
	CategoryID int  `json:"category_id,omitempty"`
	Submitted  bool `json:"submitted,omitempty"`
}

// ErrorData carries a failure message.
type ErrorData struct {
	Message string `json:"message"`
}

func newEvent(t EventType, data any) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now()}
}

// NewSessionChangedEvent reports a session state snapshot.
func NewSessionChangedEvent(s domain.Session) Event {
	return newEvent(EventSessionChanged, SessionChangedData{Session: s, Phase: s.Phase(), IsGuest: s.IsGuest()})
}

// NewTagChangedEvent forwards one live update.
func NewTagChangedEvent(change domain.TagChange) Event {
	return newEvent(EventTagChanged, change)
}

// NewTagsRefetchedEvent reports a full list reload.
func NewTagsRefetchedEvent(count int) Event {
	return newEvent(EventTagsRefetched, TagsRefetchedData{Count: count})
}

// NewActiveTagChangedEvent reports a selection change. An empty id means no selection.
func NewActiveTagChangedEvent(id string) Event {
	return newEvent(EventActiveTagChanged, ActiveTagData{ActiveTagID: id})
}

// NewTagDetailLoadedEvent reports a detail payload accepted for the active tag.
func NewTagDetailLoadedEvent(id string, detail domain.TagDetail) Event {
	return newEvent(EventTagDetailLoaded, ActiveTagData{ActiveTagID: id, Detail: &detail})
}

// NewFiltersChangedEvent reports the current filter set.
func NewFiltersChangedEvent(filters []int) Event {
	return newEvent(EventFiltersChanged, FiltersData{FilterTags: filters})
}

// NewMissionOpenedEvent reports that a mission started.
func NewMissionOpenedEvent(categoryID int) Event {
	return newEvent(EventMissionOpened, MissionData{CategoryID: categoryID})
}

// NewMissionClosedEvent reports that the mission ended, by cancel or submit.
func NewMissionClosedEvent(submitted bool) Event {
	return newEvent(EventMissionClosed, MissionData{Submitted: submitted})
}

// NewSubscriptionErrorEvent reports a live channel failure.
func NewSubscriptionErrorEvent(err error) Event {
	return newEvent(EventSubscriptionError, ErrorData{Message: err.Error()})
}

// NewHeartbeatEvent keeps idle connections open.
func NewHeartbeatEvent() Event {
	return newEvent(EventHeartbeat, struct{}{})
}
