package service

import (
	"github.com/lk2023060901/st2u-assistant/internal/pkg/sse"
)

// HubPublisher broadcasts session events to SSE subscribers
type HubPublisher struct {
	hub *sse.Hub
}

// NewHubPublisher creates a publisher over hub
func NewHubPublisher(hub *sse.Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

// Publish broadcasts to session:<id>
func (p *HubPublisher) Publish(sessionID, eventType string, data interface{}) {
	p.hub.Broadcast(sessionResource(sessionID), sse.Event{Type: eventType, Data: data})
}

// Close disconnects every subscriber of the session
func (p *HubPublisher) Close(sessionID string) {
	p.hub.CloseResource(sessionResource(sessionID))
}

func sessionResource(sessionID string) string {
	return "session:" + sessionID
}
