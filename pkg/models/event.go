// Package models defines the core domain types shared across the routing,
// pattern, queue, and safety layers.
package models

import "time"

// EventKind identifies the type of streaming-platform event.
type EventKind string

// Supported event kinds.
const (
	EventChat         EventKind = "chat"
	EventGift         EventKind = "gift"
	EventFollow       EventKind = "follow"
	EventShare        EventKind = "share"
	EventSubscribe    EventKind = "subscribe"
	EventLike         EventKind = "like"
	EventGoalProgress EventKind = "goal_progress"
	EventGoalComplete EventKind = "goal_complete"
)

// ValidEventKind reports whether k is one of the supported event kinds.
func ValidEventKind(k EventKind) bool {
	switch k {
	case EventChat, EventGift, EventFollow, EventShare, EventSubscribe,
		EventLike, EventGoalProgress, EventGoalComplete:
		return true
	}
	return false
}

// User is the normalized identity of the viewer that produced an event.
// Normalization from the ingress adapter's dual field schemas happens in
// pkg/ingest; the rest of the core only ever sees this struct.
type User struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	TeamLevel   int        `json:"team_level,omitempty"` // 0 = unknown
	FollowedAt  *time.Time `json:"followed_at,omitempty"`
}

// GiftPayload carries gift-specific event data.
type GiftPayload struct {
	Name   string `json:"name"`
	Coins  int    `json:"coins"`
	Repeat int    `json:"repeat"`
}

// ChatPayload carries chat-specific event data.
type ChatPayload struct {
	Text string `json:"text"`
}

// GoalPayload carries goal progress/completion data.
type GoalPayload struct {
	Label   string `json:"label"`
	Current int    `json:"current"`
	Target  int    `json:"target"`
}

// Event is one atomic occurrence from the streaming ingress. Events are
// immutable once constructed and are the sole input to the router.
type Event struct {
	Kind       EventKind    `json:"kind"`
	User       User         `json:"user"`
	Gift       *GiftPayload `json:"gift,omitempty"`
	Chat       *ChatPayload `json:"chat,omitempty"`
	Likes      int          `json:"likes,omitempty"`
	Goal       *GoalPayload `json:"goal,omitempty"`
	ReceivedAt time.Time    `json:"received_at"`
}
