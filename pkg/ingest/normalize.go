// Package ingest adapts raw streaming-platform payloads into normalized
// domain events and routes them through the mapping engine to the
// dispatcher.
package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/streamrig/streamrig/pkg/models"
)

// Normalization errors.
var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMissingUser      = errors.New("missing user identity")
)

// RawUser is the viewer identity as sent by the ingress adapter. The
// upstream library emits two generations of field names; both are accepted
// and collapsed during normalization.
type RawUser struct {
	UserID   string `json:"userId,omitempty"`
	UniqueID string `json:"uniqueId,omitempty"`

	UserName string `json:"userName,omitempty"`
	Username string `json:"username,omitempty"`
	Nickname string `json:"nickname,omitempty"`

	TeamLevel       int `json:"teamLevel,omitempty"`
	TeamMemberLevel int `json:"teamMemberLevel,omitempty"`

	FollowedAt *time.Time `json:"followedAt,omitempty"`
}

// RawGoal is the stream goal payload as sent by the ingress adapter.
type RawGoal struct {
	Label   string `json:"label"`
	Current int    `json:"current"`
	Target  int    `json:"target"`
}

// RawEvent is the wire shape of one ingress event before normalization.
type RawEvent struct {
	Type string  `json:"type"`
	User RawUser `json:"user"`

	GiftName    string `json:"giftName,omitempty"`
	Coins       int    `json:"coins,omitempty"`
	GiftCoins   int    `json:"giftCoins,omitempty"`
	RepeatCount int    `json:"repeatCount,omitempty"`

	Comment   string   `json:"comment,omitempty"`
	LikeCount int      `json:"likeCount,omitempty"`
	Goal      *RawGoal `json:"goal,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Normalize collapses the raw payload into a domain event. Dual-schema user
// fields resolve to the first populated variant; an event with no user id
// under either schema is rejected.
func (r *RawEvent) Normalize() (*models.Event, error) {
	kind := models.EventKind(r.Type)
	if !models.ValidEventKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, r.Type)
	}

	user, err := r.User.normalize()
	if err != nil {
		return nil, err
	}

	ev := &models.Event{
		Kind:       kind,
		User:       user,
		ReceivedAt: r.Timestamp,
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}

	switch kind {
	case models.EventGift:
		coins := r.Coins
		if coins == 0 {
			coins = r.GiftCoins
		}
		repeat := r.RepeatCount
		if repeat == 0 {
			repeat = 1
		}
		ev.Gift = &models.GiftPayload{Name: r.GiftName, Coins: coins, Repeat: repeat}
	case models.EventChat:
		ev.Chat = &models.ChatPayload{Text: r.Comment}
	case models.EventLike:
		ev.Likes = r.LikeCount
	case models.EventGoalProgress, models.EventGoalComplete:
		if r.Goal != nil {
			ev.Goal = &models.GoalPayload{Label: r.Goal.Label, Current: r.Goal.Current, Target: r.Goal.Target}
		}
	}
	return ev, nil
}

// normalize resolves the dual user field schemas.
func (u *RawUser) normalize() (models.User, error) {
	id := firstNonEmpty(u.UserID, u.UniqueID)
	if id == "" {
		return models.User{}, ErrMissingUser
	}

	name := firstNonEmpty(u.UserName, u.Username, u.Nickname)
	if name == "" {
		name = id
	}

	level := u.TeamLevel
	if level == 0 {
		level = u.TeamMemberLevel
	}

	return models.User{
		ID:          id,
		DisplayName: name,
		TeamLevel:   level,
		FollowedAt:  u.FollowedAt,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
