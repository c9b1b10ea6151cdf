package mapping

import (
	"strings"
	"time"

	"github.com/streamrig/streamrig/pkg/models"
)

// compiledMapping is a mapping admitted into the engine, with its message
// pattern compiled once and its gift name pre-lowered.
type compiledMapping struct {
	m       *models.Mapping
	msg     *SafeRegex // nil when no message pattern is set
	lowGift string
}

// matchResult carries the condition outcome plus the regex timing, so the
// engine can count slow matches without re-running the pattern.
type matchResult struct {
	matched   bool
	regexTime time.Duration
	regexRan  bool
}

// matchesConditions evaluates all conditions of the mapping against the
// event. Fields the event does not carry fail closed (no match).
func (cm *compiledMapping) matchesConditions(e *models.Event, now time.Time) matchResult {
	c := cm.m.Conditions

	// Blacklist rejects on id or display-name match; whitelist, when set,
	// requires one.
	if userInList(c.Blacklist, e.User) {
		return matchResult{}
	}
	if len(c.Whitelist) > 0 && !userInList(c.Whitelist, e.User) {
		return matchResult{}
	}

	if c.TeamLevelMin > 0 && e.User.TeamLevel < c.TeamLevelMin {
		return matchResult{}
	}

	if c.FollowerAgeMinDays > 0 {
		if e.User.FollowedAt == nil {
			return matchResult{}
		}
		minAge := time.Duration(c.FollowerAgeMinDays) * 24 * time.Hour
		if now.Sub(*e.User.FollowedAt) < minAge {
			return matchResult{}
		}
	}

	if cm.lowGift != "" {
		if e.Gift == nil || strings.ToLower(e.Gift.Name) != cm.lowGift {
			return matchResult{}
		}
	}

	if c.MinCoins > 0 {
		if e.Gift == nil || e.Gift.Coins < c.MinCoins {
			return matchResult{}
		}
	}
	if c.MaxCoins != nil {
		if e.Gift == nil || e.Gift.Coins > *c.MaxCoins {
			return matchResult{}
		}
	}

	if c.MinLikes > 0 && e.Likes < c.MinLikes {
		return matchResult{}
	}

	if cm.msg != nil {
		if e.Chat == nil {
			return matchResult{}
		}
		matched, elapsed := cm.msg.Match(e.Chat.Text)
		return matchResult{matched: matched, regexTime: elapsed, regexRan: true}
	}

	return matchResult{matched: true}
}

// userInList reports whether the user's id or display name appears in the
// list. Comparison is exact.
func userInList(list []string, u models.User) bool {
	for _, entry := range list {
		if entry == "" {
			continue
		}
		if entry == u.ID || entry == u.DisplayName {
			return true
		}
	}
	return false
}

// hasConcreteGiftName reports whether the mapping carries a concrete gift
// name condition. Wildcard names are normalized to empty at admission, so a
// non-empty lowGift is always concrete.
func (cm *compiledMapping) hasConcreteGiftName() bool {
	return cm.lowGift != ""
}
