package preference

import (
	"fmt"
	"time"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
)

// Preference holds the channel toggles of one user for one notification type.
// A missing row means every channel is enabled.
type Preference struct {
	UserID     int64             `json:"userId"`
	Type       notification.Type `json:"notificationType"`
	InApp      bool              `json:"inApp"`
	Email      bool              `json:"email"`
	Push       bool              `json:"push"`
	QuietHours *QuietHours       `json:"quietHours,omitempty"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Default is the implicit preference used when no row exists.
func Default(userID int64, t notification.Type) Preference {
	return Preference{UserID: userID, Type: t, InApp: true, Email: true, Push: true}
}

func (p Preference) Enabled(ch notification.Channel) bool {
	switch ch {
	case notification.ChannelInApp:
		return p.InApp
	case notification.ChannelEmail:
		return p.Email
	case notification.ChannelPush:
		return p.Push
	default:
		return false
	}
}

// QuietHours is a daily window, in the user's timezone, during which
// secondary channels are deferred. Start after End wraps midnight.
type QuietHours struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone,omitempty"`
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("quiet hours %q: want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (q QuietHours) Validate() error {
	if _, err := parseClock(q.Start); err != nil {
		return err
	}
	if _, err := parseClock(q.End); err != nil {
		return err
	}
	if q.Timezone != "" {
		if _, err := time.LoadLocation(q.Timezone); err != nil {
			return fmt.Errorf("quiet hours timezone: %w", err)
		}
	}
	return nil
}

// DeferUntil returns the end of the quiet window when now falls inside it,
// and now otherwise.
func (q QuietHours) DeferUntil(now time.Time) time.Time {
	start, err1 := parseClock(q.Start)
	end, err2 := parseClock(q.End)
	if err1 != nil || err2 != nil || start == end {
		return now
	}
	loc := time.UTC
	if q.Timezone != "" {
		if l, err := time.LoadLocation(q.Timezone); err == nil {
			loc = l
		}
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	// End as wall clock time, dayOffset days after today.
	endOn := func(dayOffset int) time.Time {
		return time.Date(local.Year(), local.Month(), local.Day()+dayOffset, end/60, end%60, 0, 0, loc)
	}

	var inside bool
	var endAt time.Time
	switch {
	case start < end:
		inside = minute >= start && minute < end
		endAt = endOn(0)
	case minute >= start:
		inside = true
		endAt = endOn(1)
	default:
		inside = minute < end
		endAt = endOn(0)
	}
	if !inside {
		return now
	}
	return endAt.UTC()
}
