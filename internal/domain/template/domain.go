package template

import (
	"time"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
)

// Template is the stored pattern for one (type, channel) pair. UpdatedAt acts
// as its version.
type Template struct {
	ID        int64                `json:"id"`
	Type      notification.Type    `json:"type"`
	Channel   notification.Channel `json:"channel"`
	Subject   string               `json:"subject"`
	Body      string               `json:"body"`
	HTML      string               `json:"html,omitempty"`
	Variables []string             `json:"variables"`
	Active    bool                 `json:"active"`
	UpdatedAt time.Time            `json:"updatedAt"`
}
