package push

import "time"

// Subscription is a registered browser endpoint for Web Push delivery.
type Subscription struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"userId"`
	Endpoint   string     `json:"endpoint"`
	P256dh     string     `json:"-"`
	Auth       string     `json:"-"`
	Active     bool       `json:"active"`
	UserAgent  string     `json:"userAgent,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
