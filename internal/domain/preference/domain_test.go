package preference

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
)

func TestQuietHours_DeferUntil(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	overnight := QuietHours{Start: "22:00", End: "07:00", Timezone: "America/New_York"}
	daytime := QuietHours{Start: "09:00", End: "17:30", Timezone: "America/New_York"}

	cases := []struct {
		name string
		q    QuietHours
		now  time.Time
		want time.Time
	}{
		{
			name: "outside the window",
			q:    overnight,
			now:  time.Date(2026, 6, 10, 12, 0, 0, 0, ny),
			want: time.Date(2026, 6, 10, 12, 0, 0, 0, ny),
		},
		{
			name: "before midnight waits for tomorrow morning",
			q:    overnight,
			now:  time.Date(2026, 6, 10, 23, 15, 0, 0, ny),
			want: time.Date(2026, 6, 11, 7, 0, 0, 0, ny),
		},
		{
			name: "after midnight waits for this morning",
			q:    overnight,
			now:  time.Date(2026, 6, 11, 2, 0, 0, 0, ny),
			want: time.Date(2026, 6, 11, 7, 0, 0, 0, ny),
		},
		{
			name: "spring forward day",
			q:    overnight,
			now:  time.Date(2026, 3, 8, 3, 30, 0, 0, ny),
			want: time.Date(2026, 3, 8, 7, 0, 0, 0, ny),
		},
		{
			name: "fall back day",
			q:    overnight,
			now:  time.Date(2026, 11, 1, 3, 0, 0, 0, ny),
			want: time.Date(2026, 11, 1, 7, 0, 0, 0, ny),
		},
		{
			name: "evening before fall back",
			q:    overnight,
			now:  time.Date(2026, 10, 31, 22, 30, 0, 0, ny),
			want: time.Date(2026, 11, 1, 7, 0, 0, 0, ny),
		},
		{
			name: "daytime window",
			q:    daytime,
			now:  time.Date(2026, 3, 8, 10, 0, 0, 0, ny),
			want: time.Date(2026, 3, 8, 17, 30, 0, 0, ny),
		},
		{
			name: "end is exclusive",
			q:    daytime,
			now:  time.Date(2026, 3, 8, 17, 30, 0, 0, ny),
			want: time.Date(2026, 3, 8, 17, 30, 0, 0, ny),
		},
		{
			name: "empty window",
			q:    QuietHours{Start: "08:00", End: "08:00"},
			now:  time.Date(2026, 3, 8, 8, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 8, 8, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.q.DeferUntil(tc.now)
			assert.True(t, tc.want.Equal(got), "got %s, want %s", got.In(ny), tc.want.In(ny))
		})
	}
}

func TestQuietHours_Validate(t *testing.T) {
	require.NoError(t, QuietHours{Start: "22:00", End: "07:00", Timezone: "Europe/Rome"}.Validate())
	require.Error(t, QuietHours{Start: "25:00", End: "07:00"}.Validate())
	require.Error(t, QuietHours{Start: "22:00", End: "7"}.Validate())
	require.Error(t, QuietHours{Start: "22:00", End: "07:00", Timezone: "Mars/Base"}.Validate())
}

func TestDefault_EnablesEveryChannel(t *testing.T) {
	p := Default(1, notification.TypeTicketCreated)
	assert.True(t, p.Enabled(notification.ChannelInApp))
	assert.True(t, p.Enabled(notification.ChannelEmail))
	assert.True(t, p.Enabled(notification.ChannelPush))
	assert.False(t, p.Enabled(notification.Channel("SMS")))
}
