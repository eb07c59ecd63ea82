package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    string
	}{
		{"zero", 0, NoTime},
		{"negative", -3, NoTime},
		{"one minute two seconds", 62.5, "01:02"},
		{"exact minute", 60, "01:00"},
		{"under a minute", 59.9, "00:59"},
		{"long visit", 3725, "62:05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.seconds))
		})
	}
}

func TestFormatDurationSubSecond(t *testing.T) {
	// 0.4s is positive, so it is not the placeholder, but both components
	// floor to zero.
	assert.Equal(t, "00:00", FormatDuration(0.4))
}

func TestSafeKey(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "_"},
		{"/blog", "_blog"},
		{"/havefun/minesweeper", "_havefun_minesweeper"},
		{"/file.html", "_file_html"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeKey(tt.path))
	}
}

func TestPageTitle(t *testing.T) {
	assert.Equal(t, "Home", PageTitle("/"))
	assert.Equal(t, "Minesweeper", PageTitle("/havefun/minesweeper"))
	assert.Equal(t, "/no/such/page", PageTitle("/no/such/page"))
}

func TestTruncateVisitorID(t *testing.T) {
	assert.Equal(t, "abcdefgh", TruncateVisitorID("abcdefghijkl"))
	assert.Equal(t, "short", TruncateVisitorID("short"))
	assert.Equal(t, "", TruncateVisitorID(""))
}

func TestDayLabel(t *testing.T) {
	d := time.Date(2026, time.March, 7, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "3/7", DayLabel(d))
	assert.Equal(t, "12/31", DayLabel(time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)))
}
