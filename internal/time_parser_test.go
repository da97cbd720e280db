package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseEpochSeconds(t *testing.T) {
	v, ok := ParseEpochSeconds(" 1372700873 ")
	assert.True(t, ok)
	assert.Equal(t, int64(1372700873), v)

	_, ok = ParseEpochSeconds("")
	assert.False(t, ok)
	_, ok = ParseEpochSeconds("soon")
	assert.False(t, ok)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2015, 10, 21, 7, 27, 0, 0, time.UTC)

	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{name: "seconds", value: "120", want: 2 * time.Minute, wantOK: true},
		{name: "http date", value: "Wed, 21 Oct 2015 07:28:00 GMT", want: time.Minute, wantOK: true},
		{name: "date in the past", value: "Wed, 21 Oct 2015 07:00:00 GMT", want: 0, wantOK: true},
		{name: "negative seconds", value: "-5", want: 0, wantOK: true},
		{name: "empty", value: "", wantOK: false},
		{name: "garbage", value: "later please", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRetryAfter(tt.value, now)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseServerDate(t *testing.T) {
	got, ok := ParseServerDate("Mon, 02 Jan 2006 15:04:05 GMT")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC), got.UTC())
}
