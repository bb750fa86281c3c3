package schemas

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{name: "go_duration", in: "1h30m", want: 90 * time.Minute},
		{name: "timecode_hms", in: "01:02:03", want: time.Hour + 2*time.Minute + 3*time.Second},
		{name: "timecode_millis_padding", in: "00:00:01.5", want: 1500 * time.Millisecond},
		{name: "iso8601", in: "PT1H30M", want: 90 * time.Minute},
		{name: "iso8601_fractional", in: "PT2.5S", want: 2500 * time.Millisecond},
		{name: "iso8601_empty", in: "PT", wantErr: true},
		{name: "invalid", in: "nope", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDuration(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSeconds_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    Seconds
		wantErr bool
	}{
		{in: `12.5`, want: 12.5},
		{in: `0`, want: 0},
		{in: `"3"`, want: 3},
		{in: `"1.5s"`, want: 1.5},
		{in: `"00:00:05.250"`, want: 5.25},
		{in: `"PT1M"`, want: 60},
		{in: `"soon"`, wantErr: true},
		{in: `true`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			var s Seconds
			err := json.Unmarshal([]byte(tc.in), &s)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, float64(tc.want), float64(s), 1e-9)
		})
	}
}

func TestSeconds_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Start Seconds `json:"start"`
	}{Start: 2.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"start": 2.5}`, string(b))

	assert.Equal(t, 2500*time.Millisecond, Seconds(2.5).Duration())
}
