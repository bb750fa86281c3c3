package schemas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	timecodePattern = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})(?:\.(\d{1,3}))?$`)
	isoPartPattern  = regexp.MustCompile(`(\d+(?:\.\d+)?)([HMS])`)
)

// Seconds is a point or span on the composition timeline, in seconds.
// In JSON it is either a number of seconds or a duration string.
type Seconds float64

// Duration converts s to a time.Duration
func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

// MarshalJSON encodes Seconds as a plain number
func (s Seconds) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(s), 'f', -1, 64)), nil
}

// UnmarshalJSON accepts 12.5, "12.5", "12.5s", "00:00:12.500" or "PT12.5S"
func (s *Seconds) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] != '"' {
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("invalid seconds value %s: %w", string(b), err)
		}
		*s = Seconds(f)
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}

	if f, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
		*s = Seconds(f)
		return nil
	}

	d, err := ParseDuration(str)
	if err != nil {
		return err
	}
	*s = Seconds(d.Seconds())
	return nil
}

// ParseDuration parses duration from multiple formats:
// - Go duration: "1h30m", "90s"
// - Timecode: "01:30:00", "00:05:30.500"
// - ISO 8601: "PT1H30M", "PT2.5S"
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	if d, err := parseTimecode(s); err == nil {
		return d, nil
	}

	if strings.HasPrefix(s, "PT") {
		return parseISO8601(s)
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

func parseTimecode(s string) (time.Duration, error) {
	matches := timecodePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid timecode format")
	}

	hours, _ := strconv.Atoi(matches[1])
	minutes, _ := strconv.Atoi(matches[2])
	seconds, _ := strconv.Atoi(matches[3])

	d := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second

	if ms := matches[4]; ms != "" {
		for len(ms) < 3 {
			ms += "0"
		}
		millis, _ := strconv.Atoi(ms)
		d += time.Duration(millis) * time.Millisecond
	}

	return d, nil
}

func parseISO8601(s string) (time.Duration, error) {
	rest := strings.TrimPrefix(s, "PT")
	parts := isoPartPattern.FindAllStringSubmatch(rest, -1)
	if len(parts) == 0 {
		return 0, fmt.Errorf("invalid ISO 8601 duration: %s", s)
	}

	var d time.Duration
	for _, p := range parts {
		value, _ := strconv.ParseFloat(p[1], 64)
		switch p[2] {
		case "H":
			d += time.Duration(value * float64(time.Hour))
		case "M":
			d += time.Duration(value * float64(time.Minute))
		case "S":
			d += time.Duration(value * float64(time.Second))
		}
	}

	return d, nil
}
