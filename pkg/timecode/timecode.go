// Package timecode converts between clock-style timestamps and seconds.
package timecode

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is returned for malformed or negative timestamps.
var ErrInvalid = errors.New("invalid timestamp")

// Parse accepts HH:MM:SS, MM:SS or SS. Any part may carry a fraction.
func Parse(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalid)
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}

	var total float64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || strings.Trim(p, "0123456789.") != "" {
			return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
		total = total*60 + v
	}
	return total, nil
}

// Format renders whole seconds as HH:MM:SS. Negative input renders as zero.
func Format(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(math.Floor(seconds))
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// FormatPrecise renders HH:MM:SS.mmm, the form ffmpeg accepts for -ss/-t.
func FormatPrecise(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, (ms%3600000)/60000, (ms%60000)/1000, ms%1000)
}

// FromDuration converts d to fractional seconds.
func FromDuration(d time.Duration) float64 {
	return d.Seconds()
}

// ToDuration converts fractional seconds to a time.Duration.
func ToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// IsClock reports whether s is a strict HH:MM:SS wall-clock value
// (hours 0-23, minutes and seconds 0-59).
func IsClock(s string) bool {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return false
	}
	limits := []int{23, 59, 59}
	for i, p := range parts {
		if len(p) != 2 || p[0] < '0' || p[0] > '9' || p[1] < '0' || p[1] > '9' {
			return false
		}
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > limits[i] {
			return false
		}
	}
	return true
}
