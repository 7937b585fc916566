package constants

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TimePattern is the only accepted stored time format: 24-hour HH:MM.
var TimePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

var (
	reMeridiem  = regexp.MustCompile(`(?i)\s*([ap])\.?\s*m?\.?\s*$`)
	reClockTime = regexp.MustCompile(`^(\d{1,2})(?:[:.h](\d{2}))?(?:[:.](\d{2}))?$`)
	reCompact   = regexp.MustCompile(`^(\d{1,2})(\d{2})$`)
)

// NormalizeTime converts 12-hour and loose 24-hour inputs into HH:MM.
// "2:30 PM" -> "14:30", "12:30 AM" -> "00:30", "9.05" -> "09:05", "0930" -> "09:30".
// Already normalized values are returned unchanged.
func NormalizeTime(s string) (string, bool) {
	v := strings.TrimSpace(s)
	if v == "" {
		return "", false
	}
	if TimePattern.MatchString(v) {
		return v, true
	}

	meridiem := ""
	if m := reMeridiem.FindStringSubmatch(v); m != nil {
		meridiem = strings.ToLower(m[1])
		v = strings.TrimSpace(v[:len(v)-len(m[0])])
	}
	v = strings.ReplaceAll(v, " ", "")

	var hour, minute int
	if m := reClockTime.FindStringSubmatch(v); m != nil {
		hour, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
	} else if m := reCompact.FindStringSubmatch(v); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
	} else {
		return "", false
	}
	if minute > 59 {
		return "", false
	}

	switch meridiem {
	case "a":
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour == 12 {
			hour = 0
		}
	case "p":
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour > 23 {
			return "", false
		}
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// MinutesSinceMidnight parses a normalized HH:MM value.
func MinutesSinceMidnight(hhmm string) (int, error) {
	if !TimePattern.MatchString(hhmm) {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", hhmm)
	}
	h, _ := strconv.Atoi(hhmm[:2])
	m, _ := strconv.Atoi(hhmm[3:])
	return h*60 + m, nil
}

// FormatMinutes renders minutes since midnight as HH:MM.
func FormatMinutes(m int) string {
	if m < 0 {
		m = 0
	}
	return fmt.Sprintf("%02d:%02d", (m/60)%24, m%60)
}
