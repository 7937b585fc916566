package constants

import (
	"regexp"
	"strings"
	"time"
)

// Day is one of the seven canonical, uppercase weekday names.
type Day string

const (
	Monday    Day = "MONDAY"
	Tuesday   Day = "TUESDAY"
	Wednesday Day = "WEDNESDAY"
	Thursday  Day = "THURSDAY"
	Friday    Day = "FRIDAY"
	Saturday  Day = "SATURDAY"
	Sunday    Day = "SUNDAY"
)

// AllDays is ordered Monday first.
var AllDays = []Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// SchoolDays is the default set of days checked for gaps.
var SchoolDays = []Day{Monday, Tuesday, Wednesday, Thursday, Friday}

var dayAliases = map[string]Day{
	"mon": Monday, "mo": Monday,
	"tue": Tuesday, "tues": Tuesday, "tu": Tuesday,
	"wed": Wednesday, "weds": Wednesday, "we": Wednesday,
	"thu": Thursday, "thur": Thursday, "thurs": Thursday, "th": Thursday,
	"fri": Friday, "fr": Friday,
	"sat": Saturday, "sa": Saturday,
	"sun": Sunday, "su": Sunday,
}

var (
	reDayRange = regexp.MustCompile(`^\s*([A-Za-z.]+)\s*(?:-|–|—|to|through|thru)\s*([A-Za-z.]+)\s*$`)
	reDayList  = regexp.MustCompile(`\s*(?:,|/|&|\+|\band\b)\s*`)
)

// Valid reports whether d is one of the seven canonical values.
func (d Day) Valid() bool {
	return d.Index() >= 0
}

// Index returns the Monday-based position of d, or -1.
func (d Day) Index() int {
	for i, v := range AllDays {
		if v == d {
			return i
		}
	}
	return -1
}

// Title returns the day as "Monday".
func (d Day) Title() string {
	s := strings.ToLower(string(d))
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Weekday converts d to time.Weekday. Invalid days map to Sunday.
func (d Day) Weekday() time.Weekday {
	i := d.Index()
	if i < 0 {
		return time.Sunday
	}
	return time.Weekday((i + 1) % 7)
}

// ParseDay maps a full name or common abbreviation onto a canonical Day.
func ParseDay(s string) (Day, bool) {
	v := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ".")))
	if v == "" {
		return "", false
	}
	for _, d := range AllDays {
		if v == strings.ToLower(string(d)) {
			return d, true
		}
	}
	if d, ok := dayAliases[v]; ok {
		return d, true
	}
	return "", false
}

// ExpandDays turns a single day, a range ("Mon-Wed", "Monday to Friday") or a
// list ("Mon/Wed/Fri", "Tue & Thu") into canonical days in order of appearance.
func ExpandDays(s string) ([]Day, bool) {
	if d, ok := ParseDay(s); ok {
		return []Day{d}, true
	}
	if m := reDayRange.FindStringSubmatch(s); m != nil {
		from, ok1 := ParseDay(m[1])
		to, ok2 := ParseDay(m[2])
		if !ok1 || !ok2 {
			return nil, false
		}
		out := []Day{}
		for i := from.Index(); ; i = (i + 1) % len(AllDays) {
			out = append(out, AllDays[i])
			if AllDays[i] == to {
				break
			}
		}
		return out, true
	}
	parts := reDayList.Split(strings.TrimSpace(s), -1)
	if len(parts) < 2 {
		return nil, false
	}
	out := make([]Day, 0, len(parts))
	seen := map[Day]bool{}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		d, ok := ParseDay(p)
		if !ok {
			return nil, false
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out, len(out) > 0
}
