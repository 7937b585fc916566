package constants

import (
	"regexp"
	"strings"
)

var reSpaces = regexp.MustCompile(`\s+`)

// subjectAbbreviations maps lowercased short forms onto canonical subject names.
var subjectAbbreviations = map[string]string{
	"math":     "Mathematics",
	"maths":    "Mathematics",
	"mth":      "Mathematics",
	"pe":       "Physical Education",
	"p.e":      "Physical Education",
	"p.e.":     "Physical Education",
	"phys ed":  "Physical Education",
	"gym":      "Physical Education",
	"eng":      "English",
	"engl":     "English",
	"sci":      "Science",
	"bio":      "Biology",
	"chem":     "Chemistry",
	"phy":      "Physics",
	"phys":     "Physics",
	"geo":      "Geography",
	"geog":     "Geography",
	"hist":     "History",
	"ict":      "Information Technology",
	"it":       "Information Technology",
	"cs":       "Computer Science",
	"comp sci": "Computer Science",
	"re":       "Religious Education",
	"rs":       "Religious Studies",
	"dt":       "Design and Technology",
	"d&t":      "Design and Technology",
	"mus":      "Music",
	"fr":       "French",
	"span":     "Spanish",
	"ger":      "German",
	"econ":     "Economics",
	"lit":      "Literature",
	"eng lit":  "English Literature",
	"pshe":     "PSHE",
	"soc stud": "Social Studies",
	"sst":      "Social Studies",
	"bus stud": "Business Studies",
	"acc":      "Accounting",
}

// breakLabels are non-teaching periods kept as entries under their label.
var breakLabels = map[string]string{
	"break":        "Break",
	"recess":       "Break",
	"short break":  "Break",
	"lunch":        "Lunch",
	"lunch break":  "Lunch",
	"assembly":     "Assembly",
	"registration": "Registration",
	"tutor time":   "Tutor Time",
	"form time":    "Tutor Time",
	"free":         "Free Period",
	"free period":  "Free Period",
	"study":        "Study Period",
}

func subjectKey(s string) string {
	return strings.ToLower(reSpaces.ReplaceAllString(strings.TrimSpace(s), " "))
}

// CanonicalizeSubject applies the abbreviation table. Unknown subjects are
// returned trimmed with internal whitespace collapsed.
func CanonicalizeSubject(input string) string {
	clean := reSpaces.ReplaceAllString(strings.TrimSpace(input), " ")
	if clean == "" {
		return ""
	}
	key := strings.ToLower(clean)
	if v, ok := subjectAbbreviations[key]; ok {
		return v
	}
	if v, ok := breakLabels[key]; ok {
		return v
	}
	if v, ok := subjectAbbreviations[strings.TrimSuffix(key, ".")]; ok {
		return v
	}
	return clean
}

// IsBreakLabel reports whether subject names a non-teaching period.
func IsBreakLabel(subject string) bool {
	key := subjectKey(subject)
	if _, ok := breakLabels[key]; ok {
		return true
	}
	for _, v := range breakLabels {
		if strings.EqualFold(v, subject) {
			return true
		}
	}
	return false
}
