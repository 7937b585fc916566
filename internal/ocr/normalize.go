package ocr

import (
	"regexp"
	"strings"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	// clock-like tokens where OCR swapped digits for look-alike letters: "O9:3O", "l0.15"
	reClockArtifact = regexp.MustCompile(`\b([0-9OoIl]{1,2})([:.])([0-9Oo]{2})\b`)
)

var reBoxNoise = regexp.MustCompile(`(?m)^\s*[_\-=|]{3,}\s*$`)

var digitLookalikes = strings.NewReplacer("O", "0", "o", "0", "I", "1", "l", "1")

// Normalize collapses noisy whitespace and fixes common OCR artifacts.
// Conservative: keeps line breaks; collapses >2 newlines into a single blank line.
// Tabs become double spaces so column layouts survive as separators.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reTabs.ReplaceAllString(s, "  ")
	s = reMultiSpace.ReplaceAllString(s, "  ")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	s = strings.Join(lines, "\n")
	s = reClockArtifact.ReplaceAllStringFunc(s, fixClockToken)
	return strings.TrimSpace(s)
}

func fixClockToken(tok string) string {
	m := reClockArtifact.FindStringSubmatch(tok)
	if m == nil {
		return tok
	}
	// only rewrite when at least one real digit is present
	if !strings.ContainsAny(m[1]+m[3], "0123456789") {
		return tok
	}
	return digitLookalikes.Replace(m[1]) + m[2] + digitLookalikes.Replace(m[3])
}
