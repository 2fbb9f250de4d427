package llm

import (
	"regexp"
	"strconv"
	"strings"
)

// Private tokens placed in the prompt. They use mathematical brackets so
// they never collide with page text.
const (
	DelimiterToken = "⟦TRANSHOT_DELIM⟧"
	QuoteToken     = "⟦TRANSHOT_QUOTE⟧"
)

// Splitter breaks a model reply into segments.
type Splitter struct {
	Name  string
	Split func(reply string) []string
}

// DefaultSplitters are tried in order; the first producing more than one
// segment wins.
var DefaultSplitters = []Splitter{
	{Name: "delimiter", Split: SplitDelimiter},
	{Name: "numbered", Split: SplitNumbered},
	{Name: "paragraphs", Split: SplitParagraphs},
	{Name: "lines", Split: SplitLines},
}

var (
	numberedLine = regexp.MustCompile(`(?m)^[ \t]*(\d+)\)[ \t]*`)
	blankLines   = regexp.MustCompile(`\n[ \t]*\n+`)
	numberPrefix = regexp.MustCompile(`^(\d+)\)[ \t]*`)
)

// SplitDelimiter splits on DelimiterToken, keeping empty segments so that
// blank translations stay aligned.
func SplitDelimiter(reply string) []string {
	parts := strings.Split(strings.TrimSpace(reply), DelimiterToken)
	// a trailing delimiter is not an extra segment
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// SplitNumbered splits on lines starting with "N)". Text before the first
// number is discarded.
func SplitNumbered(reply string) []string {
	locs := numberedLine.FindAllStringIndex(reply, -1)
	if len(locs) == 0 {
		return []string{strings.TrimSpace(reply)}
	}
	parts := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(reply)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		parts = append(parts, strings.TrimSpace(reply[loc[1]:end]))
	}
	return parts
}

// SplitParagraphs splits on blank lines.
func SplitParagraphs(reply string) []string {
	return nonEmpty(blankLines.Split(strings.TrimSpace(reply), -1))
}

// SplitLines splits on single newlines.
func SplitLines(reply string) []string {
	return nonEmpty(strings.Split(strings.TrimSpace(reply), "\n"))
}

func nonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitReply runs the splitter chain. When nothing yields more than one
// segment the whole reply is returned as one segment and name is empty.
func splitReply(reply string, splitters []Splitter) (segments []string, name string) {
	for _, s := range splitters {
		if parts := s.Split(reply); len(parts) > 1 {
			return parts, s.Name
		}
	}
	return []string{strings.TrimSpace(reply)}, ""
}

// MaskQuotes replaces literal double quotes with QuoteToken.
func MaskQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, QuoteToken)
}

// UnmaskQuotes restores literal double quotes.
func UnmaskQuotes(s string) string {
	return strings.ReplaceAll(s, QuoteToken, `"`)
}

// stripOrdinal removes an echoed "i)" prefix that matches the segment's
// 1-based position.
func stripOrdinal(s string, position int) string {
	m := numberPrefix.FindStringSubmatchIndex(s)
	if m == nil {
		return s
	}
	if n, err := strconv.Atoi(s[m[2]:m[3]]); err != nil || n != position {
		return s
	}
	return s[m[1]:]
}

// collapseRepeats detects a reply that repeats the same n segments k times
// and keeps one copy.
func collapseRepeats(segments []string, n int) ([]string, bool) {
	if n == 0 || len(segments) <= n || len(segments)%n != 0 {
		return segments, false
	}
	first := segments[:n]
	for start := n; start < len(segments); start += n {
		for i := range n {
			if segments[start+i] != first[i] {
				return segments, false
			}
		}
	}
	return first, true
}

// fitLength pads with empty strings or truncates to exactly n entries.
func fitLength(segments []string, n int) []string {
	if len(segments) >= n {
		return segments[:n]
	}
	out := make([]string, n)
	copy(out, segments)
	return out
}
