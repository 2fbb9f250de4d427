package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitDelimiter(t *testing.T) {
	assert.Equal(t, []string{"a", "", "c"}, SplitDelimiter("a"+DelimiterToken+DelimiterToken+"c"))
	assert.Equal(t, []string{"a", "b"}, SplitDelimiter(" a "+DelimiterToken+" b "+DelimiterToken+"\n"))
	assert.Equal(t, []string{"only"}, SplitDelimiter("only"))
}

func TestSplitNumbered(t *testing.T) {
	reply := "Here you go:\n1) Первый\n2) Второй\nстрока\n3) Третий"
	assert.Equal(t, []string{"Первый", "Второй\nстрока", "Третий"}, SplitNumbered(reply))
	assert.Equal(t, []string{"plain"}, SplitNumbered("plain"))
}

func TestSplitParagraphs(t *testing.T) {
	assert.Equal(t, []string{"one\ncont", "two"}, SplitParagraphs("one\ncont\n\n  \ntwo\n"))
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"one", "two"}, SplitLines("one\n\ntwo"))
}

func TestSplitReplyOrder(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		splitter string
		want     []string
	}{
		{"delimiter wins", "a" + DelimiterToken + "b\n\nc", "delimiter", []string{"a", "b\n\nc"}},
		{"numbered before paragraphs", "1) a\n\n2) b", "numbered", []string{"a", "b"}},
		{"paragraphs before lines", "a\nb\n\nc", "paragraphs", []string{"a\nb", "c"}},
		{"lines last", "a\nb", "lines", []string{"a", "b"}},
		{"single blob", "  just one  ", "", []string{"just one"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, name := splitReply(tt.reply, DefaultSplitters)
			assert.Equal(t, tt.splitter, name)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuoteMaskRoundTrip(t *testing.T) {
	in := `He said "stop" and "go"`
	masked := MaskQuotes(in)
	assert.NotContains(t, masked, `"`)
	assert.Equal(t, in, UnmaskQuotes(masked))
}

func TestCollapseRepeats(t *testing.T) {
	seg := []string{"x", "y", "z"}
	repeated := append(append(append([]string{}, seg...), seg...), seg...)

	got, ok := collapseRepeats(repeated, 3)
	assert.True(t, ok)
	assert.Equal(t, seg, got)

	_, ok = collapseRepeats([]string{"x", "y", "x", "q"}, 2)
	assert.False(t, ok)

	_, ok = collapseRepeats([]string{"x", "y", "z"}, 2)
	assert.False(t, ok)
}

func TestFitLength(t *testing.T) {
	assert.Equal(t, []string{"a", "", ""}, fitLength([]string{"a"}, 3))
	assert.Equal(t, []string{"a", "b"}, fitLength([]string{"a", "b", "c"}, 2))
}

func TestStripOrdinal(t *testing.T) {
	assert.Equal(t, "Мир", stripOrdinal("2) Мир", 2))
	assert.Equal(t, "3) Мир", stripOrdinal("3) Мир", 2))
	assert.Equal(t, "Мир", stripOrdinal("Мир", 1))
}
