package markdown

import (
	"strings"
	"testing"
)

func TestNormalize_CurlyQuotes(t *testing.T) {
	got := Normalize("“Hello,” she said. It’s fine.")
	want := `"Hello," she said. It's fine.`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalize_StripsWrapperFence(t *testing.T) {
	got := Normalize("```markdown\n# Title\n\nbody\n```")
	want := "# Title\n\nbody"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalize_CollapsesBlankRuns(t *testing.T) {
	got := Normalize("one\n\n\n\ntwo")
	want := "one\n\ntwo"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestReflow_JoinsParagraphLines(t *testing.T) {
	got := Reflow("line one\nline two\n\nnext para")
	want := "line one line two\n\nnext para"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestReflow_JoinsBlockquote(t *testing.T) {
	got := Reflow("> quoted line one\n> quoted line two")
	want := "> quoted line one quoted line two"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestReflow_QuoteWithNestedStructure(t *testing.T) {
	in := "> - first\n> - second"
	got := Reflow(in)
	if got != in {
		t.Errorf("got %q, want unchanged %q", got, in)
	}
}

func TestReflow_JoinsListContinuation(t *testing.T) {
	got := Reflow("- item text\n  continued here")
	want := "- item text continued here"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestReflow_SeparateListItems(t *testing.T) {
	in := "- first\n- second\n- third"
	got := Reflow(in)
	if got != in {
		t.Errorf("got %q, want unchanged %q", got, in)
	}
}

func TestReflow_OrderedList(t *testing.T) {
	got := Reflow("1. step one\n   with detail\n2. step two")
	want := "1. step one with detail\n2. step two"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestReflow_HeadingFlushesParagraph(t *testing.T) {
	got := Reflow("para text\n## Heading\nmore text")
	want := "para text\n## Heading\nmore text"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestReflow_FencePassthrough(t *testing.T) {
	in := "```\ncode line\n  indented code\n\nblank kept\n```"
	got := Reflow(in)
	if got != in {
		t.Errorf("got %q, want unchanged %q", got, in)
	}
}

func TestReflow_TableAndImagePassthrough(t *testing.T) {
	in := "| a | b |\n| - | - |\n\n![alt](img.png)"
	got := Reflow(in)
	if got != in {
		t.Errorf("got %q, want unchanged %q", got, in)
	}
}

func TestReflow_HorizontalRulePassthrough(t *testing.T) {
	in := "one\n\n---\n\ntwo"
	got := Reflow(in)
	if got != in {
		t.Errorf("got %q, want unchanged %q", got, in)
	}
}

func TestReflow_Idempotent(t *testing.T) {
	in := "para one line\nsecond line\n\n> a quote\n> more quote\n\n- item\n  cont\n\n```\ncode\n```"
	once := Reflow(in)
	twice := Reflow(once)
	if once != twice {
		t.Errorf("not idempotent:\nonce:  %q\ntwice: %q", once, twice)
	}
}

func TestReflow_EmptyInput(t *testing.T) {
	if got := Reflow(""); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestReflow_QuoteThenParagraph(t *testing.T) {
	got := Reflow("> quoted\nplain text after")
	if !strings.Contains(got, "> quoted") || !strings.Contains(got, "plain text after") {
		t.Errorf("got %q", got)
	}
	if strings.Contains(got, "quoted plain") {
		t.Errorf("quote merged into paragraph: %q", got)
	}
}
