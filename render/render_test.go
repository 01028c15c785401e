package render

import (
	"strings"
	"testing"
)

func TestToHTML(t *testing.T) {
	got := ToHTML("**bold** and `code`")
	if !strings.Contains(got, "<strong>bold</strong>") {
		t.Errorf("missing bold: %q", got)
	}
	if !strings.Contains(got, "<code>code</code>") {
		t.Errorf("missing code: %q", got)
	}
}

func TestToHTMLPreservesCitationAnchors(t *testing.T) {
	md := `Go shipped in 2009<a href="https://go.dev/doc/faq">1</a>.`
	got := ToHTML(md)
	if !strings.Contains(got, `<a href="https://go.dev/doc/faq">1</a>`) {
		t.Errorf("anchor mangled: %q", got)
	}
}

func TestToHTMLTables(t *testing.T) {
	md := "| a | b |\n|---|---|\n| 1 | 2 |"
	got := ToHTML(md)
	if !strings.Contains(got, "<table>") {
		t.Errorf("GFM table not rendered: %q", got)
	}
}

func TestFormatCodeBlocks(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "language on fence line",
			in:   "```go\nfmt.Println(\"hi\")\n```",
			want: "```go\nfmt.Println(\"hi\")\n```",
		},
		{
			name: "surrounding blank lines trimmed",
			in:   "```python\n\n\nprint(1)\n\n```",
			want: "```python\nprint(1)\n```",
		},
		{
			name: "inline fence gets line breaks",
			in:   "```go fmt.Println(1)```",
			want: "```go\nfmt.Println(1)\n```",
		},
		{
			name: "trailing whitespace stripped, indentation kept",
			in:   "```go\nfunc f() {\n\treturn \t\n}\n```",
			want: "```go\nfunc f() {\n\treturn\n}\n```",
		},
		{
			name: "no language",
			in:   "```\nplain\n```",
			want: "```\nplain\n```",
		},
		{
			name: "text outside untouched",
			in:   "before   \n```go\nx := 1\n```\nafter",
			want: "before   \n```go\nx := 1\n```\nafter",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatCodeBlocks(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
