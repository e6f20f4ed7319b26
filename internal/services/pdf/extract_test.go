package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

func TestExtractShownText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "single show operator",
			content: "BT /F1 9 Tf 10 20 Td (Hello world) Tj ET",
			want:    "\nHello world\n",
		},
		{
			name:    "adjacent shows concatenate",
			content: "BT (Hello) Tj ( world) Tj ET",
			want:    "Hello world\n",
		},
		{
			name:    "array show with kerning",
			content: "BT [(Qu)-10(arterly)] TJ ET",
			want:    "Quarterly\n",
		},
		{
			name:    "escaped parens and octal",
			content: `BT (a\(b\)c \\ \101) Tj ET`,
			want:    "a(b)c \\ A\n",
		},
		{
			name:    "quote operator starts a new line",
			content: "BT (first) Tj (second) ' ET",
			want:    "first\nsecond\n",
		},
		{
			name:    "positioning operators break lines",
			content: "BT (one) Tj 0 -11 Td (two) Tj T* (three) Tj ET",
			want:    "one\ntwo\nthree\n",
		},
		{
			name:    "literal without a show operator is dropped",
			content: "BT (metadata) Tf (shown) Tj ET",
			want:    "shown\n",
		},
		{
			name:    "hex strings are skipped",
			content: "BT <48656C6C6F> Tj (x) Tj ET",
			want:    "x\n",
		},
		{
			name:    "dictionaries and comments are skipped",
			content: "<< /Title (not text) >> % a comment\nBT (real) Tj ET",
			want:    "real\n",
		},
		{
			name:    "empty stream",
			content: "",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractShownText(tt.content))
		})
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "collapses spaces and blank lines",
			input: "  Quarterly   Update  \n\n\n Revenue rose. \n",
			want:  "Quarterly Update\nRevenue rose.",
		},
		{
			name:  "only whitespace",
			input: " \n\t\n ",
			want:  "",
		},
		{
			name:  "already clean",
			input: "one line",
			want:  "one line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeWhitespace(tt.input))
		})
	}
}

func TestPageNumberFromName(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantNum  int
		wantOK   bool
	}{
		{name: "prefixed content file", filename: "input_Content_page_3.txt", wantNum: 3, wantOK: true},
		{name: "bare content file", filename: "Content_page_12.txt", wantNum: 12, wantOK: true},
		{name: "no extension", filename: "page_1", wantNum: 1, wantOK: true},
		{name: "unrelated file", filename: "notes.txt", wantOK: false},
		{name: "non numeric page", filename: "page_x.txt", wantOK: false},
		{name: "zero page", filename: "input_page_0.txt", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			num, ok := pageNumberFromName(tt.filename)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantNum, num)
			}
		})
	}
}

func TestExtractTextRoundTrip(t *testing.T) {
	service := NewService(arbor.NewLogger())

	markdown := "# Quarterly Update\n\nRevenue rose sharply in the third quarter.\n"
	pdfBytes, err := service.ConvertMarkdownToPDF(markdown, "Quarterly Update")
	assert.NoError(t, err)
	assert.NotEmpty(t, pdfBytes)

	text, err := service.ExtractText(pdfBytes)
	assert.NoError(t, err)
	assert.Contains(t, text, "Quarterly Update")
	assert.Contains(t, text, "Revenue rose sharply in the third quarter.")
}

func TestExtractTextInvalid(t *testing.T) {
	service := NewService(arbor.NewLogger())

	_, err := service.ExtractText(nil)
	assert.Error(t, err)

	_, err = service.ExtractText([]byte("not a pdf"))
	assert.Error(t, err)
}
