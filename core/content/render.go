package content

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

const (
	LessonFileMissing  = "<p>HTML file not found.</p>"
	ProgramFileMissing = "<pre><code># Source file not found.</code></pre>"

	highlightStyle = "monokai"
	defaultLexer   = "python"
)

var (
	styleRegex     = regexp.MustCompile(`(?is)<style[^>]*>(.*?)</style>`)
	bodyRegex      = regexp.MustCompile(`(?is)<body[^>]*>(.*?)</body>`)
	htmlTagRegex   = regexp.MustCompile(`(?i)</?html[^>]*>`)
	headTagRegex   = regexp.MustCompile(`(?i)</?head[^>]*>`)
	titleElemRegex = regexp.MustCompile(`(?is)</?title[^>]*>.*?</title>`)
)

// ExtractLessonHTML keeps the parts of an uploaded lesson page that can be embedded in ours:
// every <style> block followed by the <body> content.
// Without a <body>, the html and head tags and the title element are dropped and the rest is kept.
// The result is not sanitized beyond that.
func ExtractLessonHTML(src string) string {
	var b strings.Builder
	for _, m := range styleRegex.FindAllStringSubmatch(src, -1) {
		b.WriteString("<style>")
		b.WriteString(m[1])
		b.WriteString("</style>")
	}

	if m := bodyRegex.FindStringSubmatch(src); m != nil {
		b.WriteString(m[1])
		return b.String()
	}

	body := htmlTagRegex.ReplaceAllString(src, "")
	body = headTagRegex.ReplaceAllString(body, "")
	body = titleElemRegex.ReplaceAllString(body, "")
	b.WriteString(body)
	return b.String()
}

// HighlightCode renders src as HTML with inline styles. The lexer is picked from filename.
func HighlightCode(filename, src string) (string, error) {
	lexer := lexers.Match(filename)
	if lexer == nil {
		lexer = lexers.Get(defaultLexer)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, src)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	formatter := html.New(html.WithClasses(false))
	if err = formatter.Format(&buf, styles.Get(highlightStyle), iterator); err != nil {
		return "", err
	}
	return buf.String(), nil
}
