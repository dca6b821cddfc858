package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"html"
	"strings"

	"github.com/alecthomas/chroma"
	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/alecthomas/chroma/lexers"
	"github.com/alecthomas/chroma/styles"
)

//go:embed source.html
var sourceTemplate string

// SourceHighlighter renders keymap source as highlighted C.
type SourceHighlighter struct {
	lexer     chroma.Lexer
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

// NewSourceHighlighter returns a highlighter using the named chroma style.
// Unknown styles fall back to chroma's default.
func NewSourceHighlighter(styleName string) *SourceHighlighter {
	lexer := lexers.Get("c")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return &SourceHighlighter{
		lexer: chroma.Coalesce(lexer),
		style: styles.Get(styleName),
		formatter: chromahtml.New(
			chromahtml.WithClasses(true),
			chromahtml.WithLineNumbers(true),
		),
	}
}

// ConvertFragment returns the highlighted source as an HTML fragment.
func (h *SourceHighlighter) ConvertFragment(source string) (string, error) {
	iterator, err := h.lexer.Tokenise(nil, source)
	if err != nil {
		return "", fmt.Errorf("tokenising keymap source: %w", err)
	}

	var buf bytes.Buffer
	if err := h.formatter.Format(&buf, h.style, iterator); err != nil {
		return "", fmt.Errorf("formatting keymap source: %w", err)
	}
	return buf.String(), nil
}

// RenderPage returns a standalone page showing source under title.
func (h *SourceHighlighter) RenderPage(title string, source string) (string, error) {
	fragment, err := h.ConvertFragment(source)
	if err != nil {
		return "", err
	}

	var css bytes.Buffer
	if err := h.formatter.WriteCSS(&css, h.style); err != nil {
		return "", fmt.Errorf("writing highlight styles: %w", err)
	}

	page := strings.NewReplacer(
		"{{TITLE}}", html.EscapeString(title),
		"{{STYLE}}", css.String(),
		"{{CONTENT}}", fragment,
	).Replace(sourceTemplate)
	return page, nil
}
