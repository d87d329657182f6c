package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
)

// ErrSourceRender indicates notebook source could not be rendered.
var ErrSourceRender = errors.New("source rendering failed")

// DefaultCodeStyle is the chroma style used for placeholder pages.
const DefaultCodeStyle = "github"

// SourceRenderer renders source files as syntax-highlighted HTML fragments.
type SourceRenderer struct {
	md    goldmark.Markdown
	style string
}

// NewSourceRenderer creates a renderer using the named chroma style.
func NewSourceRenderer(style string) *SourceRenderer {
	if style == "" {
		style = DefaultCodeStyle
	}
	md := goldmark.New(
		goldmark.WithExtensions(
			highlighting.NewHighlighting(
				highlighting.WithStyle(style),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
					chromahtml.WithLineNumbers(true),
				),
			),
		),
	)
	return &SourceRenderer{md: md, style: style}
}

// Render returns source as a highlighted <pre> block. Goldmark has no
// context support, so the conversion runs in a goroutine raced against ctx.
func (r *SourceRenderer) Render(ctx context.Context, source, lang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	doc := codeFence(source, lang)

	type result struct {
		html string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		var buf bytes.Buffer
		if err := r.md.Convert([]byte(doc), &buf); err != nil {
			done <- result{err: fmt.Errorf("%w: %v", ErrSourceRender, err)}
			return
		}
		done <- result{html: buf.String()}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.html, res.err
	}
}

// CSS returns the stylesheet for the classes emitted by Render.
func (r *SourceRenderer) CSS() (string, error) {
	var buf bytes.Buffer
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	if err := formatter.WriteCSS(&buf, styles.Get(r.style)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceRender, err)
	}
	return buf.String(), nil
}

// codeFence wraps source in a backtick fence longer than any run inside it.
func codeFence(source, lang string) string {
	longest, run := 0, 0
	for _, c := range source {
		if c == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	fence := strings.Repeat("`", max(3, longest+1))

	var b strings.Builder
	b.WriteString(fence)
	b.WriteString(lang)
	b.WriteByte('\n')
	b.WriteString(source)
	if !strings.HasSuffix(source, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(fence)
	b.WriteByte('\n')
	return b.String()
}
