// Package notebook rewrites the cell structure of marimo notebook sources.
//
// A marimo notebook is a Python file: a preamble (imports, app setup), a
// sequence of cells each introduced by an @app.cell decorator, and an
// optional entry-point guard (if __name__ == "__main__": ...). Parse splits
// the text along those lines without interpreting Python, so every function
// here is a pure text transformation that reassembles byte-for-byte.
//
// Markers inside string literals or comments are not recognised as such;
// this matches the generator's own output format, which never emits them.
package notebook

import (
	"regexp"
	"strings"
)

// Regex patterns for the notebook text format.
var (
	// cellMarker matches @app.cell and @app.cell(...) decorators.
	cellMarker = regexp.MustCompile(`@app\.cell(?:\([^)]*\))?`)

	// moImport matches the conventional runtime import reused by display cells.
	moImport = regexp.MustCompile(`\bimport\s+marimo\s+as\s+mo\b`)

	// runtimeImport matches any import of the runtime module.
	runtimeImport = regexp.MustCompile(`\bimport\s+marimo\b`)
)

// mainGuard opens the entry-point block split off into the postamble.
const mainGuard = "if __name__"

// Notebook is a parsed notebook source.
// Concatenating Preamble, Cells and Postamble yields the original text.
type Notebook struct {
	Preamble  string
	Cells     []string
	Postamble string
}

// Parse splits notebook text into preamble, cells and postamble.
// Text without cell markers is returned as a preamble with zero cells.
func Parse(text string) Notebook {
	locs := cellMarker.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return Notebook{Preamble: text}
	}

	nb := Notebook{
		Preamble: text[:locs[0][0]],
		Cells:    make([]string, 0, len(locs)),
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		nb.Cells = append(nb.Cells, text[loc[0]:end])
	}

	last := len(nb.Cells) - 1
	if cell, post, ok := splitMainGuard(nb.Cells[last]); ok {
		nb.Cells[last] = cell
		nb.Postamble = post
	}
	return nb
}

// splitMainGuard cuts a cell at the first line whose trimmed text starts with
// the entry-point guard. The line belongs to the returned postamble.
func splitMainGuard(cell string) (string, string, bool) {
	if !strings.Contains(cell, mainGuard) {
		return cell, "", false
	}

	offset := 0
	for offset < len(cell) {
		lineEnd := strings.IndexByte(cell[offset:], '\n')
		next := len(cell)
		if lineEnd >= 0 {
			next = offset + lineEnd + 1
		}
		if strings.HasPrefix(strings.TrimSpace(cell[offset:next]), mainGuard) {
			return cell[:offset], cell[offset:], true
		}
		offset = next
	}
	return cell, "", false
}

// String reassembles the notebook text.
func (n Notebook) String() string {
	var b strings.Builder
	b.WriteString(n.Preamble)
	for _, c := range n.Cells {
		b.WriteString(c)
	}
	b.WriteString(n.Postamble)
	return b.String()
}

// HasMoImport reports whether any cell imports the runtime as mo.
func (n Notebook) HasMoImport() bool {
	for _, c := range n.Cells {
		if moImport.MatchString(c) {
			return true
		}
	}
	return false
}

// IsImportCell reports whether a cell imports the runtime module.
func IsImportCell(cell string) bool {
	return runtimeImport.MatchString(cell)
}
