package notebook

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/alnah/go-nbembed/internal/fileutil"
)

// ErrReadNotebook indicates the notebook source could not be read.
var ErrReadNotebook = errors.New("failed to read notebook")

// ErrWriteNotebook indicates the transformed notebook could not be written.
var ErrWriteNotebook = errors.New("failed to write notebook")

// importCell defines mo for the display cell when the notebook has no such import.
const importCell = `@app.cell
def __():
    import marimo as mo
    return (mo,)


`

// markdownIndent matches the body indentation of generated cells.
const markdownIndent = "        "

// TransformOptions selects the rewrites applied by Transform.
type TransformOptions struct {
	// OutputPath is where the result is written. Empty overwrites the input.
	OutputPath string

	// PrependMarkdown is shown in a hidden-code cell above all other cells.
	PrependMarkdown string

	// MoveImportsToTop moves cells importing marimo ahead of the others.
	MoveImportsToTop bool
}

// IsZero reports whether the options request no rewrite.
func (o TransformOptions) IsZero() bool {
	return o.PrependMarkdown == "" && !o.MoveImportsToTop
}

// markdownCell renders a display cell for the given markdown text.
func markdownCell(markdown string) string {
	body := strings.TrimSpace(markdown)
	body = strings.ReplaceAll(body, `"""`, `\"\"\"`)
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = markdownIndent + line
	}

	return "@app.cell(hide_code=True)\n" +
		"def __(mo):\n" +
		"    mo.md(\n" +
		"        r\"\"\"\n" +
		strings.Join(lines, "\n") + "\n" +
		"        \"\"\"\n" +
		"    )\n" +
		"    return\n" +
		"\n\n"
}

// bannerCells returns the cells that display markdown at the top of nb.
func bannerCells(nb Notebook, markdown string) []string {
	if nb.HasMoImport() {
		return []string{markdownCell(markdown)}
	}
	return []string{importCell, markdownCell(markdown)}
}

// PrependMarkdown inserts a markdown display cell before all existing cells.
// An existing "import marimo as mo" cell is reused; otherwise an import cell
// is inserted first. Text without cells is returned unchanged.
func PrependMarkdown(text, markdown string) string {
	nb := Parse(text)
	if len(nb.Cells) == 0 || markdown == "" {
		return text
	}
	nb.Cells = append(bannerCells(nb, markdown), nb.Cells...)
	return nb.String()
}

// MoveImportsToTop moves every cell importing marimo before the other cells.
// Relative order inside both groups is kept, so the operation is idempotent.
func MoveImportsToTop(text string) string {
	nb := Parse(text)
	if len(nb.Cells) == 0 {
		return text
	}
	nb.Cells = partitionImports(nb.Cells)
	return nb.String()
}

// partitionImports is a stable partition of cells on IsImportCell.
func partitionImports(cells []string) []string {
	imports := make([]string, 0, len(cells))
	others := make([]string, 0, len(cells))
	for _, c := range cells {
		if IsImportCell(c) {
			imports = append(imports, c)
		} else {
			others = append(others, c)
		}
	}
	return append(imports, others...)
}

// Apply runs the requested rewrites on text: markdown first, then import
// reordering. Cells added for the markdown stay pinned above the reordered
// original cells.
func Apply(text string, opts TransformOptions) string {
	nb := Parse(text)
	if len(nb.Cells) == 0 {
		return text
	}

	var banner []string
	if opts.PrependMarkdown != "" {
		banner = bannerCells(nb, opts.PrependMarkdown)
	}
	if opts.MoveImportsToTop {
		nb.Cells = partitionImports(nb.Cells)
	}
	nb.Cells = append(banner, nb.Cells...)
	return nb.String()
}

// Transform reads a notebook, applies the rewrites and writes the result.
// Returns the path written.
func Transform(path string, opts TransformOptions) (string, error) {
	content, err := os.ReadFile(path) // #nosec G304 -- notebook path produced by the pipeline
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReadNotebook, err)
	}

	target := opts.OutputPath
	if target == "" {
		target = path
	}

	result := Apply(string(content), opts)
	if err := fileutil.WriteFileAtomic(target, []byte(result), fileutil.FilePermissions); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWriteNotebook, err)
	}
	return target, nil
}
