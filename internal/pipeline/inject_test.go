package pipeline

import (
	"strings"
	"testing"
)

func launcherSnippet(placement string) string {
	return `<div class="marimo-launcher-` + placement + `"><a class="marimo-launcher" href="/_static/marimo/gallery/plot_a.html">Open in marimo</a></div>`
}

func TestInjectLauncher(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		page        string
		placement   string
		wantChanged bool
		wantBefore  string // launcher must appear before this text
		wantAfter   string // launcher must appear after this text
	}{
		{
			name:        "footer into main content",
			page:        `<html><body><div role="main"><h1>Plot A</h1></div><footer>f</footer></body></html>`,
			placement:   PlacementFooter,
			wantChanged: true,
			wantAfter:   "Plot A",
			wantBefore:  "<footer>",
		},
		{
			name:        "footer falls back to body",
			page:        `<html><body><p>text</p></body></html>`,
			placement:   PlacementFooter,
			wantChanged: true,
			wantAfter:   "text",
		},
		{
			name:        "sidebar prepended",
			page:        `<html><body><div class="sphinxsidebarwrapper"><h3>Nav</h3></div></body></html>`,
			placement:   PlacementSidebar,
			wantChanged: true,
			wantBefore:  "Nav",
		},
		{
			name:        "sidebar missing",
			page:        `<html><body><p>text</p></body></html>`,
			placement:   PlacementSidebar,
			wantChanged: false,
		},
		{
			name:        "already injected",
			page:        `<html><body><div class="marimo-launcher-footer"><a href="x">x</a></div></body></html>`,
			placement:   PlacementFooter,
			wantChanged: false,
		},
		{
			name:        "footer present, sidebar still injected",
			page:        `<html><body><div class="sidebar"><p>Nav</p></div><div class="marimo-launcher-footer"></div></body></html>`,
			placement:   PlacementSidebar,
			wantChanged: true,
			wantBefore:  "Nav",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, changed, err := InjectLauncher(tt.page, launcherSnippet(tt.placement), tt.placement)
			if err != nil {
				t.Fatalf("InjectLauncher() unexpected error: %v", err)
			}
			if changed != tt.wantChanged {
				t.Fatalf("changed = %v, want %v", changed, tt.wantChanged)
			}
			if !changed {
				if got != tt.page {
					t.Error("unchanged page was rewritten")
				}
				return
			}

			pos := strings.Index(got, "Open in marimo")
			if pos < 0 {
				t.Fatalf("launcher missing from %q", got)
			}
			if tt.wantAfter != "" && strings.Index(got, tt.wantAfter) > pos {
				t.Errorf("launcher precedes %q: %q", tt.wantAfter, got)
			}
			if tt.wantBefore != "" && strings.Index(got, tt.wantBefore) < pos {
				t.Errorf("launcher follows %q: %q", tt.wantBefore, got)
			}

			again, changedAgain, _ := InjectLauncher(got, launcherSnippet(tt.placement), tt.placement)
			if changedAgain || again != got {
				t.Error("second injection changed the page")
			}
		})
	}
}
