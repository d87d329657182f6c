package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Placements for launch buttons.
const (
	PlacementFooter  = "footer"
	PlacementSidebar = "sidebar"
)

// launcherClassPrefix plus the placement marks an injected button, so each
// placement is injected at most once.
const launcherClassPrefix = "marimo-launcher-"

// ErrInject indicates a page could not be parsed or rendered.
var ErrInject = errors.New("launcher injection failed")

// InjectLauncher inserts snippet into a rendered page. Footer placement
// appends it to the main content area (or body); sidebar placement prepends
// it to the first sidebar found and does nothing when the page has none.
// Returns the page and whether it changed. Pages that already contain a
// launcher for the placement are returned unchanged.
func InjectLauncher(page, snippet, placement string) (string, bool, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrInject, err)
	}
	if placement != PlacementSidebar {
		placement = PlacementFooter
	}
	if find(doc, hasClass(launcherClassPrefix+placement)) != nil {
		return page, false, nil
	}

	var target *html.Node
	switch placement {
	case PlacementSidebar:
		target = find(doc, isSidebar)
	default:
		target = find(doc, isMainContent)
		if target == nil {
			target = find(doc, func(n *html.Node) bool { return n.DataAtom == atom.Body })
		}
	}
	if target == nil {
		return page, false, nil
	}

	nodes, err := html.ParseFragment(strings.NewReader(snippet), target)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrInject, err)
	}
	if placement == PlacementSidebar {
		first := target.FirstChild
		for _, n := range nodes {
			target.InsertBefore(n, first)
		}
	} else {
		for _, n := range nodes {
			target.AppendChild(n)
		}
	}

	var buf strings.Builder
	if err := html.Render(&buf, doc); err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrInject, err)
	}
	return buf.String(), true, nil
}

// find returns the first element in document order matching pred.
func find(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, pred); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return slices.Contains(strings.Fields(attr(n, "class")), class)
	}
}

func isMainContent(n *html.Node) bool {
	return n.DataAtom == atom.Main || attr(n, "role") == "main"
}

func isSidebar(n *html.Node) bool {
	if n.DataAtom == atom.Aside {
		return true
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == "sphinxsidebarwrapper" || c == "bd-sidebar-primary" || c == "sidebar" {
			return true
		}
	}
	return false
}
