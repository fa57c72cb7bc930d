package transform

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func findFirst(root *html.Node, pred func(*html.Node) bool) *html.Node {
	var found *html.Node
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if found != nil {
			return
		}
		if pred(n) {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(root)
	return found
}

func findElement(root *html.Node, a atom.Atom) *html.Node {
	return findFirst(root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == a
	})
}

func collectElements(root *html.Node, a atom.Atom) []*html.Node {
	var nodes []*html.Node
	walk(root, func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			nodes = append(nodes, n)
		}
	})
	return nodes
}

// removeNodes detaches every matching node from the tree and returns how
// many were removed. Matches are collected first so removal does not upset
// the traversal.
func removeNodes(root *html.Node, pred func(*html.Node) bool) int {
	var doomed []*html.Node
	walk(root, func(n *html.Node) {
		if n.Type == html.ElementNode && pred(n) {
			doomed = append(doomed, n)
		}
	})
	for _, n := range doomed {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
	return len(doomed)
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if strings.EqualFold(attr.Key, key) {
			return attr.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, attr := range n.Attr {
		if strings.EqualFold(attr.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func dropAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, attr := range n.Attr {
		if !strings.EqualFold(attr.Key, key) {
			kept = append(kept, attr)
		}
	}
	n.Attr = kept
}

func hasAnyClass(n *html.Node, classes ...string) bool {
	attr := getAttr(n, "class")
	if attr == "" {
		return false
	}
	for _, have := range strings.Fields(attr) {
		for _, want := range classes {
			if have == want {
				return true
			}
		}
	}
	return false
}
