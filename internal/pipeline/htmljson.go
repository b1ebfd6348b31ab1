// internal/pipeline/htmljson.go
package pipeline

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// FromHTML converts markup into a JSON-shaped value. Element attributes
// become "@"-prefixed keys, repeated sibling tags become arrays, and an
// element holding nothing but text collapses to that text. Text is
// whitespace-normalized. With noAttributes, attributes are dropped.
//
// A single selected element converts unwrapped: its attributes and children
// form the result directly, without a key for its own tag. Only a full
// document keeps its root, keyed by "html".
func FromHTML(markup string, noAttributes bool) (any, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	root := findElement(doc, atom.Html)
	if root == nil {
		return "", nil
	}

	if isFullDocument(markup) {
		return map[string]any{"html": convertElement(root, noAttributes)}, nil
	}

	// The parser wrapped a fragment; unwrap it again.
	var elems []*html.Node
	var texts []string
	for _, parent := range []*html.Node{findElement(root, atom.Head), findElement(root, atom.Body)} {
		if parent == nil {
			continue
		}
		for c := parent.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				if t := normalizeSpace(c.Data); t != "" {
					texts = append(texts, t)
				}
			case html.ElementNode:
				elems = append(elems, c)
			}
		}
	}

	if len(elems) == 1 && len(texts) == 0 {
		return convertElement(elems[0], noAttributes), nil
	}
	obj := make(map[string]any)
	for _, el := range elems {
		mergeElement(obj, el, noAttributes)
	}
	return finish(obj, texts), nil
}

func isFullDocument(markup string) bool {
	head := strings.ToLower(markup)
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.Contains(head, "<html")
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func convertElement(n *html.Node, noAttributes bool) any {
	obj := make(map[string]any)
	if !noAttributes {
		for _, a := range n.Attr {
			obj["@"+a.Key] = a.Val
		}
	}

	var texts []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if t := normalizeSpace(c.Data); t != "" {
				texts = append(texts, t)
			}
		case html.ElementNode:
			mergeElement(obj, c, noAttributes)
		}
	}
	return finish(obj, texts)
}

// mergeElement folds one child element into the accumulating object.
// Repeated tags grow into an array in document order.
func mergeElement(obj map[string]any, c *html.Node, noAttributes bool) {
	v := convertElement(c, noAttributes)
	if existing, ok := obj[c.Data]; ok {
		if arr, ok := existing.([]any); ok {
			obj[c.Data] = append(arr, v)
		} else {
			obj[c.Data] = []any{existing, v}
		}
	} else {
		obj[c.Data] = v
	}
}

// finish applies the sole-text collapse: an element with no attributes and
// no element children becomes its text.
func finish(obj map[string]any, texts []string) any {
	text := strings.Join(texts, " ")
	if len(obj) == 0 {
		return text
	}
	if text != "" {
		obj["#text"] = text
	}
	return obj
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
