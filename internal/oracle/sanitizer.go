// Package oracle fetches pages, runs the markup sanitizer chain, and
// produces per-URL validation reports.
package oracle

import (
	"encoding/json"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ampscan/ampscan/internal/scan"
)

// Markers used by instrumented renders to attribute markup to its origin.
// An open marker is an HTML comment of the form
// <!--amp-source-stack {"type":"plugin","name":"foo"}--> and is closed by
// <!--/amp-source-stack-->.
const (
	sourceStackOpen  = "amp-source-stack"
	sourceStackClose = "/amp-source-stack"
)

// Sanitizer is one ordered step of the chain. Sanitize may rewrite or detach
// nodes from the document and returns the errors it found. Implementations
// must leave the tree well formed: no dangling parents, children of
// unwrapped nodes re-homed in place.
type Sanitizer interface {
	Name() string
	Sanitize(doc *html.Node) []scan.Result
}

// SanitizeDocument runs the chain in order and concatenates the results.
func SanitizeDocument(doc *html.Node, chain []Sanitizer) []scan.Result {
	var results []scan.Result
	for _, s := range chain {
		results = append(results, s.Sanitize(doc)...)
	}
	return results
}

// DefaultChain returns the standard sanitizer order: structural element
// rules first, then attributes, then the stylesheet budget, then the
// document-level mandatory and uniqueness checks, and finally the source
// annotation cleanup.
func DefaultChain() []Sanitizer {
	return []Sanitizer{
		NewElementSanitizer(),
		NewAttributeSanitizer(),
		NewStyleSanitizer(DefaultCSSBudget),
		NewDocumentSanitizer(),
		NewSourceCommentSanitizer(),
	}
}

// elementContext pairs an element with the source annotations enclosing it
// at walk time.
type elementContext struct {
	node    *html.Node
	sources []scan.ErrorSource
}

// collectElements snapshots all element nodes in document order along with
// their enclosing source stack. Sanitizers iterate the snapshot and skip
// nodes a previous rule already detached, so node identity survives
// rewrites.
func collectElements(doc *html.Node) []elementContext {
	var out []elementContext
	var stack []scan.ErrorSource
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.CommentNode:
			if src, ok := parseSourceComment(n.Data); ok {
				stack = append(stack, src)
			} else if strings.TrimSpace(n.Data) == sourceStackClose && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case html.ElementNode:
			out = append(out, elementContext{
				node:    n,
				sources: append([]scan.ErrorSource(nil), stack...),
			})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

// parseSourceComment decodes an open source marker comment.
func parseSourceComment(data string) (scan.ErrorSource, bool) {
	trimmed := strings.TrimSpace(data)
	if !strings.HasPrefix(trimmed, sourceStackOpen) || strings.HasPrefix(trimmed, sourceStackClose) {
		return scan.ErrorSource{}, false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(trimmed, sourceStackOpen))
	var src scan.ErrorSource
	if err := json.Unmarshal([]byte(payload), &src); err != nil {
		return scan.ErrorSource{}, false
	}
	return src, true
}

// attached reports whether n is still reachable from the document root.
func attached(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type == html.DocumentNode {
			return true
		}
	}
	return false
}

// detach removes n and its subtree from the document.
func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// unwrap replaces n with its children, preserving their order and position.
func unwrap(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	for n.FirstChild != nil {
		child := n.FirstChild
		n.RemoveChild(child)
		parent.InsertBefore(child, n)
	}
	parent.RemoveChild(n)
}

func parentName(n *html.Node) string {
	if n.Parent != nil && n.Parent.Type == html.ElementNode {
		return n.Parent.Data
	}
	return ""
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func removeAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

// ElementSanitizer strips or rewrites elements the AMP runtime disallows.
// Non-exempt scripts and plugin-era embeds are dropped with their subtrees;
// purely presentational wrappers are unwrapped so their children survive;
// img and iframe are renamed to their amp-* counterparts without an error.
type ElementSanitizer struct {
	dropped   map[string]struct{}
	unwrapped map[string]struct{}
	renamed   map[string]string
}

// NewElementSanitizer returns the standard element rule set.
func NewElementSanitizer() *ElementSanitizer {
	return &ElementSanitizer{
		dropped: map[string]struct{}{
			"object":   {},
			"embed":    {},
			"applet":   {},
			"param":    {},
			"frame":    {},
			"frameset": {},
		},
		unwrapped: map[string]struct{}{
			"font":    {},
			"center":  {},
			"big":     {},
			"blink":   {},
			"marquee": {},
		},
		renamed: map[string]string{
			"img":    "amp-img",
			"iframe": "amp-iframe",
		},
	}
}

// Name implements Sanitizer.
func (s *ElementSanitizer) Name() string { return "element" }

// Sanitize implements Sanitizer.
func (s *ElementSanitizer) Sanitize(doc *html.Node) []scan.Result {
	var results []scan.Result
	for _, ec := range collectElements(doc) {
		n := ec.node
		if !attached(n) {
			continue
		}
		name := n.Data

		if name == "script" && !scriptExempt(n) {
			results = append(results, invalidElement(n, ec.sources))
			detach(n)
			continue
		}
		if _, drop := s.dropped[name]; drop {
			results = append(results, invalidElement(n, ec.sources))
			detach(n)
			continue
		}
		if _, uw := s.unwrapped[name]; uw {
			results = append(results, invalidElement(n, ec.sources))
			unwrap(n)
			continue
		}
		if to, ok := s.renamed[name]; ok {
			n.Data = to
			n.DataAtom = 0
		}
	}
	return results
}

// scriptExempt reports whether a script element is allowed: the AMP runtime
// and extensions (src on cdn.ampproject.org) and data blocks such as JSON-LD.
func scriptExempt(n *html.Node) bool {
	if src, ok := getAttr(n, "src"); ok {
		return strings.Contains(src, "cdn.ampproject.org")
	}
	typ, _ := getAttr(n, "type")
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "application/json", "application/ld+json":
		return true
	}
	return false
}

func invalidElement(n *html.Node, sources []scan.ErrorSource) scan.Result {
	return scan.Result{
		Error: scan.ValidationError{
			Code:    scan.CodeInvalidElement,
			Sources: sources,
			Data: map[string]any{
				"node_name":   n.Data,
				"parent_name": parentName(n),
			},
		},
		Sanitized: true,
	}
}

// AttributeSanitizer strips event handler attributes and unsafe URL
// protocols from any element.
type AttributeSanitizer struct{}

// NewAttributeSanitizer returns the standard attribute rule set.
func NewAttributeSanitizer() *AttributeSanitizer { return &AttributeSanitizer{} }

// Name implements Sanitizer.
func (s *AttributeSanitizer) Name() string { return "attribute" }

// Sanitize implements Sanitizer.
func (s *AttributeSanitizer) Sanitize(doc *html.Node) []scan.Result {
	var results []scan.Result
	for _, ec := range collectElements(doc) {
		n := ec.node
		if !attached(n) {
			continue
		}
		for _, a := range append([]html.Attribute(nil), n.Attr...) {
			switch {
			case strings.HasPrefix(a.Key, "on") && len(a.Key) > 2:
				results = append(results, scan.Result{
					Error: scan.ValidationError{
						Code:    scan.CodeInvalidAttribute,
						Sources: ec.sources,
						Data: map[string]any{
							"node_name":   a.Key,
							"parent_name": n.Data,
						},
					},
					Sanitized: true,
				})
				removeAttr(n, a.Key)
			case (a.Key == "href" || a.Key == "src") && unsafeProtocol(a.Val):
				results = append(results, scan.Result{
					Error: scan.ValidationError{
						Code:    scan.CodeInvalidProtocol,
						Sources: ec.sources,
						Data: map[string]any{
							"node_name":   a.Key,
							"parent_name": n.Data,
						},
					},
					Sanitized: true,
				})
				removeAttr(n, a.Key)
			}
		}
	}
	return results
}

func unsafeProtocol(val string) bool {
	v := strings.ToLower(strings.TrimSpace(val))
	return strings.HasPrefix(v, "javascript:") || strings.HasPrefix(v, "vbscript:") || strings.HasPrefix(v, "data:text/html")
}

// DefaultCSSBudget is the byte cap for author stylesheets, matching the AMP
// limit of 75KB.
const DefaultCSSBudget = 75000

// StyleSanitizer enforces the stylesheet byte budget. Style elements are kept
// in document order until the budget is exhausted; overflowing sheets are
// dropped with an excessive_css error.
type StyleSanitizer struct {
	budget int
}

// NewStyleSanitizer returns a StyleSanitizer with the given byte budget.
func NewStyleSanitizer(budget int) *StyleSanitizer {
	if budget <= 0 {
		budget = DefaultCSSBudget
	}
	return &StyleSanitizer{budget: budget}
}

// Name implements Sanitizer.
func (s *StyleSanitizer) Name() string { return "style" }

// Sanitize implements Sanitizer.
func (s *StyleSanitizer) Sanitize(doc *html.Node) []scan.Result {
	var results []scan.Result
	used := 0
	for _, ec := range collectElements(doc) {
		n := ec.node
		if !attached(n) || n.Data != "style" {
			continue
		}
		size := 0
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				size += len(c.Data)
			}
		}
		if used+size > s.budget {
			results = append(results, scan.Result{
				Error: scan.ValidationError{
					Code:    scan.CodeExcessiveCSS,
					Sources: ec.sources,
					Data: map[string]any{
						"node_name":  "style",
						"bytes_over": used + size - s.budget,
					},
				},
				Sanitized: true,
			})
			detach(n)
			continue
		}
		used += size
	}
	return results
}

// DocumentSanitizer performs document-level checks: the amp marker on the
// html element, the mandatory head tags, and uniqueness of the canonical
// link. Missing markup is reported but cannot be stripped, so those results
// carry Sanitized=false.
type DocumentSanitizer struct{}

// NewDocumentSanitizer returns the document rule set.
func NewDocumentSanitizer() *DocumentSanitizer { return &DocumentSanitizer{} }

// Name implements Sanitizer.
func (s *DocumentSanitizer) Name() string { return "document" }

// Sanitize implements Sanitizer.
func (s *DocumentSanitizer) Sanitize(doc *html.Node) []scan.Result {
	var results []scan.Result

	htmlEl := findElement(doc, atom.Html)
	if htmlEl != nil {
		if _, amp := getAttr(htmlEl, "amp"); !amp {
			if _, bolt := getAttr(htmlEl, "⚡"); !bolt {
				results = append(results, missingTag("html[amp]"))
			}
		}
	}

	head := findElement(doc, atom.Head)
	if head == nil {
		results = append(results, missingTag("head"))
		return results
	}

	if !hasMetaCharset(head) {
		results = append(results, missingTag("meta[charset]"))
	}

	var canonicals []*html.Node
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "link" {
			if rel, _ := getAttr(c, "rel"); strings.EqualFold(rel, "canonical") {
				canonicals = append(canonicals, c)
			}
		}
	}
	switch {
	case len(canonicals) == 0:
		results = append(results, missingTag("link[rel=canonical]"))
	case len(canonicals) > 1:
		// Keep the first canonical, drop the rest.
		for _, extra := range canonicals[1:] {
			detach(extra)
		}
		results = append(results, scan.Result{
			Error: scan.ValidationError{
				Code: scan.CodeDuplicateUniqueTag,
				Data: map[string]any{
					"node_name": "link[rel=canonical]",
					"count":     len(canonicals),
				},
			},
			Sanitized: true,
		})
	}

	return results
}

func missingTag(tag string) scan.Result {
	return scan.Result{
		Error: scan.ValidationError{
			Code: scan.CodeMissingMandatoryTag,
			Data: map[string]any{"node_name": tag},
		},
		Sanitized: false,
	}
}

func hasMetaCharset(head *html.Node) bool {
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "meta" {
			continue
		}
		if _, ok := getAttr(c, "charset"); ok {
			return true
		}
	}
	return false
}

// SourceCommentSanitizer removes the source annotation comments that
// instrumented renders embed, so they never reach the serialized output.
type SourceCommentSanitizer struct{}

// NewSourceCommentSanitizer returns the cleanup step.
func NewSourceCommentSanitizer() *SourceCommentSanitizer { return &SourceCommentSanitizer{} }

// Name implements Sanitizer.
func (s *SourceCommentSanitizer) Name() string { return "source-comments" }

// Sanitize implements Sanitizer.
func (s *SourceCommentSanitizer) Sanitize(doc *html.Node) []scan.Result {
	var comments []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.CommentNode {
			trimmed := strings.TrimSpace(n.Data)
			if strings.HasPrefix(trimmed, sourceStackOpen) || trimmed == sourceStackClose {
				comments = append(comments, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	for _, c := range comments {
		detach(c)
	}
	return nil
}

func findElement(doc *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == a {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}
