// Package content turns raw page markup into a canonical text form of the
// region of interest and decides whether two such forms differ.
package content

import (
	"sort"
	"strings"
	"ticketwatch/internal/config"
	"ticketwatch/pkg/serrors"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// NormalizerOptions select the region and the noise stripped from it.
type NormalizerOptions struct {
	// RegionSelector is a CSS selector; the first match is the region.
	RegionSelector string
	// VolatileAttributes are removed from the region and all its descendants.
	VolatileAttributes []string
	// VolatileSelectors are removed from the region with their subtrees.
	VolatileSelectors []string
}

// NewNormalizerOptions maps the target settings out of the application config.
func NewNormalizerOptions(cfg *config.Config) NormalizerOptions {
	return NormalizerOptions{
		RegionSelector:     cfg.Target.RegionSelector,
		VolatileAttributes: cfg.Target.VolatileAttributes,
		VolatileSelectors:  cfg.Target.VolatileSelectors,
	}
}

// Normalizer extracts the region of interest from a page. It holds no
// mutable state and is safe for concurrent use.
type Normalizer struct {
	region     cascadia.Selector
	volatile   []cascadia.Selector
	attributes []string
}

// NewNormalizer compiles the selectors in options. An invalid selector is a
// configuration error.
func NewNormalizer(options NormalizerOptions) (*Normalizer, error) {
	region, err := cascadia.Compile(options.RegionSelector)
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrConfig, err, "invalid region selector %q", options.RegionSelector)
	}

	n := &Normalizer{region: region, attributes: options.VolatileAttributes}
	for _, s := range options.VolatileSelectors {
		sel, err := cascadia.Compile(s)
		if err != nil {
			return nil, serrors.Wrap(serrors.ErrConfig, err, "invalid volatile selector %q", s)
		}
		n.volatile = append(n.volatile, sel)
	}

	return n, nil
}

// Normalize returns the canonical text of the region of interest in raw.
// Two pages that differ only in volatile attributes, volatile elements,
// comments, attribute order or whitespace normalize to the same bytes.
//
// It fails with serrors.ErrParse when raw is empty, cannot be read as
// markup, or does not contain the region.
func (n *Normalizer) Normalize(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", serrors.With(serrors.ErrParse, "empty content")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", serrors.Wrap(serrors.ErrParse, err, "could not parse markup")
	}

	region := doc.FindMatcher(n.region).First()
	if region.Length() == 0 {
		return "", serrors.With(serrors.ErrParse, "region of interest not found")
	}

	for _, sel := range n.volatile {
		region.FindMatcher(sel).Remove()
	}
	for _, attr := range n.attributes {
		region.RemoveAttr(attr)
		region.Find("*").RemoveAttr(attr)
	}

	var b strings.Builder
	render(&b, region.Get(0), 0)

	return b.String(), nil
}

// voidElements never have children or a closing tag.
var voidElements = map[string]bool{ //nolint: gochecknoglobals
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "link": true, "meta": true, "source": true, "track": true, "wbr": true,
}

// render writes n as one tag or text run per line, indented by depth.
func render(b *strings.Builder, n *html.Node, depth int) {
	switch n.Type {
	case html.TextNode:
		text := strings.Join(strings.Fields(n.Data), " ")
		if text == "" {
			return
		}
		writeLine(b, depth, html.EscapeString(text))
	case html.ElementNode:
		open := openTag(n)
		if voidElements[n.Data] {
			writeLine(b, depth, open)

			return
		}
		writeLine(b, depth, open)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			render(b, c, depth+1)
		}
		writeLine(b, depth, "</"+n.Data+">")
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			render(b, c, depth)
		}
	default:
		// comments, doctypes and raw nodes carry nothing we compare
	}
}

func openTag(n *html.Node) string {
	attrs := make([]html.Attribute, len(n.Attr))
	copy(attrs, n.Attr)
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Key < attrs[j].Key })

	var b strings.Builder
	b.WriteString("<")
	b.WriteString(n.Data)
	for _, a := range attrs {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(a.Val))
		b.WriteString(`"`)
	}
	b.WriteString(">")

	return b.String()
}

func writeLine(b *strings.Builder, depth int, s string) {
	b.WriteString(strings.Repeat(" ", depth))
	b.WriteString(s)
	b.WriteString("\n")
}
