package services

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrEmptyDocument is returned for a snapshot body with no markup at all.
var ErrEmptyDocument = errors.New("empty document")

// minVisibleRunes is the visible-text size below which a page that ships
// scripts is assumed to render its content client-side.
const minVisibleRunes = 200

// strippedSelector lists elements whose content is never visible text,
// plus the archive's own toolbar when a snapshot is fetched with it.
const strippedSelector = "script, style, noscript, template, svg, #wm-ipp-base, #wm-ipp, #donato"

// PageText is the visible text of one snapshot. Offsets computed by the
// Miner refer to Text.
type PageText struct {
	Text string
	// ScriptRendered marks pages whose prices are probably injected by
	// JavaScript and therefore missing from Text.
	ScriptRendered bool
}

var blockAtoms = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Button: true, atom.Dd: true, atom.Div: true, atom.Dl: true,
	atom.Dt: true, atom.Fieldset: true, atom.Figcaption: true, atom.Figure: true,
	atom.Footer: true, atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Header: true, atom.Hr: true,
	atom.Li: true, atom.Main: true, atom.Nav: true, atom.Ol: true, atom.Option: true,
	atom.P: true, atom.Section: true, atom.Table: true, atom.Td: true, atom.Th: true,
	atom.Tr: true, atom.Ul: true,
}

// ExtractPageText strips non-visible elements from raw HTML and collapses the
// remaining markup into whitespace-normalised text. Block elements are
// separated by a space so adjacent cells never fuse into one token.
func ExtractPageText(raw []byte) (PageText, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return PageText{}, ErrEmptyDocument
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return PageText{}, fmt.Errorf("pagetext: parse html: %w", err)
	}

	scripts := doc.Find("script").Length()
	noscript := strings.ToLower(doc.Find("noscript").Text())
	doc.Find(strippedSelector).Remove()

	var buf strings.Builder
	for _, n := range doc.Selection.Nodes {
		writeVisible(n, &buf)
	}
	text := strings.Join(strings.Fields(buf.String()), " ")

	lowText := utf8.RuneCountInString(text) < minVisibleRunes
	return PageText{
		Text:           text,
		ScriptRendered: lowText && (scripts > 0 || strings.Contains(noscript, "javascript")),
	}, nil
}

func writeVisible(n *html.Node, buf *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	}

	block := n.Type == html.ElementNode && blockAtoms[n.DataAtom]
	if block {
		buf.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeVisible(c, buf)
	}
	if block {
		buf.WriteByte(' ')
	}
}
