// Package page models the host chat page as a mutable HTML document.
//
// The layout mirrors the host: a #sheld wrapper holding the #chat scroll
// container, one .mes node per message with a .mes_block holding an optional
// reasoning block and the .mes_text content element.
package page

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Selectors used across the core.
const (
	ChatSelector      = "#chat"
	MessageSelector   = ".mes"
	BlockSelector     = ".mes_block"
	ContentSelector   = ".mes_text"
	ReasoningSelector = ".mes_reasoning_details"
)

// ErrNoChat indicates the page has no chat scroll container.
var ErrNoChat = errors.New("chat container not present")

const skeleton = `<!DOCTYPE html><html><head><meta charset="utf-8"><title>chat</title></head><body><div id="sheld"><div id="chat"></div></div></body></html>`

// Page is the document the core mutates in place of a browser DOM.
// It is not safe for concurrent use; the dispatcher serializes access.
type Page struct {
	doc     *goquery.Document
	scrollX int
	scrollY int
}

// New returns an empty chat page.
func New() *Page {
	p, err := FromHTML(skeleton)
	if err != nil {
		panic(fmt.Sprintf("page skeleton: %v", err))
	}
	return p
}

// FromHTML parses an existing page.
func FromHTML(src string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Page{doc: doc}, nil
}

// Document exposes the underlying document.
func (p *Page) Document() *goquery.Document {
	return p.doc
}

// Find runs a selector against the whole page.
func (p *Page) Find(selector string) *goquery.Selection {
	return p.doc.Find(selector)
}

// Chat returns the chat scroll container, possibly empty.
func (p *Page) Chat() *goquery.Selection {
	return p.doc.Find(ChatSelector).First()
}

// Body returns the document body.
func (p *Page) Body() *goquery.Selection {
	return p.doc.Find("body").First()
}

// Message returns the .mes node for id, possibly empty.
func (p *Page) Message(id int) *goquery.Selection {
	return p.doc.Find(fmt.Sprintf(`%s %s[mesid="%d"]`, ChatSelector, MessageSelector, id)).First()
}

// Content returns the content element of message id, possibly empty.
func (p *Page) Content(id int) *goquery.Selection {
	return p.Message(id).Find(ContentSelector).First()
}

// Reasoning returns the reasoning block of message id, possibly empty.
func (p *Page) Reasoning(id int) *goquery.Selection {
	return p.Message(id).Find(ReasoningSelector).First()
}

// MessageID reads the mesid attribute of a .mes node or any node inside one.
func MessageID(s *goquery.Selection) (int, bool) {
	mes := s
	if !mes.Is(MessageSelector) {
		mes = s.Closest(MessageSelector)
	}
	v, ok := mes.Attr("mesid")
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Scroll returns the window scroll offset.
func (p *Page) Scroll() (x, y int) {
	return p.scrollX, p.scrollY
}

// ScrollTo sets the window scroll offset.
func (p *Page) ScrollTo(x, y int) {
	p.scrollX, p.scrollY = x, y
}

// HTML renders the whole page.
func (p *Page) HTML() (string, error) {
	return goquery.OuterHtml(p.doc.Selection)
}

// Fragment parses an HTML fragment into a detached selection of its top-level nodes.
func Fragment(src string) (*goquery.Selection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + src + "</body>"))
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	return doc.Find("body").First(), nil
}

// VisibleText returns the text of s excluding nodes hidden with display:none.
func VisibleText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		visibleText(&b, n)
	}
	return b.String()
}

func visibleText(b *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	if n.Type == html.ElementNode && hidden(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visibleText(b, c)
	}
}

func hidden(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "style" {
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(style, "display:none") {
				return true
			}
		}
	}
	return false
}
