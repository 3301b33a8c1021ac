package page

import (
	"fmt"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Node is what the host renders for one message.
type Node struct {
	ID        int
	Author    string
	IsUser    bool
	IsSystem  bool
	Content   string
	Reasoning string
}

// SyncMessage creates or rewrites the DOM node of one message, keeping nodes in id order.
func (p *Page) SyncMessage(n Node) error {
	chat := p.Chat()
	if chat.Length() == 0 {
		return ErrNoChat
	}

	mes := p.Message(n.ID)
	if mes.Length() == 0 {
		markup := fmt.Sprintf(`<div class="mes" mesid="%d"><div class="mes_block"><div class="mes_text"></div></div></div>`, n.ID)
		var next *goquery.Selection
		chat.Children().Filter(MessageSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if id, ok := MessageID(s); ok && id > n.ID {
				next = s
				return false
			}
			return true
		})
		if next != nil {
			next.BeforeHtml(markup)
		} else {
			chat.AppendHtml(markup)
		}
		mes = p.Message(n.ID)
	}

	mes.SetAttr("ch_name", n.Author)
	mes.SetAttr("is_user", strconv.FormatBool(n.IsUser))
	mes.SetAttr("is_system", strconv.FormatBool(n.IsSystem))

	block := mes.Find(BlockSelector).First()
	block.Find(ReasoningSelector).Remove()
	if n.Reasoning != "" {
		block.PrependHtml(fmt.Sprintf(`<details class="mes_reasoning_details"><summary>Thought</summary><div class="mes_reasoning">%s</div></details>`,
			html.EscapeString(n.Reasoning)))
	}
	block.Find(ContentSelector).First().SetHtml(n.Content)
	return nil
}

// SetContent replaces only the content element of message id.
func (p *Page) SetContent(id int, content string) error {
	c := p.Content(id)
	if c.Length() == 0 {
		return fmt.Errorf("message %d has no content element", id)
	}
	c.SetHtml(content)
	return nil
}

// Truncate removes message nodes whose id is count or higher.
func (p *Page) Truncate(count int) {
	p.Chat().Find(MessageSelector).Each(func(_ int, s *goquery.Selection) {
		if id, ok := MessageID(s); ok && id >= count {
			s.Remove()
		}
	})
}

// MessageIDs returns the ids of all message nodes in document order.
func (p *Page) MessageIDs() []int {
	var ids []int
	p.Chat().Find(MessageSelector).Each(func(_ int, s *goquery.Selection) {
		if id, ok := MessageID(s); ok {
			ids = append(ids, id)
		}
	})
	return ids
}
