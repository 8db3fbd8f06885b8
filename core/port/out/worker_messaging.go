package out

import "context"

// Notifier delivers rich chat messages.
type Notifier interface {
	Send(ctx context.Context, msg *ChatMessage) error
}

// ChatMessage is a Block Kit payload. Channel overrides the webhook default when set.
type ChatMessage struct {
	Channel string  `json:"channel,omitempty"`
	Text    string  `json:"text,omitempty"`
	Blocks  []Block `json:"blocks,omitempty"`
}

// Block types
const (
	BlockHeader  = "header"
	BlockSection = "section"
	BlockContext = "context"
	BlockDivider = "divider"
	BlockActions = "actions"
)

// Text object types
const (
	TextPlain    = "plain_text"
	TextMarkdown = "mrkdwn"
)

// Block is one Block Kit layout block.
type Block struct {
	Type     string        `json:"type"`
	Text     *TextObject   `json:"text,omitempty"`
	Fields   []*TextObject `json:"fields,omitempty"`
	Elements []any         `json:"elements,omitempty"` // *TextObject for context, *Button for actions
}

type TextObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type Button struct {
	Type  string      `json:"type"`
	Text  *TextObject `json:"text"`
	URL   string      `json:"url,omitempty"`
	Style string      `json:"style,omitempty"`
}

func PlainText(text string) *TextObject {
	return &TextObject{Type: TextPlain, Text: text, Emoji: true}
}

func Markdown(text string) *TextObject {
	return &TextObject{Type: TextMarkdown, Text: text}
}
