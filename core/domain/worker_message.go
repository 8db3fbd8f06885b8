package domain

import "time"

// Message is a read-only view of one mailbox message.
// The system never creates or deletes messages; it only reads fields and mutates labels.
type Message struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"thread_id"`
	From     string    `json:"from"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	Date     time.Time `json:"date"`
	Labels   []string  `json:"labels,omitempty"` // label names, not provider IDs
}

// HasLabel reports whether the message carries the named label.
func (m *Message) HasLabel(name string) bool {
	for _, l := range m.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// Thread is a conversation as returned by a mailbox search, messages in provider order.
type Thread struct {
	ID       string     `json:"id"`
	Subject  string     `json:"subject"`
	Labels   []string   `json:"labels,omitempty"`
	Messages []*Message `json:"messages"`
}
