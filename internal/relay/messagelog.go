package relay

// Message is one chat message, immutable once appended.
type Message struct {
	Text      string  `json:"text"`
	Username  string  `json:"username"`
	Timestamp float64 `json:"timestamp"` // unix epoch seconds
	Server    string  `json:"server"`
}

// MessageLog is the append-only in-memory chat log. Growth is unbounded;
// bounded retention is a hardening candidate, not part of the contract.
type MessageLog struct {
	messages []Message
}

func NewMessageLog() *MessageLog { return &MessageLog{} }

func (l *MessageLog) Append(m Message) {
	l.messages = append(l.messages, m)
}

func (l *MessageLog) Len() int { return len(l.messages) }

// All returns a copy so callers can serialize it outside the service lock.
func (l *MessageLog) All() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}
