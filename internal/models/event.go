package models

import "time"

// ContainerKind describes the shape of a source container.
type ContainerKind int

const (
	// KindFlat is a single ordered stream of events.
	KindFlat ContainerKind = iota
	// KindThreaded holds nested sub-threads (Discord forum or media channels).
	KindThreaded
)

// String returns the kind name used in logs.
func (k ContainerKind) String() string {
	switch k {
	case KindFlat:
		return "flat"
	case KindThreaded:
		return "threaded"
	default:
		return "unknown"
	}
}

// Attachment is a binary file posted with an event.
// It only lives until it is relocated and becomes an Asset.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	ByteSize    int64  `json:"byte_size"`
	SourceURL   string `json:"source_url"`
}

// Event is one normalized message from the source system.
type Event struct {
	ID string `json:"id"`

	// ConversationID groups events into a page. Empty means absent,
	// in which case the page is picked by content routing.
	ConversationID    string `json:"conversation_id,omitempty"`
	ConversationTitle string `json:"conversation_title,omitempty"`

	AuthorID    string       `json:"author_id"`
	Author      string       `json:"author"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`

	// Sequence is the source-assigned order, used to break CreatedAt ties.
	Sequence uint64 `json:"sequence"`
}

// HasConversation reports whether the event carries a conversation identity.
func (e Event) HasConversation() bool {
	return e.ConversationID != ""
}

// Thread is a sub-container of a threaded container.
type Thread struct {
	ID             string
	Name           string
	Archived       bool
	LastActivityAt time.Time
}
