package models

import "time"

// BlockType is the rendering type of a page block.
type BlockType string

const (
	BlockParagraph BlockType = "paragraph"
	BlockHeading   BlockType = "heading"
	BlockBullet    BlockType = "bullet"
)

// Block is one text block of a page body.
type Block struct {
	Type BlockType `json:"type"`
	Text string    `json:"text"`
}

// Paragraph returns a paragraph block.
func Paragraph(text string) Block {
	return Block{Type: BlockParagraph, Text: text}
}

// Heading returns a heading block.
func Heading(text string) Block {
	return Block{Type: BlockHeading, Text: text}
}

// Page is a knowledge-store document keyed by a conversation identity.
type Page struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Title          string    `json:"title"`
	Body           []Block   `json:"body"`
	LinkedAssets   []string  `json:"linked_assets"`
	CreatedAt      time.Time `json:"created_at"`
}

// PageRef is the {id, title} pair used for content routing snapshots.
type PageRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// PageInput holds the fields of a page to create.
type PageInput struct {
	ConversationID string
	Title          string
	Author         string
	Blocks         []Block
	PostedAt       time.Time
}

// Asset is a relocated attachment.
type Asset struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	ByteSize    int64     `json:"byte_size"`
	PostedAt    time.Time `json:"posted_at"`
}

// AssetInput holds the fields of an asset record to create.
type AssetInput struct {
	Filename    string
	URL         string
	ContentType string
	ByteSize    int64
	PostedAt    time.Time
}

// DoneRecord marks one event as projected into a page.
type DoneRecord struct {
	EventID string `json:"event_id"`
	PageID  string `json:"page_id"`
}
