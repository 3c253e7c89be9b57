package notion

import (
	"github.com/raphaelgruber/threadsync/internal/models"
	"github.com/raphaelgruber/threadsync/internal/parser"
)

// richTextLimit is the content limit of one rich text object.
const richTextLimit = 2000

// maxChildren is the number of blocks accepted per request.
const maxChildren = 100

func toBlock(b models.Block) block {
	var rts []richText
	for _, chunk := range parser.SplitText(b.Text, richTextLimit) {
		rts = append(rts, richText{Type: "text", Text: &textContent{Content: chunk}})
	}
	if rts == nil {
		rts = []richText{}
	}
	body := &blockBody{RichText: rts}

	out := block{Object: "block"}
	switch b.Type {
	case models.BlockHeading:
		out.Type = "heading_2"
		out.Heading2 = body
	case models.BlockBullet:
		out.Type = "bulleted_list_item"
		out.BulletedListItem = body
	default:
		out.Type = "paragraph"
		out.Paragraph = body
	}
	return out
}

func toBlocks(blocks []models.Block) []block {
	out := make([]block, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, toBlock(b))
	}
	return out
}

// fromBlock maps a Notion block to a model block. Unsupported block types
// report ok=false.
func fromBlock(b block) (models.Block, bool) {
	var (
		typ  models.BlockType
		body *blockBody
	)
	switch b.Type {
	case "paragraph":
		typ, body = models.BlockParagraph, b.Paragraph
	case "heading_1":
		typ, body = models.BlockHeading, b.Heading1
	case "heading_2":
		typ, body = models.BlockHeading, b.Heading2
	case "heading_3":
		typ, body = models.BlockHeading, b.Heading3
	case "bulleted_list_item":
		typ, body = models.BlockBullet, b.BulletedListItem
	case "numbered_list_item":
		typ, body = models.BlockBullet, b.NumberedListItem
	case "quote":
		typ, body = models.BlockParagraph, b.Quote
	case "to_do":
		typ, body = models.BlockBullet, b.ToDo
	}
	if body == nil {
		return models.Block{}, false
	}
	return models.Block{Type: typ, Text: plainText(body.RichText)}, true
}

func batches[T any](items []T, size int) [][]T {
	var out [][]T
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
