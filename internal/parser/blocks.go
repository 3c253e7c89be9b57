package parser

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/raphaelgruber/threadsync/internal/models"
)

var (
	headingRegex = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
	bulletRegex  = regexp.MustCompile(`^\s*[-*•]\s+(.+)$`)
)

// TextBlocks splits plain text into paragraph blocks within limit.
func TextBlocks(text string, limit int) []models.Block {
	var blocks []models.Block
	for _, chunk := range SplitText(text, limit) {
		blocks = append(blocks, models.Paragraph(chunk))
	}
	return blocks
}

// MarkdownBlocks converts markdown into heading, bullet and paragraph
// blocks. Consecutive plain lines form one paragraph; blank lines end it.
// Blocks longer than limit are split into several blocks of the same type.
func MarkdownBlocks(md string, limit int) []models.Block {
	var (
		blocks    []models.Block
		paragraph []string
	)

	emit := func(typ models.BlockType, text string) {
		for _, chunk := range SplitText(text, limit) {
			blocks = append(blocks, models.Block{Type: typ, Text: chunk})
		}
	}
	flush := func() {
		if len(paragraph) > 0 {
			emit(models.BlockParagraph, strings.Join(paragraph, "\n"))
			paragraph = nil
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(md))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			flush()
		case headingRegex.MatchString(trimmed):
			flush()
			emit(models.BlockHeading, headingRegex.FindStringSubmatch(trimmed)[1])
		case bulletRegex.MatchString(line):
			flush()
			emit(models.BlockBullet, bulletRegex.FindStringSubmatch(line)[1])
		default:
			paragraph = append(paragraph, line)
		}
	}
	flush()

	return blocks
}

// BlocksText renders blocks back into plain text, one block per line.
func BlocksText(blocks []models.Block) string {
	var b strings.Builder
	for i, block := range blocks {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch block.Type {
		case models.BlockHeading:
			b.WriteString("## ")
		case models.BlockBullet:
			b.WriteString("- ")
		}
		b.WriteString(block.Text)
	}
	return b.String()
}
