package notion

import "strings"

type textContent struct {
	Content string `json:"content"`
}

type richText struct {
	Type      string       `json:"type,omitempty"`
	Text      *textContent `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
}

type blockBody struct {
	RichText []richText `json:"rich_text"`
}

type block struct {
	Object           string     `json:"object,omitempty"`
	ID               string     `json:"id,omitempty"`
	Type             string     `json:"type"`
	Paragraph        *blockBody `json:"paragraph,omitempty"`
	Heading1         *blockBody `json:"heading_1,omitempty"`
	Heading2         *blockBody `json:"heading_2,omitempty"`
	Heading3         *blockBody `json:"heading_3,omitempty"`
	BulletedListItem *blockBody `json:"bulleted_list_item,omitempty"`
	NumberedListItem *blockBody `json:"numbered_list_item,omitempty"`
	Quote            *blockBody `json:"quote,omitempty"`
	ToDo             *blockBody `json:"to_do,omitempty"`
}

type dateValue struct {
	Start string `json:"start"`
}

type selectValue struct {
	Name string `json:"name"`
}

type relationRef struct {
	ID string `json:"id"`
}

type property struct {
	Title    []richText    `json:"title,omitempty"`
	RichText []richText    `json:"rich_text,omitempty"`
	Date     *dateValue    `json:"date,omitempty"`
	URL      *string       `json:"url,omitempty"`
	Select   *selectValue  `json:"select,omitempty"`
	Number   *int64        `json:"number,omitempty"`
	Relation []relationRef `json:"relation,omitempty"`
}

type page struct {
	ID         string              `json:"id"`
	Properties map[string]property `json:"properties"`
}

type parent struct {
	DatabaseID string `json:"database_id"`
}

type createPageRequest struct {
	Parent     parent              `json:"parent"`
	Properties map[string]property `json:"properties"`
	Children   []block             `json:"children,omitempty"`
}

type updatePageRequest struct {
	Properties map[string]property `json:"properties"`
}

type appendChildrenRequest struct {
	Children []block `json:"children"`
}

type queryRequest struct {
	Filter      any    `json:"filter,omitempty"`
	StartCursor string `json:"start_cursor,omitempty"`
	PageSize    int    `json:"page_size,omitempty"`
}

type listResponse[T any] struct {
	Results    []T     `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

func (r listResponse[T]) cursor() string {
	if !r.HasMore || r.NextCursor == nil {
		return ""
	}
	return *r.NextCursor
}

func textProperty(s string) []richText {
	return []richText{{Type: "text", Text: &textContent{Content: s}}}
}

func plainText(rts []richText) string {
	var b strings.Builder
	for _, rt := range rts {
		if rt.PlainText != "" {
			b.WriteString(rt.PlainText)
		} else if rt.Text != nil {
			b.WriteString(rt.Text.Content)
		}
	}
	return b.String()
}
