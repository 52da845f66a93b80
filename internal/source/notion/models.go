package notion

import "time"

// Wire shapes for the subset of the Notion API the syncer touches:
// database query, page retrieve and block children.

type queryRequest struct {
	PageSize    int    `json:"page_size"`
	StartCursor string `json:"start_cursor,omitempty"`
}

type QueryResponse struct {
	Results    []Page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

type Page struct {
	ID          string              `json:"id"`
	CreatedTime time.Time           `json:"created_time"`
	URL         string              `json:"url"`
	Cover       *Cover              `json:"cover"`
	Properties  map[string]Property `json:"properties"`
}

type Cover struct {
	Type     string   `json:"type"` // "external" or "file"
	External *FileRef `json:"external"`
	File     *FileRef `json:"file"`
}

type FileRef struct {
	URL string `json:"url"`
}

// Property is a single entry of a page's property bag. Only the typed
// field matching Type is populated.
type Property struct {
	Type        string         `json:"type"`
	Title       []RichText     `json:"title"`
	RichText    []RichText     `json:"rich_text"`
	MultiSelect []SelectOption `json:"multi_select"`
	Select      *SelectOption  `json:"select"`
	Status      *SelectOption  `json:"status"`
	Date        *DateValue     `json:"date"`
}

type SelectOption struct {
	Name string `json:"name"`
}

type DateValue struct {
	Start string `json:"start"`
}

type RichText struct {
	PlainText   string       `json:"plain_text"`
	Href        *string      `json:"href"`
	Annotations *Annotations `json:"annotations"`
}

type Annotations struct {
	Bold          bool `json:"bold"`
	Italic        bool `json:"italic"`
	Strikethrough bool `json:"strikethrough"`
	Code          bool `json:"code"`
}

type blockChildrenResponse struct {
	Results    []Block `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

type Block struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	HasChildren bool   `json:"has_children"`

	Paragraph        *TextBlock  `json:"paragraph"`
	Heading1         *TextBlock  `json:"heading_1"`
	Heading2         *TextBlock  `json:"heading_2"`
	Heading3         *TextBlock  `json:"heading_3"`
	BulletedListItem *TextBlock  `json:"bulleted_list_item"`
	NumberedListItem *TextBlock  `json:"numbered_list_item"`
	Quote            *TextBlock  `json:"quote"`
	Code             *CodeBlock  `json:"code"`
	Image            *ImageBlock `json:"image"`

	// populated by the source when HasChildren is set
	Children []Block `json:"-"`
}

type TextBlock struct {
	RichText []RichText `json:"rich_text"`
}

type CodeBlock struct {
	RichText []RichText `json:"rich_text"`
	Language string     `json:"language"`
}

type ImageBlock struct {
	Type     string     `json:"type"`
	External *FileRef   `json:"external"`
	File     *FileRef   `json:"file"`
	Caption  []RichText `json:"caption"`
}
