package notion

import (
	"sort"
	"strings"
	"time"

	"notion_syncer/internal/domain"
)

const fallbackTitle = "Untitled"

// ToPost maps a page's property bag plus its rendered markdown body to
// the normalized post shape. Pure: no network, no clock.
func ToPost(page Page, body string) domain.Post {
	title := extractTitle(page.Properties)

	post := domain.Post{
		ID:        normalizeID(page.ID),
		Title:     title,
		Slug:      domain.Slugify(title),
		Tags:      extractTags(page.Properties),
		Body:      body,
		CoverURL:  extractCover(page.Cover),
		CreatedAt: page.CreatedTime,
		Status:    extractStatus(page.Properties),
	}

	if published := extractPublishedAt(page.Properties); published != nil {
		post.PublishedAt = published
	} else if !page.CreatedTime.IsZero() {
		created := page.CreatedTime
		post.PublishedAt = &created
	}

	if page.URL != "" {
		canonical := page.URL
		post.CanonicalURL = &canonical
	}

	return post
}

func normalizeID(pageID string) string {
	return strings.ReplaceAll(pageID, "-", "")
}

// extractTitle returns the first property typed "title", falling back
// to a placeholder when the bag has none.
func extractTitle(props map[string]Property) string {
	for _, prop := range props {
		if prop.Type == "title" && len(prop.Title) > 0 && prop.Title[0].PlainText != "" {
			return plainText(prop.Title)
		}
	}
	return fallbackTitle
}

// extractTags concatenates the values of every multi_select property,
// not just the first one.
func extractTags(props map[string]Property) []string {
	var tags []string
	for _, name := range sortedKeys(props) {
		prop := props[name]
		if prop.Type != "multi_select" {
			continue
		}
		for _, opt := range prop.MultiSelect {
			if opt.Name != "" {
				tags = append(tags, opt.Name)
			}
		}
	}
	return tags
}

func extractCover(cover *Cover) *string {
	if cover == nil {
		return nil
	}
	var url string
	switch cover.Type {
	case "external":
		if cover.External != nil {
			url = cover.External.URL
		}
	case "file":
		if cover.File != nil {
			url = cover.File.URL
		}
	}
	if url == "" {
		return nil
	}
	return &url
}

func extractStatus(props map[string]Property) string {
	for _, prop := range props {
		if prop.Type == "status" && prop.Status != nil {
			if status := normalizeStatus(prop.Status.Name); status != "" {
				return status
			}
		}
	}
	for _, prop := range props {
		if prop.Type == "select" && prop.Select != nil {
			if status := normalizeStatus(prop.Select.Name); status != "" {
				return status
			}
		}
	}
	return domain.StatusPublished
}

func normalizeStatus(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case domain.StatusDraft:
		return domain.StatusDraft
	case domain.StatusReview:
		return domain.StatusReview
	case domain.StatusPublished:
		return domain.StatusPublished
	}
	return ""
}

func extractPublishedAt(props map[string]Property) *time.Time {
	for _, prop := range props {
		if prop.Type != "date" || prop.Date == nil || prop.Date.Start == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, prop.Date.Start); err == nil {
			return &ts
		}
		if day, err := time.Parse("2006-01-02", prop.Date.Start); err == nil {
			return &day
		}
	}
	return nil
}

func sortedKeys(props map[string]Property) []string {
	keys := make([]string, 0, len(props))
	for name := range props {
		keys = append(keys, name)
	}
	// map order is random; tags must come out stable across runs
	sort.Strings(keys)
	return keys
}
