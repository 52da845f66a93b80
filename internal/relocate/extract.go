package relocate

import "regexp"

var (
	markdownImagePattern = regexp.MustCompile(`!\[[^\]]*]\((https?://[^)\s]+)\)`)
	htmlImagePattern     = regexp.MustCompile(`<img[^>]+src="(https?://[^"]+)"`)
)

// ExtractImageURLs returns every image URL referenced by a markdown
// body, covering both the inline `![..](url)` syntax and raw embedded
// `<img src="url">` tags. Order of first appearance, de-duplicated.
func ExtractImageURLs(body string) []string {
	seen := make(map[string]struct{})
	var urls []string

	for _, pattern := range []*regexp.Regexp{markdownImagePattern, htmlImagePattern} {
		for _, match := range pattern.FindAllStringSubmatch(body, -1) {
			url := match[1]
			if _, ok := seen[url]; ok {
				continue
			}
			seen[url] = struct{}{}
			urls = append(urls, url)
		}
	}

	return urls
}
