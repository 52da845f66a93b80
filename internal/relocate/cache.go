package relocate

// Cache is the per-run relocation state: source URL to relocated URL,
// plus the set of storage keys already written during this run so
// identical bytes reached through different URLs upload once. It is
// constructed fresh by the batch driver for each run and passed in
// explicitly; the package keeps no hidden state.
type Cache struct {
	byURL        map[string]string
	uploadedKeys map[string]struct{}
}

func NewCache() *Cache {
	return &Cache{
		byURL:        make(map[string]string),
		uploadedKeys: make(map[string]struct{}),
	}
}

func (c *Cache) lookup(sourceURL string) (string, bool) {
	relocated, ok := c.byURL[sourceURL]
	return relocated, ok
}

func (c *Cache) record(sourceURL, relocatedURL string) {
	c.byURL[sourceURL] = relocatedURL
}

func (c *Cache) keyUploaded(key string) bool {
	_, ok := c.uploadedKeys[key]
	return ok
}

func (c *Cache) markKeyUploaded(key string) {
	c.uploadedKeys[key] = struct{}{}
}

// Len reports how many source URLs have been resolved this run.
func (c *Cache) Len() int {
	return len(c.byURL)
}
