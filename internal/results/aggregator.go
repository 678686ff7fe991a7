package results

import "sync"

// ContentTypeJPEG is the content type of published outputs.
const ContentTypeJPEG = "image/jpeg"

// Aggregator owns the object URLs and the archive of one batch.
type Aggregator struct {
	mu      sync.Mutex
	urls    *URLRegistry
	archive *Archive
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		urls:    NewURLRegistry(),
		archive: NewArchive(),
	}
}

// Publish makes data available under a new object URL and as archive
// entry name. It returns the URL.
func (a *Aggregator) Publish(name string, data []byte) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archive.Add(name, data)
	return a.urls.Create(data, ContentTypeJPEG)
}

// Retract revokes url and removes the archive entry name.
func (a *Aggregator) Retract(name, url string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if url != "" {
		a.urls.Revoke(url)
	}
	a.archive.Remove(name)
}

// Lookup returns the data behind a live object URL.
func (a *Aggregator) Lookup(url string) ([]byte, string, bool) {
	return a.urls.Get(url)
}

// Generate builds the zip of every published output.
func (a *Aggregator) Generate() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.archive.Generate()
}

// Entries returns the number of archive entries.
func (a *Aggregator) Entries() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.archive.Len()
}

// LiveURLs returns the number of unrevoked object URLs.
func (a *Aggregator) LiveURLs() int {
	return a.urls.Len()
}

// Reset revokes every URL and empties the archive. It returns the number
// of URLs revoked.
func (a *Aggregator) Reset() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archive.Reset()
	return a.urls.RevokeAll()
}

// Close releases everything, like Reset.
func (a *Aggregator) Close() {
	a.Reset()
}
