package feed

import (
	"time"

	"github.com/jo-hoe/podify/internal/config"
)

// EpisodeMeta is one manifest entry. GUID is immutable once written; Slug is
// unique within a manifest.
type EpisodeMeta struct {
	GUID            string    `json:"guid"`
	Slug            string    `json:"slug"`
	DirName         string    `json:"dirName"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	PubDate         time.Time `json:"pubDate"`
	DurationSeconds float64   `json:"durationSeconds"`
	FileSizeBytes   int64     `json:"fileSizeBytes"`
	AudioFileName   string    `json:"audioFileName"`
	WordCount       int       `json:"wordCount"`
	CostUSD         float64   `json:"costUsd"`
	BlobURL         string    `json:"blobUrl,omitempty"`
	Source          string    `json:"source,omitempty"`
}

// Manifest is the persisted feed: show metadata plus episodes, newest first.
type Manifest struct {
	Show     config.ShowConfig `json:"show"`
	Episodes []EpisodeMeta     `json:"episodes"`
}

func newManifest(show config.ShowConfig) *Manifest {
	return &Manifest{Show: show, Episodes: []EpisodeMeta{}}
}

func (m *Manifest) slugs() map[string]struct{} {
	out := make(map[string]struct{}, len(m.Episodes))
	for _, e := range m.Episodes {
		out[e.Slug] = struct{}{}
	}
	return out
}

// Find returns the entry with slug.
func (m *Manifest) Find(slug string) (EpisodeMeta, bool) {
	for _, e := range m.Episodes {
		if e.Slug == slug {
			return e, true
		}
	}
	return EpisodeMeta{}, false
}
