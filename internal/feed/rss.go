package feed

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"net/url"
	"time"

	"github.com/jo-hoe/podify/internal/common"
)

type rss struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	ITunes  string   `xml:"xmlns:itunes,attr"`
	Atom    string   `xml:"xmlns:atom,attr"`
	Channel channel  `xml:"channel"`
}

type channel struct {
	Title          string   `xml:"title"`
	Description    string   `xml:"description"`
	Link           string   `xml:"link"`
	Language       string   `xml:"language"`
	Author         string   `xml:"itunes:author"`
	Owner          owner    `xml:"itunes:owner"`
	ITunesImage    *hrefTag `xml:"itunes:image,omitempty"`
	Image          *image   `xml:"image,omitempty"`
	ManagingEditor string   `xml:"managingEditor"`
	Explicit       string   `xml:"itunes:explicit"`
	Category       hrefTag  `xml:"itunes:category"`
	Self           atomLink `xml:"atom:link"`
	Items          []item   `xml:"item"`
}

type owner struct {
	Name  string `xml:"itunes:name"`
	Email string `xml:"itunes:email"`
}

type hrefTag struct {
	Href string `xml:"href,attr,omitempty"`
	Text string `xml:"text,attr,omitempty"`
}

type image struct {
	URL   string `xml:"url"`
	Title string `xml:"title"`
	Link  string `xml:"link"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type item struct {
	Title       string    `xml:"title"`
	Description string    `xml:"description"`
	Link        string    `xml:"link"`
	PubDate     string    `xml:"pubDate"`
	Enclosure   enclosure `xml:"enclosure"`
	GUID        guid      `xml:"guid"`
	Duration    string    `xml:"itunes:duration"`
}

type enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type guid struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// AudioPath is the API path serving an episode's audio.
func AudioPath(slug string) string {
	return common.PathEpisodes + "/" + url.PathEscape(slug) + "/audio"
}

// WriteRSS renders m as a podcast RSS 2.0 document. Enclosures point at the
// audio endpoint under baseURL.
func WriteRSS(w io.Writer, m *Manifest, baseURL string) error {
	show := m.Show
	explicit := "no"
	if show.Explicit {
		explicit = "yes"
	}
	ch := channel{
		Title:          show.Title,
		Description:    show.Description,
		Link:           show.Link,
		Language:       show.Language,
		Author:         show.Author,
		Owner:          owner{Name: show.Author, Email: show.Email},
		ManagingEditor: fmt.Sprintf("%s (%s)", show.Email, show.Author),
		Explicit:       explicit,
		Category:       hrefTag{Text: show.Category},
		Self:           atomLink{Href: baseURL + common.PathFeed, Rel: "self", Type: "application/rss+xml"},
		Items:          make([]item, 0, len(m.Episodes)),
	}
	if show.ImageURL != "" {
		ch.ITunesImage = &hrefTag{Href: show.ImageURL}
		ch.Image = &image{URL: show.ImageURL, Title: show.Title, Link: show.Link}
	}
	for _, ep := range m.Episodes {
		ch.Items = append(ch.Items, item{
			Title:       ep.Title,
			Description: ep.Description,
			Link:        baseURL + "/feed#" + url.PathEscape(ep.Slug),
			PubDate:     ep.PubDate.UTC().Format(time.RFC1123Z),
			Enclosure:   enclosure{URL: baseURL + AudioPath(ep.Slug), Length: ep.FileSizeBytes, Type: common.ContentTypeMP3},
			GUID:        guid{IsPermaLink: "false", Value: ep.GUID},
			Duration:    FormatDuration(ep.DurationSeconds),
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(rss{
		Version: "2.0",
		ITunes:  "http://www.itunes.com/dtds/podcast-1.0.dtd",
		Atom:    "http://www.w3.org/2005/Atom",
		Channel: ch,
	}); err != nil {
		return fmt.Errorf("encode rss: %w", err)
	}
	return enc.Close()
}

// FormatDuration renders seconds as M:SS or H:MM:SS.
func FormatDuration(seconds float64) string {
	total := int(math.Round(seconds))
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
