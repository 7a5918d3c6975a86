package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
)

// RSSFeedSource fetches items from a podcast RSS/Atom feed URL.
type RSSFeedSource struct {
	URL    string
	parser *gofeed.Parser
}

// NewRSSFeedSource returns an RSSFeedSource for url.
func NewRSSFeedSource(url string) *RSSFeedSource {
	return &RSSFeedSource{URL: url, parser: gofeed.NewParser()}
}

// FetchItems parses the feed and returns every enclosure-bearing item
// published at or after since.
func (r *RSSFeedSource) FetchItems(ctx context.Context, since time.Time) ([]FeedItem, error) {
	parsed, err := r.parser.ParseURLWithContext(r.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", r.URL, err)
	}

	var items []FeedItem
	for _, entry := range parsed.Items {
		if entry.PublishedParsed != nil && entry.PublishedParsed.Before(since) {
			continue
		}
		audioURL, duration := enclosureAudio(entry)
		if audioURL == "" {
			continue
		}
		externalID := entry.GUID
		if externalID == "" {
			externalID = entry.Link
		}
		published := time.Time{}
		if entry.PublishedParsed != nil {
			published = *entry.PublishedParsed
		}
		items = append(items, FeedItem{
			ExternalID:      externalID,
			Title:           entry.Title,
			AudioURL:        audioURL,
			DurationSeconds: duration,
			PublishedAt:     published,
		})
	}
	return items, nil
}

func enclosureAudio(entry *gofeed.Item) (string, float64) {
	for _, enc := range entry.Enclosures {
		if enc.URL == "" {
			continue
		}
		return enc.URL, itunesDuration(entry)
	}
	return "", 0
}

func itunesDuration(entry *gofeed.Item) float64 {
	if entry.ITunesExt == nil || entry.ITunesExt.Duration == "" {
		return 0
	}
	var h, m, s int
	switch n, _ := fmt.Sscanf(entry.ITunesExt.Duration, "%d:%d:%d", &h, &m, &s); n {
	case 3:
		return float64(h*3600 + m*60 + s)
	case 2:
		return float64(h*60 + m)
	default:
		var seconds int
		if _, err := fmt.Sscanf(entry.ITunesExt.Duration, "%d", &seconds); err == nil {
			return float64(seconds)
		}
		return 0
	}
}
