// Package feed detects new episodes published to a polled channel's
// source feed and registers them with the store.
package feed

import (
	"context"
	"fmt"
	"time"

	"podship/internal/services"
	"podship/internal/store"
)

// FeedItem is one entry a FeedSource reports back, already normalized to
// the fields the detector needs to create an episode.
type FeedItem struct {
	ExternalID      string
	Title           string
	AudioURL        string
	DurationSeconds float64
	PublishedAt     time.Time
}

// FeedSource fetches items published since a point in time. Implementations
// wrap whatever the channel's feed format actually is (RSS, Atom, a
// platform API); the detector only ever calls this one method.
type FeedSource interface {
	FetchItems(ctx context.Context, since time.Time) ([]FeedItem, error)
}

// Detector polls channels for new episodes and registers them.
type Detector struct {
	store *store.Store
}

// NewDetector returns a Detector.
func NewDetector(st *store.Store) *Detector {
	return &Detector{store: st}
}

// DetectNewEpisodes fetches items from source published since the
// caller-supplied since time, and creates an Episode for
// every item not already known by external id. Known items are skipped
// silently — re-polling a feed is expected to repeatedly observe old
// entries.
func (d *Detector) DetectNewEpisodes(ctx context.Context, channel *store.Channel, source FeedSource, since time.Time) ([]*store.Episode, error) {
	items, err := source.FetchItems(ctx, since)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "feed", "fetch_items",
			fmt.Sprintf("fetch feed items for channel %q", channel.Name), err)
	}

	var created []*store.Episode
	for _, item := range items {
		existing, err := d.store.GetEpisodeByExternalID(ctx, item.ExternalID)
		if err != nil {
			return created, services.Wrap(services.ErrIO, "feed", "lookup", "check for existing episode", err)
		}
		if existing != nil {
			continue
		}

		ep, err := d.store.CreateEpisode(ctx, channel.ID, item.ExternalID, item.Title, item.AudioURL,
			item.DurationSeconds, channel.DefaultPipelineVersion)
		if err != nil {
			return created, services.Wrap(services.ErrIO, "feed", "create_episode",
				fmt.Sprintf("create episode for external id %q", item.ExternalID), err)
		}
		created = append(created, ep)
	}
	return created, nil
}
