package stages

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"podship/internal/artifacts"
	"podship/internal/hashing"
	"podship/internal/logging"
	"podship/internal/provenance"
	"podship/internal/services"
	"podship/internal/stage"
	"podship/internal/store"
)

// Downloader fetches the raw audio bytes for an episode's source URL. The
// concrete transport (HTTP range requests, podcast-host quirks, retries) is
// deliberately out of the adapter's concern; only this one operation is.
type Downloader interface {
	Fetch(ctx context.Context, sourceURL string) ([]byte, error)
}

// HTTPDownloader is the default Downloader: a plain GET with no retry
// policy of its own, since download is already the first stage and a
// failed run simply gets retried by a later run_pending pass.
type HTTPDownloader struct {
	Client *http.Client
}

// NewHTTPDownloader returns an HTTPDownloader with a sane request timeout.
func NewHTTPDownloader() *HTTPDownloader {
	return &HTTPDownloader{Client: &http.Client{Timeout: 10 * time.Minute}}
}

func (d *HTTPDownloader) Fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download: read body: %w", err)
	}
	return data, nil
}

// DownloadStage fetches an episode's source audio into the raw audio
// artifact slot.
type DownloadStage struct {
	base
	downloader Downloader
}

// NewDownloadStage returns a DownloadStage.
func NewDownloadStage(artifactStore *artifacts.Store, prov *provenance.Writer, downloader Downloader) *DownloadStage {
	return &DownloadStage{base: newBase(artifactStore, prov), downloader: downloader}
}

func (s *DownloadStage) Name() string { return "download" }

func (s *DownloadStage) Run(ctx context.Context, rc stage.RunContext) (stage.Result, error) {
	ep := rc.Episode
	epKey := episodeKey(ep)

	outPath, err := s.artifacts.Resolve(epKey, string(artifacts.RawAudio), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}

	if !rc.Force && stage.ShouldSkip(s.artifacts, s.prov, epKey, s.Name(), stage.IdempotencyInputs{OutputPath: outPath}) {
		return stage.Skipped("raw audio already downloaded"), nil
	}

	started := time.Now()
	if rc.DryRun {
		return stage.Success(store.StatusDownloaded, "dry run: skipped fetch", 0), nil
	}

	data, err := s.downloader.Fetch(ctx, ep.SourceURL)
	if err != nil {
		return stage.Failed(services.Wrap(services.ErrExternalService, s.Name(), "fetch", "download source audio", err)), nil
	}
	if err := s.artifacts.Write(outPath, data); err != nil {
		return stage.Failed(err), nil
	}

	outHash := hashing.HashBytes(data)
	rec := provenance.Record{
		Stage:           s.Name(),
		EpisodeID:       epKey,
		Timestamp:       time.Now(),
		OutputFiles:     []provenance.FileRef{{Path: outPath, Hash: outHash}},
		DurationSeconds: time.Since(started).Seconds(),
	}
	if err := s.prov.Write(epKey, s.Name(), rec); err != nil {
		return stage.Failed(err), nil
	}

	s.log().Info("downloaded source audio", logging.Int("bytes", len(data)))
	return stage.Success(store.StatusDownloaded, fmt.Sprintf("downloaded %d bytes", len(data)), 0), nil
}
