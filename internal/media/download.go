package media

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/italolelis/media_fetcher/internal/extractor"
	"github.com/italolelis/media_fetcher/internal/logctx"
	"github.com/italolelis/media_fetcher/internal/telemetry"
)

const (
	// StoredExtension is the extension every download is advertised with,
	// whatever container the extraction client produced.
	StoredExtension = ".mp4"

	eventBufferSize = 16
)

// DownloadRequest is one download as submitted by a caller.
type DownloadRequest struct {
	URL     string `json:"url"`
	Format  string `json:"format"`
	Cookies string `json:"cookies"`
}

// DownloadResult describes a finished download.
type DownloadResult struct {
	Filename    string
	DownloadURL string
	Elapsed     time.Duration
}

// TimeTaken returns the elapsed seconds rounded to two decimal places.
func (r *DownloadResult) TimeTaken() float64 {
	return math.Round(r.Elapsed.Seconds()*100) / 100
}

// DownloadEvent is emitted once per download attempt that passed validation.
type DownloadEvent struct {
	URL      string
	Filename string
	Elapsed  time.Duration
	Err      error
}

// Orchestrator validates download requests, runs them through the
// extraction client and builds the retrieval link.
type Orchestrator struct {
	client        extractor.Client
	downloadDir   string
	publicBaseURL string
	telemetry     *telemetry.Telemetry

	mu     sync.RWMutex
	closed bool
	events chan DownloadEvent
}

// NewOrchestrator creates an orchestrator writing into downloadDir and
// linking files under publicBaseURL. tel may be nil.
func NewOrchestrator(client extractor.Client, downloadDir, publicBaseURL string, tel *telemetry.Telemetry) *Orchestrator {
	return &Orchestrator{
		client:        client,
		downloadDir:   downloadDir,
		publicBaseURL: publicBaseURL,
		telemetry:     tel,
		events:        make(chan DownloadEvent, eventBufferSize),
	}
}

// Events delivers download outcomes. Events are dropped when nobody keeps up.
func (o *Orchestrator) Events() <-chan DownloadEvent {
	return o.events
}

// Close closes the events channel. Downloads finishing afterwards emit nothing.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.events)
	}
}

// Download runs req to completion. The download is not tied to ctx's
// cancellation; only its values (logger, trace) are carried over.
func (o *Orchestrator) Download(ctx context.Context, req DownloadRequest) (*DownloadResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	logger := logctx.LoggerFromContext(ctx).With("url", req.URL, "format", req.Format)

	opts := extractor.DownloadOptions{
		OutputDir:      o.downloadDir,
		OutputTemplate: extractor.DefaultOutputTemplate,
		Format:         req.Format,
		Cookies:        req.Cookies,
	}

	var info *extractor.Info

	start := time.Now()

	err := o.telemetry.InstrumentDownload(ctx, func(ctx context.Context) error {
		var err error

		info, err = o.client.Download(ctx, req.URL, opts)

		return err
	})

	elapsed := time.Since(start)

	if err != nil {
		logger.ErrorContext(ctx, "download failed", "elapsed", elapsed, "err", err)
		o.emit(DownloadEvent{URL: req.URL, Elapsed: elapsed, Err: err})

		return nil, classify(err)
	}

	filename := info.Title + StoredExtension

	if info.Filename != "" && filepath.Base(info.Filename) != filename {
		logger.WarnContext(ctx, "filename_mismatch",
			"advertised", filename,
			"written", filepath.Base(info.Filename),
			"ext", info.Ext,
		)
	}

	result := &DownloadResult{
		Filename:    filename,
		DownloadURL: o.publicBaseURL + "/download_file/" + url.PathEscape(filename),
		Elapsed:     elapsed,
	}

	logger.InfoContext(ctx, "download finished", "filename", filename, "time_taken", result.TimeTaken())
	o.emit(DownloadEvent{URL: req.URL, Filename: filename, Elapsed: elapsed})

	return result, nil
}

func (o *Orchestrator) emit(ev DownloadEvent) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return
	}

	select {
	case o.events <- ev:
	default:
	}
}

func validate(req DownloadRequest) error {
	switch {
	case req.URL == "":
		return validationError("url", "No URL provided")
	case req.Format == "":
		return validationError("format", "No format selected")
	case req.Cookies == "":
		return validationError("cookies", "Cookies are required for downloading")
	}

	return nil
}

func classify(err error) *Error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) || errors.Is(err, fs.ErrPermission) {
		return wrapError(KindIO, err)
	}

	return wrapError(KindExtraction, err)
}
