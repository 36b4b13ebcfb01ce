package media

import (
	"context"

	"github.com/italolelis/media_fetcher/internal/extractor"
	"github.com/italolelis/media_fetcher/internal/logctx"
)

// FormatDescriptor is one downloadable variant that carries a video track.
type FormatDescriptor struct {
	FormatID   string `json:"format_id"`
	Height     int    `json:"height"`
	Extension  string `json:"extension"`
	FormatNote string `json:"format_note"`
}

// Lister enumerates the video formats of a media URL.
type Lister struct {
	client extractor.Client
}

func NewLister(client extractor.Client) *Lister {
	return &Lister{client: client}
}

// ListFormats returns the formats of url that report a vertical resolution,
// in the order the extraction client produced them.
func (l *Lister) ListFormats(ctx context.Context, url string) ([]FormatDescriptor, error) {
	if url == "" {
		return nil, validationError("url", "No URL provided")
	}

	logger := logctx.LoggerFromContext(ctx)

	info, err := l.client.ExtractInfo(ctx, url)
	if err != nil {
		logger.ErrorContext(ctx, "failed to extract formats", "url", url, "err", err)

		return nil, wrapError(KindExtraction, err)
	}

	formats := make([]FormatDescriptor, 0, len(info.Formats))

	for _, f := range info.Formats {
		// A zero height carries no resolution, same as a missing one.
		if f.Height == nil || *f.Height == 0 {
			continue
		}

		formats = append(formats, FormatDescriptor{
			FormatID:   f.ID,
			Height:     *f.Height,
			Extension:  f.Ext,
			FormatNote: f.Note,
		})
	}

	logger.DebugContext(ctx, "listed formats", "url", url, "total", len(info.Formats), "with_video", len(formats))

	return formats, nil
}
