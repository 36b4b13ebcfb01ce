package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/media_fetcher/internal/extractor"
	"github.com/italolelis/media_fetcher/internal/logctx"
	"github.com/italolelis/media_fetcher/internal/progress"
	"github.com/kkdai/youtube/v2"
)

const (
	Name = "youtube"

	progressInterval = 50 * 1024 * 1024 // 50MB
	filePerm         = 0o644
)

// ErrFormatNotFound is returned when a selector matches none of the
// formats YouTube offers for a video.
var ErrFormatNotFound = errors.New("requested format is not available")

// Client extracts and downloads YouTube videos natively, without yt-dlp.
// Only progressive and single-track adaptive streams can be fetched since
// nothing here muxes audio and video together.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new YouTube client. A nil httpClient means http.DefaultClient.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{httpClient: httpClient}
}

// ExtractInfo fetches the video page and maps its stream formats.
func (c *Client) ExtractInfo(ctx context.Context, url string) (*extractor.Info, error) {
	yt := c.youtubeClient("")

	video, err := yt.GetVideoContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to get video info: %w", err)
	}

	return &extractor.Info{
		ID:      video.ID,
		Title:   video.Title,
		Formats: mapFormats(video.Formats),
	}, nil
}

// Download streams the selected format into opts.OutputDir.
func (c *Client) Download(ctx context.Context, url string, opts extractor.DownloadOptions) (*extractor.Info, error) {
	logger := logctx.LoggerFromContext(ctx).With("extractor", Name)

	yt := c.youtubeClient(opts.Cookies)

	video, err := yt.GetVideoContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to get video info: %w", err)
	}

	format, err := selectFormat(video.Formats, opts.Format)
	if err != nil {
		return nil, err
	}

	ext := extension(format.MimeType)
	name := extractor.ExpandTemplate(opts.OutputTemplate, extractor.SanitizeFilename(video.Title), ext)
	targetPath := filepath.Join(opts.OutputDir, name)

	stream, size, err := yt.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}
	defer stream.Close()

	out, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to create target file: %w", err)
	}
	defer out.Close()

	logger.InfoContext(ctx, "downloading stream",
		"itag", format.ItagNo,
		"target", targetPath,
		"size", humanize.Bytes(uint64(max(size, 0))),
	)

	pr := progress.NewReader(stream, size, progressInterval, func(read, total int64) {
		attrs := []any{"target", targetPath, "downloaded", humanize.Bytes(uint64(read))}
		if total > 0 {
			attrs = append(attrs, "percent", humanize.FtoaWithDigits(float64(read)*100/float64(total), 2))
		}

		logger.DebugContext(ctx, "download progress", attrs...)
	})

	if _, err := io.Copy(out, pr); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", targetPath, err)
	}

	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s: %w", targetPath, err)
	}

	logger.InfoContext(ctx, "download finished",
		"target", targetPath,
		"written", humanize.Bytes(uint64(pr.BytesRead())),
	)

	return &extractor.Info{
		ID:       video.ID,
		Title:    video.Title,
		Ext:      ext,
		Filename: targetPath,
		Formats:  mapFormats(video.Formats),
	}, nil
}

func (c *Client) youtubeClient(cookies string) *youtube.Client {
	httpClient := c.httpClient

	if cookies != "" {
		clone := *c.httpClient
		clone.Transport = &cookieTransport{base: c.httpClient.Transport, cookies: cookies}
		httpClient = &clone
	}

	return &youtube.Client{HTTPClient: httpClient}
}

// cookieTransport attaches the caller's session cookies to every request.
type cookieTransport struct {
	base    http.RoundTripper
	cookies string
}

func (t *cookieTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	req = req.Clone(req.Context())

	if existing := req.Header.Get("Cookie"); existing != "" {
		req.Header.Set("Cookie", existing+"; "+t.cookies)
	} else {
		req.Header.Set("Cookie", t.cookies)
	}

	return base.RoundTrip(req)
}

func mapFormats(formats youtube.FormatList) []extractor.Format {
	result := make([]extractor.Format, 0, len(formats))

	for _, f := range formats {
		format := extractor.Format{
			ID:   strconv.Itoa(f.ItagNo),
			Ext:  extension(f.MimeType),
			Note: note(f),
		}

		if f.Height > 0 {
			h := f.Height
			format.Height = &h
		}

		result = append(result, format)
	}

	return result
}

// selectFormat resolves a selector against the offered formats. Supported
// selectors: "best" (or empty), "worst", "bestaudio", an itag number, or a
// quality label such as "720p".
func selectFormat(formats youtube.FormatList, selector string) (*youtube.Format, error) {
	var selected *youtube.Format

	switch selector {
	case "", "best":
		selected = pick(formats.WithAudioChannels(), func(a, b *youtube.Format) bool { return a.Height > b.Height })
	case "worst":
		selected = pick(formats.WithAudioChannels(), func(a, b *youtube.Format) bool {
			return b.Height == 0 || (a.Height > 0 && a.Height < b.Height)
		})
	case "bestaudio":
		var audio youtube.FormatList

		for _, f := range formats {
			if f.Height == 0 && f.AudioChannels > 0 {
				audio = append(audio, f)
			}
		}

		selected = pick(audio, func(a, b *youtube.Format) bool { return a.Bitrate > b.Bitrate })
	default:
		matches := formats.Quality(selector)
		if itag, err := strconv.Atoi(selector); err == nil {
			matches = formats.Itag(itag)
		}

		if len(matches) > 0 {
			selected = &matches[0]
		}
	}

	if selected == nil {
		return nil, fmt.Errorf("%w: %q", ErrFormatNotFound, selector)
	}

	return selected, nil
}

// pick returns the first format for which better never reports a
// later candidate as preferable.
func pick(formats youtube.FormatList, better func(a, b *youtube.Format) bool) *youtube.Format {
	var selected *youtube.Format

	for i := range formats {
		if selected == nil || better(&formats[i], selected) {
			selected = &formats[i]
		}
	}

	return selected
}

// extension maps a stream MIME type to the file extension yt-dlp would use.
func extension(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "bin"
	}

	switch mediaType {
	case "audio/mp4":
		return "m4a"
	case "video/3gpp":
		return "3gp"
	}

	if _, sub, ok := strings.Cut(mediaType, "/"); ok && sub != "" {
		return sub
	}

	return "bin"
}

func note(f youtube.Format) string {
	if f.QualityLabel != "" {
		return f.QualityLabel
	}

	return strings.ToLower(strings.TrimPrefix(f.AudioQuality, "AUDIO_QUALITY_"))
}
