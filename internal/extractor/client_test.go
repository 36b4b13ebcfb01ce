package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/italolelis/media_fetcher/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	extractInfoFunc func(ctx context.Context, url string) (*Info, error)
	downloadFunc    func(ctx context.Context, url string, opts DownloadOptions) (*Info, error)
}

func (f *fakeClient) ExtractInfo(ctx context.Context, url string) (*Info, error) {
	return f.extractInfoFunc(ctx, url)
}

func (f *fakeClient) Download(ctx context.Context, url string, opts DownloadOptions) (*Info, error) {
	return f.downloadFunc(ctx, url, opts)
}

func TestExpandTemplate(t *testing.T) {
	assert.Equal(t, "My Video.webm", ExpandTemplate(DefaultOutputTemplate, "My Video", "webm"))
	assert.Equal(t, "clip.mp4", ExpandTemplate("", "clip", "mp4"))
	assert.Equal(t, "prefix-clip-%(id)s.mkv", ExpandTemplate("prefix-%(title)s-%(id)s.%(ext)s", "clip", "mkv"))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Plain title", want: "Plain title"},
		{in: "AC/DC - Live", want: "AC-DC - Live"},
		{in: `back\slash`, want: "back-slash"},
		{in: "  padded  ", want: "padded"},
		{in: "Café ☕ 東京", want: "Café ☕ 東京"},
		{in: "..", want: "untitled"},
		{in: "", want: "untitled"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestInstrumentedClient_DelegatesResultsAndErrors(t *testing.T) {
	boom := errors.New("unsupported URL")

	inner := &fakeClient{
		extractInfoFunc: func(ctx context.Context, url string) (*Info, error) {
			return &Info{Title: "t"}, nil
		},
		downloadFunc: func(ctx context.Context, url string, opts DownloadOptions) (*Info, error) {
			assert.Equal(t, "best", opts.Format)
			return nil, boom
		},
	}

	c := NewInstrumentedClient(inner, &telemetry.Telemetry{}, "fake")

	info, err := c.ExtractInfo(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "t", info.Title)

	info, err = c.Download(context.Background(), "https://example.com", DownloadOptions{Format: "best"})
	require.ErrorIs(t, err, boom)
	assert.Nil(t, info)
}
