package youtube

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kkdai/youtube/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFormats = youtube.FormatList{
	{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, Height: 360, QualityLabel: "360p", AudioChannels: 2, Bitrate: 500},
	{ItagNo: 22, MimeType: `video/mp4; codecs="avc1.64001F, mp4a.40.2"`, Height: 720, QualityLabel: "720p", AudioChannels: 2, Bitrate: 1500},
	{ItagNo: 137, MimeType: `video/mp4; codecs="avc1.640028"`, Height: 1080, QualityLabel: "1080p", Bitrate: 4000},
	{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, AudioQuality: "AUDIO_QUALITY_MEDIUM", AudioChannels: 2, Bitrate: 128},
	{ItagNo: 251, MimeType: `audio/webm; codecs="opus"`, AudioQuality: "AUDIO_QUALITY_LOW", AudioChannels: 2, Bitrate: 160},
}

func TestMapFormats(t *testing.T) {
	formats := mapFormats(testFormats)
	require.Len(t, formats, len(testFormats))

	assert.Equal(t, "18", formats[0].ID)
	assert.Equal(t, "mp4", formats[0].Ext)
	assert.Equal(t, "360p", formats[0].Note)
	require.NotNil(t, formats[0].Height)
	assert.Equal(t, 360, *formats[0].Height)

	assert.Equal(t, "m4a", formats[3].Ext)
	assert.Equal(t, "medium", formats[3].Note)
	assert.Nil(t, formats[3].Height, "audio-only streams carry no height")

	assert.Equal(t, "webm", formats[4].Ext)
}

func TestSelectFormat(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		itag     int
		wantErr  bool
	}{
		{name: "empty means best", selector: "", itag: 22},
		{name: "best muxed stream", selector: "best", itag: 22},
		{name: "worst muxed stream", selector: "worst", itag: 18},
		{name: "best audio by bitrate", selector: "bestaudio", itag: 251},
		{name: "itag", selector: "137", itag: 137},
		{name: "quality label", selector: "720p", itag: 22},
		{name: "adaptive quality label", selector: "1080p", itag: 137},
		{name: "audio itag", selector: "140", itag: 140},
		{name: "unknown itag", selector: "999", wantErr: true},
		{name: "unknown label", selector: "4320p", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := selectFormat(testFormats, tt.selector)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrFormatNotFound)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.itag, f.ItagNo)
		})
	}
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		`video/mp4; codecs="avc1"`:  "mp4",
		`video/webm; codecs="vp9"`:  "webm",
		`audio/mp4; codecs="mp4a"`:  "m4a",
		`video/3gpp; codecs="mp4v"`: "3gp",
		"":                          "bin",
	}

	for mimeType, want := range tests {
		assert.Equal(t, want, extension(mimeType), mimeType)
	}
}

func TestCookieTransport(t *testing.T) {
	var got []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Cookie"))
	}))
	defer srv.Close()

	c := NewClient(srv.Client())

	yt := c.youtubeClient("SID=abc; HSID=def")

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := yt.HTTPClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	req, err = http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "CONSENT", Value: "YES+"})

	resp, err = yt.HTTPClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{"SID=abc; HSID=def", "CONSENT=YES+; SID=abc; HSID=def"}, got)
}

func TestYoutubeClient_NoCookiesReusesHTTPClient(t *testing.T) {
	base := &http.Client{}
	c := NewClient(base)

	assert.Same(t, base, c.youtubeClient("").HTTPClient)
	assert.NotSame(t, base, c.youtubeClient("a=b").HTTPClient)
	assert.Nil(t, base.Transport)
}
