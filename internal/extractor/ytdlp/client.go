package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/media_fetcher/internal/extractor"
	"github.com/italolelis/media_fetcher/internal/logctx"
	"github.com/lrstanley/go-ytdlp"
)

const (
	Name = "ytdlp"

	progressFrequency = 5 * time.Second
)

// ErrNoInfo is returned when yt-dlp succeeded without printing an info document.
var ErrNoInfo = errors.New("yt-dlp printed no info document")

// Client drives the yt-dlp executable. Every call is a separate process;
// nothing is shared between calls.
type Client struct {
	binaryPath string
	extraArgs  []string
}

// NewClient creates a client running binaryPath with extraArgs appended to
// every invocation.
func NewClient(binaryPath string, extraArgs []string) *Client {
	if binaryPath == "" {
		binaryPath = "yt-dlp"
	}

	return &Client{
		binaryPath: binaryPath,
		extraArgs:  extraArgs,
	}
}

// CommandError is returned when yt-dlp exits unsuccessfully.
type CommandError struct {
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if msg := lastErrorLine(e.Stderr); msg != "" {
		return fmt.Sprintf("yt-dlp failed: %s", msg)
	}

	return fmt.Sprintf("yt-dlp failed: %v", e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExtractInfo runs yt-dlp in metadata-only mode.
func (c *Client) ExtractInfo(ctx context.Context, url string) (*extractor.Info, error) {
	return c.run(ctx, c.extractCommand(), url)
}

// Download runs yt-dlp in download mode. The info document is printed by
// yt-dlp itself once extraction succeeded, so the title comes from the same
// run that wrote the file.
func (c *Client) Download(ctx context.Context, url string, opts extractor.DownloadOptions) (*extractor.Info, error) {
	logger := logctx.LoggerFromContext(ctx).With("extractor", Name)

	cmd := c.downloadCommand(opts).
		ProgressFunc(progressFrequency, func(update ytdlp.ProgressUpdate) {
			logger.DebugContext(ctx, "download progress",
				"target", update.Filename,
				"status", update.Status,
				"downloaded", humanize.Bytes(uint64(max(update.DownloadedBytes, 0))),
				"percent", update.PercentString(),
			)
		})

	return c.run(ctx, cmd, url)
}

func (c *Client) extractCommand() *ytdlp.Command {
	return ytdlp.New().
		SetExecutable(c.binaryPath).
		DumpJSON().
		SkipDownload().
		NoPlaylist().
		NoWarnings()
}

func (c *Client) downloadCommand(opts extractor.DownloadOptions) *ytdlp.Command {
	template := opts.OutputTemplate
	if template == "" {
		template = extractor.DefaultOutputTemplate
	}

	cmd := ytdlp.New().
		SetExecutable(c.binaryPath).
		NoSimulate().
		DumpJSON().
		NoPlaylist().
		NoWarnings().
		Output(filepath.Join(opts.OutputDir, template))

	if opts.Format != "" {
		cmd.Format(opts.Format)
	}

	if opts.Cookies != "" {
		cmd.AddHeaders("Cookie:" + opts.Cookies)
	}

	return cmd
}

// args are the positional arguments following the generated flags.
func (c *Client) args(url string) []string {
	return slices.Concat(c.extraArgs, []string{"--", url})
}

func (c *Client) run(ctx context.Context, cmd *ytdlp.Command, url string) (*extractor.Info, error) {
	logger := logctx.LoggerFromContext(ctx).With("extractor", Name)
	args := c.args(url)

	if logger.Enabled(ctx, slog.LevelDebug) {
		logger.DebugContext(ctx, "running yt-dlp",
			"binary", c.binaryPath,
			"args", redactArgs(cmd.BuildCommand(ctx, args...).Args[1:]),
		)
	}

	result, err := cmd.Run(ctx, args...)
	if err != nil {
		var stderr string
		if result != nil {
			stderr = result.Stderr
		}

		logger.ErrorContext(ctx, "yt-dlp exited with error", "err", lastErrorLine(stderr), "exit_code", exitCode(result))

		return nil, &CommandError{Stderr: stderr, Err: err}
	}

	infos, err := result.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to parse yt-dlp output: %w", err)
	}

	if len(infos) == 0 {
		return nil, ErrNoInfo
	}

	return mapInfo(infos[0]), nil
}

func mapInfo(raw *ytdlp.ExtractedInfo) *extractor.Info {
	info := &extractor.Info{
		ID:       raw.ID,
		Title:    deref(raw.Title),
		Ext:      raw.Extension,
		Filename: deref(raw.Filename),
		Formats:  make([]extractor.Format, 0, len(raw.Formats)),
	}

	if info.Filename == "" {
		info.Filename = deref(raw.AltFilename)
	}

	for _, f := range raw.Formats {
		if f == nil {
			continue
		}

		format := extractor.Format{
			ID:   deref(f.FormatID),
			Ext:  deref(f.Extension),
			Note: deref(f.FormatNote),
		}

		if f.Height != nil {
			h := int(*f.Height)
			format.Height = &h
		}

		info.Formats = append(info.Formats, format)
	}

	return info
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

func exitCode(result *ytdlp.Result) int {
	if result == nil {
		return -1
	}

	return result.ExitCode
}

// redactArgs hides the cookie header value from logs.
func redactArgs(args []string) []string {
	redacted := make([]string, len(args))
	copy(redacted, args)

	for i := 1; i < len(redacted); i++ {
		switch redacted[i-1] {
		case "--add-header", "--add-headers":
			if strings.HasPrefix(strings.ToLower(redacted[i]), "cookie:") {
				redacted[i] = "Cookie:<redacted>"
			}
		}
	}

	return redacted
}

// lastErrorLine returns the last "ERROR:" line yt-dlp wrote to stderr.
func lastErrorLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); strings.HasPrefix(line, "ERROR:") {
			return line
		}
	}

	return ""
}
