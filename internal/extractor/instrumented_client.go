package extractor

import (
	"context"

	"github.com/italolelis/media_fetcher/internal/telemetry"
)

// InstrumentedClient wraps a Client with telemetry.
type InstrumentedClient struct {
	client    Client
	telemetry *telemetry.Telemetry
	name      string
}

// NewInstrumentedClient creates a new instrumented extraction client.
func NewInstrumentedClient(client Client, tel *telemetry.Telemetry, name string) *InstrumentedClient {
	return &InstrumentedClient{
		client:    client,
		telemetry: tel,
		name:      name,
	}
}

// ExtractInfo extracts metadata with telemetry.
func (c *InstrumentedClient) ExtractInfo(ctx context.Context, url string) (*Info, error) {
	var result *Info

	var err error

	instrumentedErr := c.telemetry.InstrumentExtractorOperation(ctx, c.name, "extract_info", func(ctx context.Context) error {
		result, err = c.client.ExtractInfo(ctx, url)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// Download downloads with telemetry.
func (c *InstrumentedClient) Download(ctx context.Context, url string, opts DownloadOptions) (*Info, error) {
	var result *Info

	var err error

	instrumentedErr := c.telemetry.InstrumentExtractorOperation(ctx, c.name, "download", func(ctx context.Context) error {
		result, err = c.client.Download(ctx, url, opts)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}
