package app

import (
	"context"

	"yaftp/internal/catalog"
	"yaftp/internal/transport"
)

// Fetcher lists and downloads files with the reliable UDP transport
type Fetcher interface {
	List(ctx context.Context) (*catalog.Catalog, error)
	Download(ctx context.Context, name, destDir string) (*transport.ReceiveResult, error)
}

// RangeFetcher lists and downloads files over TCP in parallel ranges
type RangeFetcher interface {
	List(ctx context.Context) (*catalog.Catalog, error)
	Download(ctx context.Context, name string, size int64, destDir string) (string, error)
}

// NameSource streams names the user asked for
type NameSource interface {
	Subscribe(ctx context.Context) (<-chan string, error)
}

// Display shows listings and messages to the user
type Display interface {
	ShowMessage(message string)
	ShowListing(listing *catalog.Catalog)
}
