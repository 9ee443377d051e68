package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"yaftp/internal/catalog"
)

var (
	ErrNothingToDownload = errors.New("no file names given and not watching the input file")
	ErrDownloadsFailed   = errors.New("some downloads failed")
	ErrNotInCatalog      = errors.New("file is not offered by the server")
	ErrNotConfigured     = errors.New("client app is missing a collaborator")
)

// ClientOptions configures one client run
type ClientOptions struct {
	Names   []string
	DestDir string
	// Watch keeps running and downloads every name added to the input file
	Watch bool
	// TCP downloads with the parallel range client instead of UDP
	TCP bool
}

// ClientApp lists the server catalog and downloads the requested files
type ClientApp struct {
	udp     Fetcher
	tcp     RangeFetcher
	names   NameSource
	display Display
	log     *logrus.Entry

	listing *catalog.Catalog
}

// NewClientApp creates a client application. tcp and names may be nil when
// the corresponding options are never used.
func NewClientApp(udp Fetcher, tcp RangeFetcher, names NameSource, display Display, log *logrus.Entry) *ClientApp {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ClientApp{
		udp:     udp,
		tcp:     tcp,
		names:   names,
		display: display,
		log:     log.WithField("component", "client-app"),
	}
}

// List fetches and shows the catalog
func (a *ClientApp) List(ctx context.Context, useTCP bool) error {
	if useTCP && a.tcp == nil {
		return fmt.Errorf("%w: range client", ErrNotConfigured)
	}
	listing, err := a.refresh(ctx, useTCP)
	if err != nil {
		return err
	}
	a.display.ShowListing(listing)
	return nil
}

// Run downloads opts.Names and, when watching, every name that shows up in
// the input file afterwards. Each name is downloaded at most once per run.
func (a *ClientApp) Run(ctx context.Context, opts *ClientOptions) error {
	if len(opts.Names) == 0 && !opts.Watch {
		return ErrNothingToDownload
	}
	if opts.TCP && a.tcp == nil {
		return fmt.Errorf("%w: range client", ErrNotConfigured)
	}
	if opts.Watch && a.names == nil {
		return fmt.Errorf("%w: input watcher", ErrNotConfigured)
	}

	if err := a.List(ctx, opts.TCP); err != nil {
		return err
	}

	done := make(map[string]struct{})
	failed := 0
	get := func(name string) {
		if _, ok := done[name]; ok {
			return
		}
		done[name] = struct{}{}
		if err := a.download(ctx, name, opts); err != nil {
			failed++
		}
	}

	for _, name := range opts.Names {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		get(name)
	}

	if opts.Watch {
		names, err := a.names.Subscribe(ctx)
		if err != nil {
			return err
		}
		a.display.ShowMessage("Waiting for new names in the input file, press Ctrl+C to exit")
		for name := range names {
			get(name)
		}
		// only cancellation ends a watch; that is not a failure
		return nil
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrDownloadsFailed, failed, len(done))
	}
	return nil
}

func (a *ClientApp) download(ctx context.Context, name string, opts *ClientOptions) error {
	logger := a.log.WithFields(logrus.Fields{
		"function": "download",
		"name":     name,
		"tcp":      opts.TCP,
	})

	var err error
	if opts.TCP {
		err = a.downloadRange(ctx, name, opts.DestDir)
	} else {
		_, err = a.udp.Download(ctx, name, opts.DestDir)
	}
	if err != nil {
		logger.WithField("error", err).Error("Download failed")
		a.display.ShowMessage(fmt.Sprintf("Failed to download %s: %v", name, err))
		return err
	}
	return nil
}

// downloadRange needs the file size up front; the listing is refreshed once
// when the name is unknown
func (a *ClientApp) downloadRange(ctx context.Context, name, destDir string) error {
	entry, ok := a.listing.Lookup(name)
	if !ok {
		listing, err := a.refresh(ctx, true)
		if err != nil {
			return err
		}
		if entry, ok = listing.Lookup(name); !ok {
			return fmt.Errorf("%w: %s", ErrNotInCatalog, name)
		}
	}

	path, err := a.tcp.Download(ctx, name, int64(entry.Size), destDir)
	if err != nil {
		return err
	}
	a.display.ShowMessage(fmt.Sprintf("Saved %s", path))
	return nil
}

func (a *ClientApp) refresh(ctx context.Context, useTCP bool) (*catalog.Catalog, error) {
	var (
		listing *catalog.Catalog
		err     error
	)
	if useTCP {
		listing, err = a.tcp.List(ctx)
	} else {
		listing, err = a.udp.List(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch file list: %w", err)
	}
	a.listing = listing
	return listing, nil
}
