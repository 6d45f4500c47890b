// Package fetch defines the fetcher contract the planner and extractor
// pipeline depend on, a plain-HTTP implementation (HTTPFetcher), and a
// dry-run implementation backed by a disposable fixture container
// (ContainerFetcher) that exercises the HTTP path without the live internet.
package fetch

import (
	"context"
	"time"

	"github.com/antigravity-dev/specsheet/pkg/model"
)

// Fetcher acquires page data for one source within timeout. HTTPFetcher is
// the plain-HTTP implementation; no headless-browser implementation is
// part of this package.
type Fetcher interface {
	Fetch(ctx context.Context, src model.Source, timeout time.Duration) (model.PageData, error)
}

// FuncFetcher adapts a plain function to the Fetcher interface.
type FuncFetcher func(ctx context.Context, src model.Source, timeout time.Duration) (model.PageData, error)

// Fetch implements Fetcher.
func (f FuncFetcher) Fetch(ctx context.Context, src model.Source, timeout time.Duration) (model.PageData, error) {
	return f(ctx, src, timeout)
}
