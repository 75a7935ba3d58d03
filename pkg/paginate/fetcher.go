// Package paginate implements the resilient paged-resource fetcher at the
// heart of the SEI proxy.
//
// Upstream listings are only retrievable in fixed-size pages with a reported
// total count, and the upstream throttles or times out on large sweeps. The
// fetcher discovers the total from a cheap first call, pulls the last page
// first, then batches the middle pages with bounded concurrency. Failed
// pages are retried as a group for a fixed number of rounds; a full fetch
// either returns every item in page order or fails with the unresolved page
// numbers — it never silently returns partial data. The partial strategy
// returns only the boundary pages (oldest + newest items) for fast initial
// render, leaving completion to a background task.
package paginate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// PageFunc fetches one page of a resource, returning the page's items and
// the upstream-reported total item count.
type PageFunc[T any] func(ctx context.Context, page, pageSize int) ([]T, int, error)

// ProgressFunc observes fetch progress as (items loaded, total items).
type ProgressFunc func(loaded, total int)

// Config carries the fetch parameters. The zero value gets the reference
// parameterization.
type Config struct {
	// PageSize per upstream call. Small on purpose: large pages make the
	// upstream time out. Default 10.
	PageSize int

	// Batch bounds concurrent page requests. Default 20.
	Batch int

	// Rounds is how many times the set of failed pages is retried as a
	// group before the fetch is declared incomplete. Default 3.
	Rounds int

	// PartialPages is the window size K for partial fetches: first K and
	// last K pages. Default 5.
	PartialPages int

	// PartialThreshold is the page count at or below which a partial fetch
	// degenerates to a full one. Default 10.
	PartialThreshold int

	// Logger for per-page degradations. Defaults to slog.Default.
	Logger *slog.Logger
}

func (config Config) withDefaults() Config {
	if config.PageSize <= 0 {
		config.PageSize = 10
	}
	if config.Batch <= 0 {
		config.Batch = 20
	}
	if config.Rounds <= 0 {
		config.Rounds = 3
	}
	if config.PartialPages <= 0 {
		config.PartialPages = 5
	}
	if config.PartialThreshold <= 0 {
		config.PartialThreshold = 10
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return config
}

// IncompleteError reports a full fetch that could not resolve every page
// within the retry budget.
type IncompleteError struct {
	Total int
	Pages []int
}

func (incompleteErr *IncompleteError) Error() string {
	return fmt.Sprintf("pagination incomplete: %d of %d items unresolved (pages %v)",
		len(incompleteErr.Pages), incompleteErr.Total, incompleteErr.Pages)
}

// FetchAll retrieves every item of a paged resource, in upstream order.
// It returns the complete list or an error; never a partial one.
func FetchAll[T any](ctx context.Context, config Config, fetch PageFunc[T]) ([]T, error) {
	return FetchAllProgress(ctx, config, fetch, nil)
}

// FetchAllProgress is FetchAll with a progress callback, used by the SSE
// streaming endpoint. onProgress may be nil.
func FetchAllProgress[T any](ctx context.Context, config Config, fetch PageFunc[T], onProgress ProgressFunc) ([]T, error) {
	config = config.withDefaults()

	firstPage, totalItems, err := fetch(ctx, 1, config.PageSize)
	if err != nil {
		return nil, fmt.Errorf("discover page 1: %w", err)
	}
	if totalItems == 0 {
		return []T{}, nil
	}
	if onProgress != nil {
		onProgress(len(firstPage), totalItems)
	}

	return fetchRemainder(ctx, config, fetch, firstPage, totalItems, onProgress)
}

// FetchPartial retrieves the boundary pages of a paged resource. When the
// resource is small enough (total pages <= PartialThreshold) it behaves
// exactly like FetchAll and reports partial=false. Otherwise it returns the
// first K and last K pages with partial=true; missing boundary pages degrade
// to fewer items rather than an error.
func FetchPartial[T any](ctx context.Context, config Config, fetch PageFunc[T]) (items []T, totalItems int, partial bool, err error) {
	config = config.withDefaults()

	firstPage, totalItems, err := fetch(ctx, 1, config.PageSize)
	if err != nil {
		return nil, 0, false, fmt.Errorf("discover page 1: %w", err)
	}
	if totalItems == 0 {
		return []T{}, 0, false, nil
	}

	pageCount := totalPages(totalItems, config.PageSize)
	if pageCount <= config.PartialThreshold {
		items, err := fetchRemainder(ctx, config, fetch, firstPage, totalItems, nil)
		if err != nil {
			return nil, 0, false, err
		}
		return items, totalItems, false, nil
	}

	window := config.PartialPages
	wanted := make([]int, 0, 2*window)
	for page := 2; page <= window; page++ {
		wanted = append(wanted, page)
	}
	for page := pageCount - window + 1; page <= pageCount; page++ {
		wanted = append(wanted, page)
	}

	pages := map[int][]T{1: firstPage}
	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(config.Batch)
	for _, page := range wanted {
		group.Go(func() error {
			pageItems, _, pageErr := fetch(groupCtx, page, config.PageSize)
			if pageErr != nil {
				// Best-effort window: a missing boundary page just thins
				// the preview.
				config.Logger.Warn("partial fetch: page failed", "page", page, "error", pageErr)
				return nil
			}
			mu.Lock()
			pages[page] = pageItems
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()
	if err := ctx.Err(); err != nil {
		return nil, 0, false, err
	}

	ordered := make([]int, 0, len(pages))
	for page := range pages {
		ordered = append(ordered, page)
	}
	sort.Ints(ordered)
	for _, page := range ordered {
		items = append(items, pages[page]...)
	}
	return items, totalItems, true, nil
}

// fetchRemainder completes a fetch whose first page is already in hand:
// last page first, middle pages in bounded batches, failed pages retried as
// a group for config.Rounds rounds.
func fetchRemainder[T any](ctx context.Context, config Config, fetch PageFunc[T], firstPage []T, totalItems int, onProgress ProgressFunc) ([]T, error) {
	pageCount := totalPages(totalItems, config.PageSize)
	if pageCount <= 1 {
		return firstPage, nil
	}

	pages := map[int][]T{1: firstPage}
	loaded := len(firstPage)
	var mu sync.Mutex

	// The last page leads the queue: a cheap signal that the far end of the
	// range is reachable before committing to the middle sweep.
	remaining := make([]int, 0, pageCount-1)
	remaining = append(remaining, pageCount)
	for page := 2; page < pageCount; page++ {
		remaining = append(remaining, page)
	}

	for round := 0; round < config.Rounds && len(remaining) > 0; round++ {
		if round > 0 {
			config.Logger.Warn("retrying failed pages", "round", round+1, "pages", len(remaining))
		}

		var failed []int
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(config.Batch)
		for _, page := range remaining {
			group.Go(func() error {
				pageItems, _, pageErr := fetch(groupCtx, page, config.PageSize)

				mu.Lock()
				defer mu.Unlock()
				if pageErr != nil {
					// Single-page failures never abort the sweep; the
					// round loop below enforces completeness.
					config.Logger.Warn("page fetch failed", "page", page, "error", pageErr)
					failed = append(failed, page)
					return nil
				}
				pages[page] = pageItems
				loaded += len(pageItems)
				if onProgress != nil {
					onProgress(loaded, totalItems)
				}
				return nil
			})
		}
		_ = group.Wait()
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sort.Ints(failed)
		remaining = failed
	}

	if len(remaining) > 0 {
		return nil, &IncompleteError{Total: totalItems, Pages: remaining}
	}

	// Concatenate in ascending page order, never completion order.
	items := make([]T, 0, totalItems)
	for page := 1; page <= pageCount; page++ {
		items = append(items, pages[page]...)
	}
	return items, nil
}

func totalPages(totalItems, pageSize int) int {
	return (totalItems + pageSize - 1) / pageSize
}
