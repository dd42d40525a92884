package foldertree

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/taxdesk/taxdesk/internal/constants"
)

// ExpandToDepth loads and expands the tree level by level down to depth
// (1 = top-level folders only). Folders that fail to load are reported in the
// returned error but do not stop the crawl. onLoaded, when set, is called
// after each folder load finishes.
func (c *Controller) ExpandToDepth(ctx context.Context, depth int, onLoaded func(id string)) error {
	if depth <= 0 {
		depth = constants.DefaultTreeDepth
	}

	if !c.store.IsLoaded(RootID) {
		if err := c.loader.LoadRoots(ctx); err != nil {
			return err
		}
		if onLoaded != nil {
			onLoaded(RootID)
		}
	}

	var (
		mu       sync.Mutex
		failures []error
	)

	level := c.store.Root().Children
	for d := 1; d < depth && len(level) > 0; d++ {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(constants.TreeCrawlConcurrency)

		for _, n := range level {
			id := n.ID
			g.Go(func() error {
				err := c.Expand(gctx, id)
				if onLoaded != nil {
					onLoaded(id)
				}
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					mu.Lock()
					failures = append(failures, err)
					mu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		var next []*Node
		for _, n := range level {
			if fresh := c.store.Find(n.ID); fresh != nil && fresh.Loaded {
				next = append(next, fresh.Children...)
			}
		}
		level = next
	}

	return errors.Join(failures...)
}
