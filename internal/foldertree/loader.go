package foldertree

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/taxdesk/taxdesk/internal/constants"
	"github.com/taxdesk/taxdesk/internal/events"
	"github.com/taxdesk/taxdesk/internal/logging"
	"github.com/taxdesk/taxdesk/internal/models"
)

// LoadFailedMessage is what users see when a children fetch fails.
const LoadFailedMessage = "Could not load folder structure"

// ListFunc fetches the folders directly under folderID (RootID for the top level).
type ListFunc func(ctx context.Context, folderID string) ([]models.FolderRecord, error)

// LoadError is returned when a children fetch fails. The node stays unloaded.
type LoadError struct {
	FolderID string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", LoadFailedMessage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// UserMessage is the message shown to users, without the cause.
func (e *LoadError) UserMessage() string { return LoadFailedMessage }

// IsLoadError reports whether err is (or wraps) a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// Loader fetches one level of the tree on demand.
// Concurrent loads of the same folder share a single request.
type Loader struct {
	store *Store
	list  ListFunc

	group    singleflight.Group
	mu       sync.Mutex
	inflight map[string]struct{}
	timeout  time.Duration

	bus    *events.EventBus
	logger *logging.Logger
}

// NewLoader creates a loader that attaches results to store.
func NewLoader(store *Store, list ListFunc, bus *events.EventBus, logger *logging.Logger) *Loader {
	return &Loader{
		store:    store,
		list:     list,
		inflight: make(map[string]struct{}),
		timeout:  constants.APIContextTimeout,
		bus:      bus,
		logger:   logging.OrNop(logger).Child("loader"),
	}
}

// Load fetches and attaches the children of node.
func (l *Loader) Load(ctx context.Context, node *Node) error {
	if node == nil {
		return errors.New("load: nil node")
	}
	return l.LoadID(ctx, node.ID)
}

// LoadRoots performs the initial top-level listing.
func (l *Loader) LoadRoots(ctx context.Context) error {
	return l.LoadID(ctx, RootID)
}

// LoadID fetches and attaches the children of the folder with id. A folder
// that is already loaded is left as is.
//
// The shared request is detached from the caller's cancellation so one
// caller giving up does not fail the others; ctx still bounds how long
// this caller waits.
func (l *Loader) LoadID(ctx context.Context, id string) error {
	gen := l.store.Generation()
	key := fmt.Sprintf("%d/%s", gen, id)

	fetchCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (interface{}, error) {
		// A load that finished between the caller's check and this call
		// already attached the children.
		if l.store.Generation() == gen && l.store.IsLoaded(id) {
			return nil, nil
		}
		return nil, l.fetch(fetchCtx, gen, id)
	})

	select {
	case res := <-ch:
		if res.Shared {
			l.logger.Debug().Str("folder_id", id).Msg("joined in-flight load")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight reports whether a fetch for id is pending.
func (l *Loader) InFlight(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.inflight[id]
	return ok
}

func (l *Loader) fetch(ctx context.Context, gen uint64, id string) error {
	l.mu.Lock()
	l.inflight[id] = struct{}{}
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.inflight, id)
		l.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	records, err := l.list(ctx, id)
	if err != nil {
		loadErr := &LoadError{FolderID: id, Err: err}
		l.logger.Warn().Err(err).Str("folder_id", id).Msg("failed to load folder children")
		l.bus.Publish(&events.FolderEvent{
			BaseEvent: events.NewBase(events.EventFolderLoadFailed),
			FolderID:  id,
			Error:     loadErr,
		})
		return loadErr
	}

	children := NodesFromRecords(records)
	if !l.store.AttachChildrenAt(gen, id, children) {
		// Node vanished or tree was reset while the request was out
		return nil
	}

	l.logger.Debug().
		Str("folder_id", id).
		Int("children", len(children)).
		Dur("elapsed", time.Since(start)).
		Msg("folder children loaded")

	name := ""
	if n := l.store.Find(id); n != nil {
		name = n.Name
	}
	l.bus.Publish(&events.FolderEvent{
		BaseEvent: events.NewBase(events.EventFolderLoaded),
		FolderID:  id,
		Name:      name,
		Children:  len(children),
	})
	return nil
}
