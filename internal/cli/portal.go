package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/taxdesk/taxdesk/internal/api"
	"github.com/taxdesk/taxdesk/internal/auth"
	"github.com/taxdesk/taxdesk/internal/config"
	"github.com/taxdesk/taxdesk/internal/events"
	"github.com/taxdesk/taxdesk/internal/foldertree"
	"github.com/taxdesk/taxdesk/internal/http"
	"github.com/taxdesk/taxdesk/internal/logging"
	"github.com/taxdesk/taxdesk/internal/models"
	"github.com/taxdesk/taxdesk/internal/upload"
)

// portal wires the API client to one client's folder tree.
type portal struct {
	cfg      *config.Config
	client   *api.Client
	clientID string
	bus      *events.EventBus
	store    *foldertree.Store
	loader   *foldertree.Loader
	tree     *foldertree.Controller
	gateway  *foldertree.Gateway
	logger   *logging.Logger
}

// connect loads configuration, prompts for a proxy password when one is
// needed, and returns a portal for the --client-id (or configured) client.
func connect() (*portal, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if http.NeedsProxyPassword(cfg) {
		pw, err := stdinPrompter().Secret(fmt.Sprintf("Proxy password for %s", cfg.ProxyUser))
		if err != nil {
			return nil, err
		}
		cfg.ProxyPassword = pw
	}
	return newPortal(cfg, GetLogger())
}

func newPortal(cfg *config.Config, logger *logging.Logger) (*portal, error) {
	if err := cfg.ValidateForConnection(); err != nil {
		return nil, err
	}
	logger = logging.OrNop(logger)
	if warning := auth.ExpiryWarning(cfg.Token, time.Now()); warning != "" {
		logger.Warn().Msg(warning)
	}

	client, err := api.NewClient(cfg, api.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	bus := events.NewEventBus(0)
	p := &portal{
		cfg:      cfg,
		client:   client,
		clientID: cfg.ClientID,
		bus:      bus,
		logger:   logger,
	}
	p.store = foldertree.NewStore(bus, logger)
	p.loader = foldertree.NewLoader(p.store, p.listFolders, bus, logger)
	p.tree = foldertree.NewController(p.store, p.loader, bus, logger)
	p.gateway = foldertree.NewGateway(p.store, p.createFolder, bus, logger)
	return p, nil
}

func (p *portal) listFolders(ctx context.Context, folderID string) ([]models.FolderRecord, error) {
	listing, err := p.listing(ctx, folderID)
	if err != nil {
		return nil, err
	}
	return listing.Folders, nil
}

// listing fetches one level together with the portal's totals for it.
func (p *portal) listing(ctx context.Context, folderID string) (*models.FolderListing, error) {
	return p.client.ListFolders(ctx, folderID, p.clientID)
}

func (p *portal) createFolder(ctx context.Context, req models.CreateFolderRequest) (*models.FolderRecord, error) {
	if req.ClientID == "" && p.clientID != "" {
		req.ClientID = models.FlexID(p.clientID)
	}
	return p.client.CreateFolder(ctx, req)
}

// newUploadSession returns a staging session posting to this portal.
// Previews are written to the configured preview directory when withPreviews is set.
func (p *portal) newUploadSession(withPreviews bool) *upload.Session {
	var previews upload.PreviewProvider
	if withPreviews {
		previews = upload.NewTempPreviews(p.cfg.ResolvedPreviewDir())
	}
	return upload.NewSession(p.client.UploadDocument, upload.OptionsFromConfig(p.cfg), previews, p.bus, p.logger)
}

// ensureLoaded loads the children of id unless they already are.
func (p *portal) ensureLoaded(ctx context.Context, id string) error {
	if p.store.IsLoaded(id) {
		return nil
	}
	return p.loader.LoadID(ctx, id)
}

// resolvePath walks a " / " separated folder path from the top level,
// loading each level on the way, and returns the matching folder.
// Names match exactly first, then case-insensitively.
func (p *portal) resolvePath(ctx context.Context, path string) (*foldertree.Node, error) {
	names := foldertree.SplitPath(path)
	if len(names) == 0 {
		return nil, fmt.Errorf("empty folder path")
	}

	current := foldertree.RootID
	var found *foldertree.Node
	for i, name := range names {
		if err := p.ensureLoaded(ctx, current); err != nil {
			return nil, err
		}
		parent := p.store.Find(current)
		found = childNamed(parent, name)
		if found == nil {
			where := "the top level"
			if i > 0 {
				where = fmt.Sprintf("%q", foldertree.JoinPath(names[:i]...))
			}
			return nil, fmt.Errorf("%w: no folder named %q under %s", foldertree.ErrFolderNotFound, name, where)
		}
		current = found.ID
	}
	return found, nil
}

func childNamed(parent *foldertree.Node, name string) *foldertree.Node {
	if parent == nil {
		return nil
	}
	for _, c := range parent.Children {
		if c.Name == name {
			return c
		}
	}
	for _, c := range parent.Children {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// Close releases the event bus.
func (p *portal) Close() {
	p.bus.Close()
}
