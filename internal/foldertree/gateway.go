package foldertree

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/taxdesk/taxdesk/internal/constants"
	"github.com/taxdesk/taxdesk/internal/events"
	"github.com/taxdesk/taxdesk/internal/logging"
	"github.com/taxdesk/taxdesk/internal/models"
	"github.com/taxdesk/taxdesk/internal/util/sanitize"
)

// CreateFunc creates a folder on the portal.
type CreateFunc func(ctx context.Context, req models.CreateFolderRequest) (*models.FolderRecord, error)

// ErrNoFolderID is returned when the portal accepts a create request but
// answers without a folder id.
var ErrNoFolderID = errors.New("portal returned no folder id")

// ValidationError reports input rejected before any request is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Gateway creates folders and places the result in the store.
type Gateway struct {
	store  *Store
	create CreateFunc

	bus    *events.EventBus
	logger *logging.Logger
}

// NewGateway creates a gateway writing into store.
func NewGateway(store *Store, create CreateFunc, bus *events.EventBus, logger *logging.Logger) *Gateway {
	return &Gateway{
		store:  store,
		create: create,
		bus:    bus,
		logger: logging.OrNop(logger).Child("gateway"),
	}
}

// CreateFolder creates a folder named name under parentID (RootID for the
// top level). The new node is unloaded with no children. Server errors are
// returned as received and leave the store untouched. Not idempotent.
func (g *Gateway) CreateFolder(ctx context.Context, name, description, parentID string) (*Node, error) {
	name = sanitize.Name(name)
	description = sanitize.Description(description)

	if err := validateFolderInput(name, description); err != nil {
		return nil, err
	}

	req := models.CreateFolderRequest{
		Title:       name,
		Description: description,
		ParentID:    models.FlexID(parentID),
	}

	rec, err := g.create(ctx, req)
	if err == nil && (rec == nil || rec.ID == "") {
		err = ErrNoFolderID
	}
	if err != nil {
		g.logger.Warn().Err(err).Str("name", name).Str("parent_id", parentID).Msg("folder create failed")
		g.bus.Publish(&events.FolderEvent{
			BaseEvent: events.NewBase(events.EventFolderCreateFailed),
			ParentID:  parentID,
			Name:      name,
			Error:     err,
		})
		return nil, err
	}

	node := NodeFromRecord(*rec)
	node.Loaded = false
	node.Children = nil
	if node.Name == "" {
		node.Name = name
	}
	if node.Description == "" {
		node.Description = description
	}

	placed := g.store.InsertNode(parentID, node)
	if stored := g.store.Find(node.ID); stored != nil {
		node = stored
	} else {
		node.ParentID = placed
	}

	g.logger.Info().Str("folder_id", node.ID).Str("name", node.Name).Str("parent_id", placed).Msg("folder created")
	g.bus.Publish(&events.FolderEvent{
		BaseEvent: events.NewBase(events.EventFolderCreated),
		FolderID:  node.ID,
		ParentID:  placed,
		Name:      node.Name,
	})
	return node, nil
}

func validateFolderInput(name, description string) error {
	if err := validation.Validate(name,
		validation.Required.Error("folder name is required"),
		validation.RuneLength(1, constants.MaxFolderNameLength).
			Error(fmt.Sprintf("folder name must be at most %d characters", constants.MaxFolderNameLength)),
	); err != nil {
		return &ValidationError{Field: "name", Message: err.Error()}
	}

	if err := validation.Validate(description,
		validation.RuneLength(0, constants.MaxFolderDescriptionLength).
			Error(fmt.Sprintf("description must be at most %d characters", constants.MaxFolderDescriptionLength)),
	); err != nil {
		return &ValidationError{Field: "description", Message: err.Error()}
	}
	return nil
}
