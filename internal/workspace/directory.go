// Package workspace maps identities to their remote storage containers.
package workspace

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/fuomag9/paperdrive/internal/errs"
	"github.com/fuomag9/paperdrive/internal/logger"
	"github.com/fuomag9/paperdrive/internal/models"
	"github.com/fuomag9/paperdrive/internal/storage"
)

// Directory resolves identity <-> workspace id, creating containers lazily.
type Directory struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewDirectory creates a workspace directory
func NewDirectory(db *gorm.DB, log *logger.Logger) *Directory {
	return &Directory{db: db, log: log.With("component", "workspace")}
}

// Resolve returns the workspace for identity, creating the container through
// provider on first use. Creation is not exactly-once: a crash between the
// remote create and the mapping insert leaves an orphaned container behind.
func (d *Directory) Resolve(ctx context.Context, identity string, provider storage.Provider) (string, error) {
	if identity == "" {
		return "", fmt.Errorf("%w: empty identity", errs.ErrValidation)
	}

	id, err := d.lookup(ctx, "identity = ?", identity)
	if err == nil {
		return id.WorkspaceID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to load workspace mapping: %w", err)
	}

	workspaceID, err := provider.CreateContainer(ctx, identity)
	if err != nil {
		return "", fmt.Errorf("create workspace for %s: %w", identity, err)
	}

	mapping := models.WorkspaceMapping{Identity: identity, WorkspaceID: workspaceID}
	if err := d.db.WithContext(ctx).Create(&mapping).Error; err != nil {
		// A concurrent request may have won the insert; its container is the one we keep.
		if existing, lerr := d.lookup(ctx, "identity = ?", identity); lerr == nil {
			d.log.Warn("Workspace created concurrently, orphaning duplicate container",
				"identity", identity, "kept", existing.WorkspaceID, "orphaned", workspaceID)
			return existing.WorkspaceID, nil
		}
		return "", fmt.Errorf("failed to save workspace mapping: %w", err)
	}

	d.log.Info("Workspace created", "identity", identity, "workspace_id", workspaceID)
	return workspaceID, nil
}

// ResolveIdentity is the reverse lookup used by requests that only carry a workspace id.
func (d *Directory) ResolveIdentity(ctx context.Context, workspaceID string) (string, error) {
	m, err := d.lookup(ctx, "workspace_id = ?", workspaceID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: %s", errs.ErrWorkspaceNotFound, workspaceID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load workspace mapping: %w", err)
	}
	return m.Identity, nil
}

func (d *Directory) lookup(ctx context.Context, query string, arg string) (*models.WorkspaceMapping, error) {
	var m models.WorkspaceMapping
	if err := d.db.WithContext(ctx).Where(query, arg).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
