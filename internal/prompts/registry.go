package prompts

import (
	"context"
	"fmt"

	"podship/internal/services"
	"podship/internal/store"
)

// Registry loads templates from disk and tracks their registered versions
// in the store.
type Registry struct {
	templatesDir string
	store        *store.Store
}

// NewRegistry returns a Registry rooted at templatesDir and backed by st.
func NewRegistry(templatesDir string, st *store.Store) *Registry {
	return &Registry{templatesDir: templatesDir, store: st}
}

// LoadTemplate loads a template by name from disk.
func (r *Registry) LoadTemplate(name string) (*Template, error) {
	return LoadTemplate(r.templatesDir, name)
}

// RegisterVersion computes the body hash of tmpl and returns the existing
// PromptVersion record if one with the same (name, content_hash) exists;
// otherwise it inserts a new record with version = max+1, marking it
// default only if it is the first version ever registered for that name
//. Idempotent under repeated calls on an unchanged body.
func (r *Registry) RegisterVersion(ctx context.Context, tmpl *Template) (*store.PromptVersion, error) {
	hash := tmpl.ContentHash()

	existing, err := r.store.GetPromptVersionByHash(ctx, tmpl.Name, hash)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "prompts", "register_version", tmpl.Name, err)
	}
	if existing != nil {
		return existing, nil
	}

	maxVersion, err := r.store.MaxPromptVersion(ctx, tmpl.Name)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "prompts", "register_version", tmpl.Name, err)
	}
	isFirst := maxVersion == 0

	pv := &store.PromptVersion{
		Name:        tmpl.Name,
		Version:     maxVersion + 1,
		ContentHash: hash,
		FilePath:    tmpl.FilePath,
		ModelID:     tmpl.Frontmatter.Model,
		Temperature: tmpl.Frontmatter.Temperature,
		MaxTokens:   tmpl.Frontmatter.MaxTokens,
		Notes:       tmpl.Frontmatter.Notes,
	}
	id, err := r.store.InsertPromptVersion(ctx, pv, isFirst)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "prompts", "register_version", tmpl.Name, err)
	}
	pv.ID = id
	pv.IsDefault = isFirst
	return pv, nil
}

// GetDefault returns the unique is_default=true record for name, failing
// with services.ErrNotFound if none is registered.
func (r *Registry) GetDefault(ctx context.Context, name string) (*store.PromptVersion, error) {
	pv, err := r.store.GetDefaultPromptVersion(ctx, name)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "prompts", "get_default", name, err)
	}
	if pv == nil {
		return nil, services.Wrap(services.ErrNotFound, "prompts", "get_default", fmt.Sprintf("no default prompt version for %q", name), nil)
	}
	return pv, nil
}

// PromoteToDefault clears is_default for every version of name and sets it
// for versionID, inside one transaction.
func (r *Registry) PromoteToDefault(ctx context.Context, name string, versionID int64) error {
	if err := r.store.PromoteToDefault(ctx, name, versionID); err != nil {
		return services.Wrap(services.ErrNotFound, "prompts", "promote_to_default", fmt.Sprintf("%s#%d", name, versionID), err)
	}
	return nil
}

// GetHistory returns every registered version for name, newest first.
func (r *Registry) GetHistory(ctx context.Context, name string) ([]*store.PromptVersion, error) {
	versions, err := r.store.GetPromptHistory(ctx, name)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "prompts", "get_history", name, err)
	}
	return versions, nil
}
