package app

import (
	"context"
	"fmt"
	"strings"

	"personapost/internal/util"
	"personapost/pkg/domain"
)

// PromptInput is the admin payload for creating or replacing a template.
type PromptInput struct {
	Name   string
	Type   string
	Prompt string
}

func (in PromptInput) normalize() (domain.Prompt, error) {
	name := strings.TrimSpace(in.Name)
	typ := domain.PromptType(strings.ToLower(strings.TrimSpace(in.Type)))
	if typ == "" {
		typ = domain.PromptUser
	}
	if typ != domain.PromptUser && typ != domain.PromptSystem {
		return domain.Prompt{}, domain.Validationf("prompt type must be %q or %q", domain.PromptSystem, domain.PromptUser)
	}
	switch typ {
	case domain.PromptSystem:
		// System prompts are sent verbatim.
		if name == "" || strings.TrimSpace(in.Prompt) == "" {
			return domain.Prompt{}, domain.Validationf("prompt name and text required")
		}
		if vars := domain.Placeholders(in.Prompt); len(vars) > 0 {
			return domain.Prompt{}, domain.Validationf("system prompt %q takes no variables, found ${%s}", name, vars[0])
		}
	default:
		if err := domain.ValidatePromptTemplate(name, in.Prompt); err != nil {
			return domain.Prompt{}, err
		}
	}
	return domain.Prompt{Name: name, Type: typ, Prompt: in.Prompt}, nil
}

// ListPrompts returns every stored template.
func (a *App) ListPrompts(ctx context.Context) ([]domain.Prompt, error) {
	return a.store.ListPrompts(ctx)
}

// GetPromptByName returns the template stored for (name, type).
func (a *App) GetPromptByName(ctx context.Context, name string, typ domain.PromptType) (domain.Prompt, error) {
	p, ok, err := a.store.GetPromptByName(ctx, name, typ)
	if err != nil {
		return domain.Prompt{}, fmt.Errorf("load prompt: %w", err)
	}
	if !ok {
		return domain.Prompt{}, domain.NotFoundf("prompt %s/%s", name, typ)
	}
	return p, nil
}

// CreatePrompt validates and stores a new template. (name, type) is unique.
func (a *App) CreatePrompt(ctx context.Context, in PromptInput) (domain.Prompt, error) {
	p, err := in.normalize()
	if err != nil {
		return domain.Prompt{}, err
	}
	_, exists, err := a.store.GetPromptByName(ctx, p.Name, p.Type)
	if err != nil {
		return domain.Prompt{}, fmt.Errorf("load prompt: %w", err)
	}
	if exists {
		return domain.Prompt{}, domain.Validationf("prompt %s/%s already exists", p.Name, p.Type)
	}
	now := a.clock()
	p.ID = util.NewID()
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := a.store.SavePrompt(ctx, p); err != nil {
		return domain.Prompt{}, fmt.Errorf("save prompt: %w", err)
	}
	return p, nil
}

// UpdatePrompt replaces the template with id.
func (a *App) UpdatePrompt(ctx context.Context, id string, in PromptInput) (domain.Prompt, error) {
	cur, ok, err := a.store.GetPrompt(ctx, id)
	if err != nil {
		return domain.Prompt{}, fmt.Errorf("load prompt: %w", err)
	}
	if !ok {
		return domain.Prompt{}, domain.NotFoundf("prompt %s", id)
	}
	if strings.TrimSpace(in.Name) == "" {
		in.Name = cur.Name
	}
	if strings.TrimSpace(in.Type) == "" {
		in.Type = string(cur.Type)
	}
	p, err := in.normalize()
	if err != nil {
		return domain.Prompt{}, err
	}
	if p.Name != cur.Name || p.Type != cur.Type {
		other, clash, err := a.store.GetPromptByName(ctx, p.Name, p.Type)
		if err != nil {
			return domain.Prompt{}, fmt.Errorf("load prompt: %w", err)
		}
		if clash && other.ID != cur.ID {
			return domain.Prompt{}, domain.Validationf("prompt %s/%s already exists", p.Name, p.Type)
		}
	}
	p.ID = cur.ID
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = a.clock()
	if err := a.store.SavePrompt(ctx, p); err != nil {
		return domain.Prompt{}, fmt.Errorf("save prompt: %w", err)
	}
	return p, nil
}

// DeletePrompt removes a template; generation falls back to the built-in text.
func (a *App) DeletePrompt(ctx context.Context, id string) error {
	deleted, err := a.store.DeletePrompt(ctx, id)
	if err != nil {
		return fmt.Errorf("delete prompt: %w", err)
	}
	if !deleted {
		return domain.NotFoundf("prompt %s", id)
	}
	return nil
}
