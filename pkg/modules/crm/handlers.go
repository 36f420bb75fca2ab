package crm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/quantumnode/gateway/pkg/command"
	"github.com/quantumnode/gateway/pkg/domain"
	"github.com/quantumnode/gateway/pkg/storage"
)

type attachProfileInput struct {
	CustomerID string `mapstructure:"customerId"`
	Email      string `mapstructure:"email"`
	Name       string `mapstructure:"name"`
	Phone      string `mapstructure:"phone"`
	Company    string `mapstructure:"company"`
}

// attachCustomerProfile creates the profile or refreshes its contact fields,
// keeping existing tags.
func (m *Module) attachCustomerProfile(ctx context.Context, p command.Payload) (command.Result, error) {
	var in attachProfileInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode attachCustomerProfile: %w", err)
	}
	if res, failed := command.Require().
		Field("customerId", in.CustomerID != "").
		Field("email", in.Email != "").
		Failed(); failed {
		return res, nil
	}

	now := m.now().UTC()
	profile := domain.Profile{Tags: []string{}, CreatedAt: now}
	existing, err := m.store.Profiles.Get(ctx, in.CustomerID)
	switch {
	case err == nil:
		profile = existing
	case !errors.Is(err, storage.ErrNotFound):
		return command.Result{}, err
	}

	profile.CustomerID = in.CustomerID
	profile.Email = in.Email
	profile.Name = in.Name
	if profile.Name == "" {
		profile.Name = "Unknown"
	}
	profile.Phone = optional(in.Phone)
	profile.Company = optional(in.Company)
	profile.UpdatedAt = now

	if err := m.store.Profiles.Put(ctx, profile.CustomerID, profile); err != nil {
		return command.Result{}, err
	}
	return command.OK(map[string]any{"profile": profile}), nil
}

// updateCustomerProfile merges the supplied fields into the profile. Keys
// without a dedicated profile field are kept under extra.
func (m *Module) updateCustomerProfile(ctx context.Context, p command.Payload) (command.Result, error) {
	var in attachProfileInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode updateCustomerProfile: %w", err)
	}
	if in.CustomerID == "" {
		return command.MissingField("customerId"), nil
	}

	extra := p.Without("customerId", "email", "name", "phone", "company", "tags")
	profile, err := m.store.Profiles.Update(ctx, in.CustomerID, func(pr *domain.Profile) error {
		if in.Email != "" {
			pr.Email = in.Email
		}
		if in.Name != "" {
			pr.Name = in.Name
		}
		if in.Phone != "" {
			pr.Phone = optional(in.Phone)
		}
		if in.Company != "" {
			pr.Company = optional(in.Company)
		}
		if len(extra) > 0 {
			if pr.Extra == nil {
				pr.Extra = make(map[string]any, len(extra))
			}
			for k, v := range extra {
				pr.Extra[k] = v
			}
		}
		pr.UpdatedAt = m.now().UTC()
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return command.NotFound(map[string]any{"customerId": in.CustomerID}), nil
	}
	if err != nil {
		return command.Result{}, err
	}
	return command.OK(map[string]any{"profile": profile}), nil
}

type tagInput struct {
	CustomerID string `mapstructure:"customerId"`
	Tag        string `mapstructure:"tag"`
}

func (m *Module) addTagToCustomer(ctx context.Context, p command.Payload) (command.Result, error) {
	var in tagInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode addTagToCustomer: %w", err)
	}
	if res, failed := command.Require().
		Field("customerId", in.CustomerID != "").
		Field("tag", in.Tag != "").
		Failed(); failed {
		return res, nil
	}

	profile, err := m.store.Profiles.Update(ctx, in.CustomerID, func(pr *domain.Profile) error {
		if !slices.Contains(pr.Tags, in.Tag) {
			pr.Tags = append(pr.Tags, in.Tag)
		}
		pr.UpdatedAt = m.now().UTC()
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return command.NotFound(map[string]any{"customerId": in.CustomerID}), nil
	}
	if err != nil {
		return command.Result{}, err
	}
	return command.OK(map[string]any{
		"customerId": profile.CustomerID,
		"tagAdded":   in.Tag,
		"tags":       profile.Tags,
		"updatedAt":  profile.UpdatedAt,
	}), nil
}

type interactionInput struct {
	CustomerID string `mapstructure:"customerId"`
	Channel    string `mapstructure:"channel"`
	Subject    string `mapstructure:"subject"`
	Message    string `mapstructure:"message"`
	Agent      string `mapstructure:"agent"`
	Direction  string `mapstructure:"direction"`
}

func (m *Module) logInteraction(ctx context.Context, p command.Payload) (command.Result, error) {
	var in interactionInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode logInteraction: %w", err)
	}
	if res, failed := command.Require().
		Field("customerId", in.CustomerID != "").
		Field("channel", in.Channel != "").
		Field("message", in.Message != "").
		Failed(); failed {
		return res, nil
	}

	interaction := domain.Interaction{
		ID:         storage.NewID("INT"),
		CustomerID: in.CustomerID,
		Channel:    in.Channel,
		Subject:    optional(in.Subject),
		Message:    in.Message,
		Agent:      orDefault(in.Agent, "system"),
		Direction:  orDefault(in.Direction, "outbound"),
		CreatedAt:  m.now().UTC(),
	}
	if err := m.store.Interactions.Put(ctx, interaction.ID, interaction); err != nil {
		return command.Result{}, err
	}
	return command.OK(map[string]any{"interaction": interaction}), nil
}

// Overview combines a customer's profile with their billing records and
// latest interactions.
type Overview struct {
	CustomerID       string               `json:"customerId"`
	Profile          *domain.Profile      `json:"profile"`
	Services         []domain.Service     `json:"services"`
	Invoices         []domain.Invoice     `json:"invoices"`
	LastInteractions []domain.Interaction `json:"lastInteractions"`
}

type customerInput struct {
	CustomerID string `mapstructure:"customerId"`
	Limit      int    `mapstructure:"limit"`
}

func (m *Module) getCustomerOverview(ctx context.Context, p command.Payload) (command.Result, error) {
	var in customerInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode getCustomerOverview: %w", err)
	}
	if in.CustomerID == "" {
		return command.MissingField("customerId"), nil
	}

	overview := Overview{CustomerID: in.CustomerID}
	profile, err := m.store.Profiles.Get(ctx, in.CustomerID)
	switch {
	case err == nil:
		overview.Profile = &profile
	case !errors.Is(err, storage.ErrNotFound):
		return command.Result{}, err
	}
	if overview.Services, err = m.store.Services.Find(ctx, "customerId", in.CustomerID); err != nil {
		return command.Result{}, err
	}
	if overview.Invoices, err = m.store.Invoices.Find(ctx, "customerId", in.CustomerID); err != nil {
		return command.Result{}, err
	}
	if overview.LastInteractions, err = m.latestInteractions(ctx, in.CustomerID, overviewInteractions); err != nil {
		return command.Result{}, err
	}

	if overview.Profile == nil && len(overview.Services) == 0 &&
		len(overview.Invoices) == 0 && len(overview.LastInteractions) == 0 {
		return command.NotFound(map[string]any{"customerId": in.CustomerID}), nil
	}
	return command.OK(map[string]any{"overview": overview}), nil
}

func (m *Module) listInteractionsForCustomer(ctx context.Context, p command.Payload) (command.Result, error) {
	var in customerInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode listInteractionsForCustomer: %w", err)
	}
	if in.CustomerID == "" {
		return command.MissingField("customerId"), nil
	}

	limit := in.Limit
	switch {
	case limit == 0:
		limit = defaultInteractionLimit
	case limit < 0:
		limit = 0
	case limit > maxInteractionLimit:
		limit = maxInteractionLimit
	}
	interactions, err := m.latestInteractions(ctx, in.CustomerID, limit)
	if err != nil {
		return command.Result{}, err
	}
	return command.OK(map[string]any{"interactions": interactions}), nil
}

// latestInteractions returns up to limit interactions, newest first.
func (m *Module) latestInteractions(ctx context.Context, customerID string, limit int) ([]domain.Interaction, error) {
	all, err := m.store.Interactions.Find(ctx, "customerId", customerID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
