package reminder

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/pkg/logctx"
	"github.com/fatflowers/rentpay/pkg/tool"
)

var ErrInvalidRule = errors.New("invalid reminder rule")

// RuleUpdate is a partial update; nil fields and missing map keys are left
// unchanged.
type RuleUpdate struct {
	IsActive   *bool                                          `json:"is_active"`
	PreDueDays *int                                           `json:"pre_due_days" binding:"omitempty,gte=0,lte=27"`
	Channels   map[models.ReminderKind]models.ReminderChannel `json:"channels"`
	Templates  map[models.ReminderKind]string                 `json:"templates"`
	Enabled    map[models.ReminderKind]bool                   `json:"enabled"`
}

func (s *Service) defaultRule(ownerID string) *models.ReminderRule {
	return &models.ReminderRule{
		ID:         tool.GenerateUUIDV7(),
		OwnerID:    ownerID,
		IsActive:   true,
		PreDueDays: s.opts.DefaultLeadDays,
		Channels:   datatypes.NewJSONType(map[models.ReminderKind]models.ReminderChannel{}),
		Templates:  datatypes.NewJSONType(map[models.ReminderKind]string{}),
		Enabled:    datatypes.NewJSONType(map[models.ReminderKind]bool{}),
	}
}

// GetOrCreateRule returns the owner's rule, creating the default one on first
// access. Concurrent first calls converge on the same row.
func (s *Service) GetOrCreateRule(ctx context.Context, ownerID string) (*models.ReminderRule, error) {
	def := s.defaultRule(ownerID)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "owner_id"}}, DoNothing: true}).
		Create(def).Error
	if err != nil {
		return nil, err
	}
	var rule models.ReminderRule
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (s *Service) validateUpdate(in RuleUpdate) error {
	if in.PreDueDays != nil && (*in.PreDueDays < 0 || *in.PreDueDays > 27) {
		return fmt.Errorf("%w: pre_due_days must be between 0 and 27", ErrInvalidRule)
	}
	for k, c := range in.Channels {
		if !k.Valid() {
			return fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, k)
		}
		if c != models.ReminderChannelSMS && c != models.ReminderChannelWhatsApp {
			return fmt.Errorf("%w: unknown channel %q", ErrInvalidRule, c)
		}
	}
	for k := range in.Templates {
		if !k.Valid() {
			return fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, k)
		}
	}
	for k := range in.Enabled {
		if !k.Valid() {
			return fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, k)
		}
	}
	return nil
}

// UpdateRule merges in into the owner's rule, creating it if needed.
func (s *Service) UpdateRule(ctx context.Context, ownerID string, in RuleUpdate) (*models.ReminderRule, error) {
	if err := s.validateUpdate(in); err != nil {
		return nil, err
	}
	rule, err := s.GetOrCreateRule(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if in.IsActive != nil {
		rule.IsActive = *in.IsActive
	}
	if in.PreDueDays != nil {
		rule.PreDueDays = *in.PreDueDays
	}
	channels := copyMap(rule.Channels.Data())
	for k, v := range in.Channels {
		channels[k] = v
	}
	templates := copyMap(rule.Templates.Data())
	for k, v := range in.Templates {
		if v == "" {
			delete(templates, k)
			continue
		}
		templates[k] = v
	}
	enabled := copyMap(rule.Enabled.Data())
	for k, v := range in.Enabled {
		enabled[k] = v
	}
	rule.Channels = datatypes.NewJSONType(channels)
	rule.Templates = datatypes.NewJSONType(templates)
	rule.Enabled = datatypes.NewJSONType(enabled)
	rule.UpdatedAt = s.clock.Now().UTC()

	err = s.db.WithContext(ctx).Model(&models.ReminderRule{}).Where("id = ?", rule.ID).
		Updates(map[string]any{
			"is_active":    rule.IsActive,
			"pre_due_days": rule.PreDueDays,
			"channels":     rule.Channels,
			"templates":    rule.Templates,
			"enabled":      rule.Enabled,
			"updated_at":   rule.UpdatedAt,
		}).Error
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("reminder_rule_updated", "owner_id", ownerID, "is_active", rule.IsActive, "pre_due_days", rule.PreDueDays)
	return rule, nil
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func channelFor(rule *models.ReminderRule, kind models.ReminderKind) models.ReminderChannel {
	if c, ok := rule.Channels.Data()[kind]; ok && c != "" {
		return c
	}
	return models.ReminderChannelSMS
}

func templateFor(rule *models.ReminderRule, kind models.ReminderKind) string {
	if t, ok := rule.Templates.Data()[kind]; ok && t != "" {
		return t
	}
	return DefaultTemplates[kind]
}

func enabledFor(rule *models.ReminderRule, kind models.ReminderKind) bool {
	if v, ok := rule.Enabled.Data()[kind]; ok {
		return v
	}
	return true
}
