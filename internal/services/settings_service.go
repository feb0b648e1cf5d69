package services

import (
	"context"
	"fmt"

	"cashback/internal/core"
	"cashback/internal/log"
	"cashback/internal/store"
)

type SettingsService struct {
	store  store.SettingsStore
	logger *log.Logger
}

func NewSettingsService(st store.SettingsStore, logger *log.Logger) *SettingsService {
	if logger == nil {
		logger = log.Discard()
	}
	return &SettingsService{store: st, logger: logger.WithComponent(log.ComponentApp)}
}

// Get returns the stored settings with defaults applied.
func (s *SettingsService) Get(ctx context.Context) (core.Settings, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return core.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings.Normalize(), nil
}

// Update applies the provided fields after validating their ranges.
func (s *SettingsService) Update(ctx context.Context, patch core.SettingsPatch) (core.Settings, error) {
	if err := patch.Validate(); err != nil {
		return core.Settings{}, err
	}
	current, err := s.Get(ctx)
	if err != nil {
		return core.Settings{}, err
	}
	next := patch.Resolve(current)
	if err := s.store.SaveSettings(ctx, next); err != nil {
		return core.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	s.logger.InfoContext(ctx, "Settings updated",
		log.FieldOperation, log.OpUpdate,
		"cashback_rate", next.CashbackRate,
		"staking_apr", next.StakingAPR)
	return next, nil
}
