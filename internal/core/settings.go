package core

import "fmt"

const (
	DefaultCashbackRate = 0.03
	DefaultStakingAPR   = 0.07

	// MaxStakingAPR bounds obviously mistyped percentages (7 instead of 0.07 is still allowed).
	MaxStakingAPR = 5.0
)

// Settings is the singleton configuration document.
type Settings struct {
	CashbackRate float64 `json:"cashbackRate"`
	StakingAPR   float64 `json:"stakingAPR"`
}

// DefaultSettings returns the settings used when nothing valid is stored.
func DefaultSettings() Settings {
	return Settings{CashbackRate: DefaultCashbackRate, StakingAPR: DefaultStakingAPR}
}

// SettingsPatch holds optional fields as read from a document or request.
type SettingsPatch struct {
	CashbackRate *float64 `json:"cashbackRate"`
	StakingAPR   *float64 `json:"stakingAPR"`
}

// Resolve applies defaults field by field, dropping missing or out-of-range values.
func (p SettingsPatch) Resolve(base Settings) Settings {
	out := base
	if p.CashbackRate != nil && validRate(*p.CashbackRate) {
		out.CashbackRate = *p.CashbackRate
	}
	if p.StakingAPR != nil && validAPR(*p.StakingAPR) {
		out.StakingAPR = *p.StakingAPR
	}
	return out
}

// Validate rejects out-of-range values instead of silently defaulting them.
func (p SettingsPatch) Validate() error {
	if p.CashbackRate == nil && p.StakingAPR == nil {
		return NewFieldError("settings", "at least one of cashbackRate or stakingAPR is required", nil)
	}
	if p.CashbackRate != nil && !validRate(*p.CashbackRate) {
		return NewFieldError("cashbackRate", "cashbackRate must be between 0 and 1", nil)
	}
	if p.StakingAPR != nil && !validAPR(*p.StakingAPR) {
		return NewFieldError("stakingAPR", fmt.Sprintf("stakingAPR must be between 0 and %g", MaxStakingAPR), nil)
	}
	return nil
}

// Normalize replaces invalid fields with defaults.
func (s Settings) Normalize() Settings {
	return SettingsPatch{CashbackRate: &s.CashbackRate, StakingAPR: &s.StakingAPR}.Resolve(DefaultSettings())
}

func validRate(v float64) bool {
	return v >= 0 && v <= 1
}

func validAPR(v float64) bool {
	return v >= 0 && v <= MaxStakingAPR
}
