package strategy

import (
	"errors"
	"testing"

	"token-backtest-lab/internal/domain"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func validConfig() domain.StrategyConfig {
	return domain.StrategyConfig{
		StrategyID: "tp2x_sl30",
		Targets: []domain.ProfitTarget{
			{Multiplier: 3.0, PercentOfPosition: 0.5},
			{Multiplier: 2.0, PercentOfPosition: 0.5},
		},
		StopLoss:       domain.StopLossConfig{Initial: -0.3, Trailing: floatPtr(0.5)},
		MaxHoldCandles: intPtr(120),
	}
}

func TestFromConfig_Valid(t *testing.T) {
	s, err := FromConfig(validConfig())
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if s.ID() != "tp2x_sl30" {
		t.Errorf("expected tp2x_sl30, got %s", s.ID())
	}

	order := s.TargetOrder()
	if len(order) != 2 || order[0] != 1 || order[1] != 0 {
		t.Errorf("expected targets ordered [1 0], got %v", order)
	}
}

func TestValidateConfig_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.StrategyConfig)
		want   error
	}{
		{"missing id", func(c *domain.StrategyConfig) { c.StrategyID = "" }, ErrMissingStrategyID},
		{"targets over 100%", func(c *domain.StrategyConfig) { c.Targets[0].PercentOfPosition = 0.6 }, ErrTargetsOverAllocated},
		{"target below entry", func(c *domain.StrategyConfig) { c.Targets[0].Multiplier = 0.9 }, ErrInvalidTarget},
		{"zero target percent", func(c *domain.StrategyConfig) { c.Targets[0].PercentOfPosition = 0 }, ErrInvalidTarget},
		{"non-negative initial stop", func(c *domain.StrategyConfig) { c.StopLoss.Initial = 0 }, ErrInvalidInitialStop},
		{"initial stop at zero price", func(c *domain.StrategyConfig) { c.StopLoss.Initial = -1 }, ErrInvalidInitialStop},
		{"non-positive trailing", func(c *domain.StrategyConfig) { c.StopLoss.Trailing = floatPtr(0) }, ErrInvalidTrailing},
		{"trailing percent out of range", func(c *domain.StrategyConfig) { c.StopLoss.TrailingPercent = floatPtr(1.5) }, ErrInvalidTrailingPct},
		{"window without trailing percent", func(c *domain.StrategyConfig) { c.StopLoss.WindowSize = 10 }, ErrWindowWithoutTrailing},
		{"ratchet without rolling", func(c *domain.StrategyConfig) { c.StopLoss.Ratchet = true }, ErrRatchetWithoutRolling},
		{"zero max hold", func(c *domain.StrategyConfig) { c.MaxHoldCandles = intPtr(0) }, ErrInvalidMaxHold},
		{"empty signal group", func(c *domain.StrategyConfig) { c.ExitSignal = &domain.SignalGroup{Name: "x"} }, ErrInvalidSignalGroup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Targets = append([]domain.ProfitTarget(nil), cfg.Targets...)
			tt.mutate(&cfg)

			err := ValidateConfig(cfg)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected error to wrap ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestValidateConfig_TargetSumToleratesFloatResidue(t *testing.T) {
	cfg := validConfig()
	cfg.Targets = []domain.ProfitTarget{
		{Multiplier: 1.5, PercentOfPosition: 0.1},
		{Multiplier: 2.0, PercentOfPosition: 0.2},
		{Multiplier: 3.0, PercentOfPosition: 0.7},
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
}

func TestValidateConfig_RollingWithWindow(t *testing.T) {
	cfg := validConfig()
	cfg.StopLoss = domain.StopLossConfig{Initial: -0.2, TrailingPercent: floatPtr(0.25), WindowSize: 5, Ratchet: true}
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
}

func TestNewRegistry(t *testing.T) {
	a := validConfig()
	b := validConfig()
	b.StrategyID = "other"

	r, err := NewRegistry([]domain.StrategyConfig{b, a})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	ids := r.IDs()
	if len(ids) != 2 || ids[0] != "other" || ids[1] != "tp2x_sl30" {
		t.Errorf("unexpected ids %v", ids)
	}

	if _, err := r.Get("missing"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}

	if _, err := NewRegistry([]domain.StrategyConfig{a, a}); !errors.Is(err, ErrDuplicateStrategyID) {
		t.Errorf("expected ErrDuplicateStrategyID, got %v", err)
	}
}
