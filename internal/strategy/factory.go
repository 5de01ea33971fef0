package strategy

import (
	"errors"
	"fmt"
	"sort"

	"token-backtest-lab/internal/domain"
)

// ErrInvalidConfig wraps every strategy configuration error.
var ErrInvalidConfig = errors.New("invalid strategy config")

// Factory errors
var (
	ErrMissingStrategyID     = fmt.Errorf("%w: missing strategy id", ErrInvalidConfig)
	ErrDuplicateStrategyID   = fmt.Errorf("%w: duplicate strategy id", ErrInvalidConfig)
	ErrUnknownStrategy       = errors.New("unknown strategy")
	ErrInvalidTarget         = fmt.Errorf("%w: target multiplier must be > 1 and percent in (0, 1]", ErrInvalidConfig)
	ErrTargetsOverAllocated  = fmt.Errorf("%w: target percentages sum over 100%%", ErrInvalidConfig)
	ErrInvalidInitialStop    = fmt.Errorf("%w: initial stop must be a fraction in (-1, 0)", ErrInvalidConfig)
	ErrInvalidTrailing       = fmt.Errorf("%w: trailing activation must be positive", ErrInvalidConfig)
	ErrInvalidTrailingPct    = fmt.Errorf("%w: trailing percent must be in (0, 1)", ErrInvalidConfig)
	ErrWindowWithoutTrailing = fmt.Errorf("%w: window size requires a trailing percent", ErrInvalidConfig)
	ErrInvalidWindowSize     = fmt.Errorf("%w: window size must be positive", ErrInvalidConfig)
	ErrRatchetWithoutRolling = fmt.Errorf("%w: ratchet requires a trailing percent", ErrInvalidConfig)
	ErrInvalidMaxHold        = fmt.Errorf("%w: max hold must be at least one candle", ErrInvalidConfig)
	ErrInvalidSignalGroup    = fmt.Errorf("%w: exit signal group needs conditions and mode all|any", ErrInvalidConfig)
)

// targetSumTolerance absorbs float residue when summing target percentages.
const targetSumTolerance = 1e-9

// FromConfig validates cfg and returns a Strategy.
func FromConfig(cfg domain.StrategyConfig) (*Strategy, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Strategy{
		Config:      cfg,
		targetOrder: orderTargets(cfg.Targets),
	}, nil
}

// ValidateConfig checks cfg before any simulation starts.
func ValidateConfig(cfg domain.StrategyConfig) error {
	if cfg.StrategyID == "" {
		return ErrMissingStrategyID
	}

	sum := 0.0
	for i, t := range cfg.Targets {
		if t.Multiplier <= 1 || t.PercentOfPosition <= 0 || t.PercentOfPosition > 1 {
			return fmt.Errorf("%s target %d: %w", cfg.StrategyID, i, ErrInvalidTarget)
		}
		sum += t.PercentOfPosition
	}
	if sum > 1+targetSumTolerance {
		return fmt.Errorf("%s: %.4f: %w", cfg.StrategyID, sum, ErrTargetsOverAllocated)
	}

	if err := validateStopLoss(cfg.StopLoss); err != nil {
		return fmt.Errorf("%s: %w", cfg.StrategyID, err)
	}

	if cfg.MaxHoldCandles != nil && *cfg.MaxHoldCandles < 1 {
		return fmt.Errorf("%s: %w", cfg.StrategyID, ErrInvalidMaxHold)
	}

	if g := cfg.ExitSignal; g != nil {
		if len(g.Conditions) == 0 || (g.Mode != "" && g.Mode != domain.SignalModeAll && g.Mode != domain.SignalModeAny) {
			return fmt.Errorf("%s: %w", cfg.StrategyID, ErrInvalidSignalGroup)
		}
	}

	return nil
}

func validateStopLoss(sl domain.StopLossConfig) error {
	if sl.Initial >= 0 || sl.Initial <= -1 {
		return ErrInvalidInitialStop
	}
	if sl.Trailing != nil && *sl.Trailing <= 0 {
		return ErrInvalidTrailing
	}
	if sl.TrailingPercent != nil && (*sl.TrailingPercent <= 0 || *sl.TrailingPercent >= 1) {
		return ErrInvalidTrailingPct
	}
	if sl.WindowSize != 0 && sl.TrailingPercent == nil {
		return ErrWindowWithoutTrailing
	}
	if sl.WindowSize < 0 {
		return ErrInvalidWindowSize
	}
	if sl.Ratchet && sl.TrailingPercent == nil {
		return ErrRatchetWithoutRolling
	}
	return nil
}

// Registry holds validated strategies by ID.
type Registry struct {
	byID map[string]*Strategy
}

// NewRegistry validates every config; the first invalid one fails the set.
func NewRegistry(cfgs []domain.StrategyConfig) (*Registry, error) {
	r := &Registry{byID: make(map[string]*Strategy, len(cfgs))}
	for _, cfg := range cfgs {
		s, err := FromConfig(cfg)
		if err != nil {
			return nil, err
		}
		if _, dup := r.byID[s.ID()]; dup {
			return nil, fmt.Errorf("%s: %w", s.ID(), ErrDuplicateStrategyID)
		}
		r.byID[s.ID()] = s
	}
	return r, nil
}

// Get returns the strategy with id.
func (r *Registry) Get(id string) (*Strategy, error) {
	s, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, id)
	}
	return s, nil
}

// IDs returns registered strategy IDs in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
