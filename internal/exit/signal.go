package exit

import (
	"errors"
	"fmt"

	"token-backtest-lab/internal/domain"
)

// Signal evaluation errors
var (
	ErrMissingIndicator = errors.New("indicator missing from snapshot")
	ErrUnknownOperator  = errors.New("unknown signal operator")
	ErrUnknownMode      = errors.New("unknown signal mode")
)

// Signal operators
const (
	OpGreater      = ">"
	OpGreaterEqual = ">="
	OpLess         = "<"
	OpLessEqual    = "<="
	OpCrossesAbove = "crosses_above"
	OpCrossesBelow = "crosses_below"
)

// SignalEvaluator decides whether a signal group is satisfied.
type SignalEvaluator interface {
	Evaluate(group domain.SignalGroup, current, previous domain.IndicatorSnapshot) (bool, error)
}

// CheckExitSignal exits the full position at the candle close iff the group is
// satisfied. A nil group or evaluator never exits.
func CheckExitSignal(c domain.Candle, current, previous domain.IndicatorSnapshot, group *domain.SignalGroup, eval SignalEvaluator) (*SignalExit, error) {
	if group == nil || eval == nil {
		return nil, nil
	}
	ok, err := eval.Evaluate(*group, current, previous)
	if err != nil {
		return nil, fmt.Errorf("evaluate signal %q: %w", group.Name, err)
	}
	if !ok {
		return nil, nil
	}
	return &SignalExit{
		Fill: Fill{
			Price:       c.Close,
			Size:        1.0,
			Description: fmt.Sprintf("exit signal %q", group.Name),
		},
		Signal: group.Name,
	}, nil
}

// ThresholdEvaluator compares snapshot values against fixed thresholds.
// Crossing operators need the previous snapshot; without one they are false.
type ThresholdEvaluator struct{}

// Evaluate implements SignalEvaluator.
func (ThresholdEvaluator) Evaluate(group domain.SignalGroup, current, previous domain.IndicatorSnapshot) (bool, error) {
	mode := group.Mode
	if mode == "" {
		mode = domain.SignalModeAll
	}
	if mode != domain.SignalModeAll && mode != domain.SignalModeAny {
		return false, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
	if len(group.Conditions) == 0 {
		return false, nil
	}

	for _, cond := range group.Conditions {
		hit, err := evalCondition(cond, current, previous)
		if err != nil {
			return false, err
		}
		if mode == domain.SignalModeAny && hit {
			return true, nil
		}
		if mode == domain.SignalModeAll && !hit {
			return false, nil
		}
	}
	return mode == domain.SignalModeAll, nil
}

func evalCondition(cond domain.SignalCondition, current, previous domain.IndicatorSnapshot) (bool, error) {
	v, ok := current[cond.Indicator]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingIndicator, cond.Indicator)
	}

	switch cond.Operator {
	case OpGreater:
		return v > cond.Value, nil
	case OpGreaterEqual:
		return v >= cond.Value, nil
	case OpLess:
		return v < cond.Value, nil
	case OpLessEqual:
		return v <= cond.Value, nil
	case OpCrossesAbove, OpCrossesBelow:
		prev, ok := previous[cond.Indicator]
		if !ok {
			return false, nil
		}
		if cond.Operator == OpCrossesAbove {
			return prev <= cond.Value && v > cond.Value, nil
		}
		return prev >= cond.Value && v < cond.Value, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownOperator, cond.Operator)
	}
}

var _ SignalEvaluator = ThresholdEvaluator{}
