// Package config loads the backtest configuration file.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/exit"
	"token-backtest-lab/internal/strategy"
)

// Config errors
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrMissingSeed   = fmt.Errorf("%w: backtest.seed is required", ErrInvalidConfig)
)

type Config struct {
	Log        LogConfig              `mapstructure:"log"`
	Storage    StorageConfig          `mapstructure:"storage"`
	Backtest   BacktestConfig         `mapstructure:"backtest"`
	Venues     map[string]VenueConfig `mapstructure:"venues"`
	Risk       RiskConfig             `mapstructure:"risk"`
	Strategies []StrategyConfig       `mapstructure:"strategies"`
	Metrics    MetricsConfig          `mapstructure:"metrics"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type StorageConfig struct {
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	UseMemory     bool   `mapstructure:"use_memory"`
}

// BacktestConfig holds run-wide simulation settings.
type BacktestConfig struct {
	// Seed drives every sampled draw. There is no implicit default: a run
	// without a seed is not reproducible.
	Seed *uint64 `mapstructure:"seed"`

	CandleInterval    time.Duration `mapstructure:"candle_interval"`
	SubCandleInterval time.Duration `mapstructure:"sub_candle_interval"`
	RefinementHorizon time.Duration `mapstructure:"refinement_horizon"`
	SubCandleLimit    int           `mapstructure:"sub_candle_limit"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`

	Workers    int     `mapstructure:"workers"`
	SharedRisk bool    `mapstructure:"shared_risk"`
	Capital    float64 `mapstructure:"capital"`  // drawdown base in shared-risk mode
	Notional   float64 `mapstructure:"notional"` // used when a position has none
	Priority   string  `mapstructure:"priority"` // low | medium | high
}

// VenueConfig describes one execution venue. The yaml tags match the
// mapstructure tags so calibrated venues can be pasted into a config file.
type VenueConfig struct {
	Latency      LatencyConfig      `mapstructure:"latency" yaml:"latency"`
	Slippage     SlippageConfig     `mapstructure:"slippage" yaml:"slippage"`
	Failures     *FailureConfig     `mapstructure:"failures" yaml:"failures,omitempty"`
	PartialFills *PartialFillConfig `mapstructure:"partial_fills" yaml:"partial_fills,omitempty"`
	Cost         CostConfig         `mapstructure:"cost" yaml:"cost"`
}

type LatencyConfig struct {
	P50    float64 `mapstructure:"p50" yaml:"p50"`
	P90    float64 `mapstructure:"p90" yaml:"p90"`
	P99    float64 `mapstructure:"p99" yaml:"p99"`
	Jitter float64 `mapstructure:"jitter" yaml:"jitter"`
}

type SlippageConfig struct {
	Base         float64 `mapstructure:"base" yaml:"base"`
	VolumeImpact float64 `mapstructure:"volume_impact" yaml:"volume_impact"`
	Max          float64 `mapstructure:"max" yaml:"max"`
}

type FailureConfig struct {
	BaseRate             float64 `mapstructure:"base_rate" yaml:"base_rate"`
	CongestionMultiplier float64 `mapstructure:"congestion_multiplier" yaml:"congestion_multiplier"`
}

type PartialFillConfig struct {
	Probability float64 `mapstructure:"probability" yaml:"probability"`
	FillMin     float64 `mapstructure:"fill_min" yaml:"fill_min"`
	FillMax     float64 `mapstructure:"fill_max" yaml:"fill_max"`
}

type CostConfig struct {
	BaseFee         float64  `mapstructure:"base_fee" yaml:"base_fee"`
	PriorityFeeBase *float64 `mapstructure:"priority_fee_base" yaml:"priority_fee_base,omitempty"`
	PriorityFeeMax  *float64 `mapstructure:"priority_fee_max" yaml:"priority_fee_max,omitempty"`
	TradingFee      float64  `mapstructure:"trading_fee" yaml:"trading_fee"`
}

// RiskConfig holds the circuit breaker limits. Zero values disable a limit.
type RiskConfig struct {
	MaxDrawdown          float64         `mapstructure:"max_drawdown"`
	MaxLossPerDay        float64         `mapstructure:"max_loss_per_day"`
	MaxConsecutiveLosses int             `mapstructure:"max_consecutive_losses"`
	MaxPositionSize      float64         `mapstructure:"max_position_size"`
	MaxTotalExposure     *float64        `mapstructure:"max_total_exposure"`
	Throttle             *ThrottleConfig `mapstructure:"throttle"`
}

type ThrottleConfig struct {
	MaxTrades     int `mapstructure:"max_trades"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type StrategyConfig struct {
	ID             string         `mapstructure:"id"`
	Targets        []TargetConfig `mapstructure:"targets"`
	StopLoss       StopLossConfig `mapstructure:"stop_loss"`
	ExitSignal     *SignalConfig  `mapstructure:"exit_signal"`
	MaxHoldCandles *int           `mapstructure:"max_hold_candles"`
}

type TargetConfig struct {
	Multiplier float64 `mapstructure:"multiplier"`
	Percent    float64 `mapstructure:"percent"`
}

type StopLossConfig struct {
	Initial         float64  `mapstructure:"initial"`
	Trailing        *float64 `mapstructure:"trailing"`
	TrailingPercent *float64 `mapstructure:"trailing_percent"`
	WindowSize      int      `mapstructure:"window_size"`
	Ratchet         bool     `mapstructure:"ratchet"`
}

type SignalConfig struct {
	Name       string            `mapstructure:"name"`
	Mode       string            `mapstructure:"mode"`
	Conditions []ConditionConfig `mapstructure:"conditions"`
}

type ConditionConfig struct {
	Indicator string  `mapstructure:"indicator"`
	Operator  string  `mapstructure:"operator"`
	Value     float64 `mapstructure:"value"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// setDefaults registers every scalar default, which also makes the keys
// visible to environment overrides.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("storage.use_memory", false)
	v.SetDefault("storage.clickhouse_dsn", "")
	v.SetDefault("storage.postgres_dsn", "")

	v.SetDefault("backtest.candle_interval", time.Minute)
	v.SetDefault("backtest.sub_candle_interval", time.Duration(exit.DefaultSubCandleInterval)*time.Second)
	v.SetDefault("backtest.refinement_horizon", exit.DefaultRefinementHorizon)
	v.SetDefault("backtest.sub_candle_limit", exit.DefaultSubCandleLimit)
	v.SetDefault("backtest.fetch_timeout", exit.DefaultFetchTimeout)
	v.SetDefault("backtest.workers", 4)
	v.SetDefault("backtest.shared_risk", false)
	v.SetDefault("backtest.capital", 0.0)
	v.SetDefault("backtest.notional", 1.0)
	v.SetDefault("backtest.priority", string(domain.PriorityMedium))

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.namespace", "token_backtest_lab")
}

// Load reads configuration from path and validates it.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads configuration from path without validating it. An empty path
// loads defaults and environment overrides only.
func Read(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Support environment variable overrides, e.g. BACKTEST_SEED
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := v.BindEnv("backtest.seed"); err != nil {
		return nil, fmt.Errorf("binding seed env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Backtest.Seed == nil {
		return ErrMissingSeed
	}

	// Storage validation
	if !c.Storage.UseMemory && (c.Storage.ClickhouseDSN == "" || c.Storage.PostgresDSN == "") {
		return fmt.Errorf("%w: clickhouse_dsn and postgres_dsn are required unless use_memory is set", ErrInvalidConfig)
	}

	// Backtest validation
	b := c.Backtest
	if b.CandleInterval < time.Second {
		return fmt.Errorf("%w: candle_interval must be at least 1s, got %s", ErrInvalidConfig, b.CandleInterval)
	}
	if b.SubCandleInterval < time.Second || b.SubCandleInterval > b.CandleInterval {
		return fmt.Errorf("%w: sub_candle_interval must be in [1s, candle_interval], got %s", ErrInvalidConfig, b.SubCandleInterval)
	}
	if b.Workers < 1 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, b.Workers)
	}
	if b.Notional <= 0 {
		return fmt.Errorf("%w: notional must be positive, got %f", ErrInvalidConfig, b.Notional)
	}
	if !domain.Priority(b.Priority).IsValid() {
		return fmt.Errorf("%w: priority must be low, medium or high, got %q", ErrInvalidConfig, b.Priority)
	}

	for _, id := range sortedKeys(c.Venues) {
		if err := c.Venues[id].validate(); err != nil {
			return fmt.Errorf("%w: venue %s: %v", ErrInvalidConfig, id, err)
		}
	}

	if len(c.Strategies) == 0 {
		return fmt.Errorf("%w: at least one strategy is required", ErrInvalidConfig)
	}
	if _, err := strategy.NewRegistry(c.DomainStrategies()); err != nil {
		return err
	}

	return nil
}

func (v VenueConfig) validate() error {
	l := v.Latency
	if l.P50 < 0 || l.P90 < l.P50 || l.P99 < l.P90 {
		return fmt.Errorf("latency percentiles must satisfy 0 <= p50 <= p90 <= p99")
	}
	s := v.Slippage
	if s.Base < 0 || s.VolumeImpact < 0 || s.Max < s.Base {
		return fmt.Errorf("slippage must satisfy 0 <= base <= max and volume_impact >= 0")
	}
	if f := v.Failures; f != nil && (f.BaseRate < 0 || f.BaseRate > 1 || f.CongestionMultiplier < 1) {
		return fmt.Errorf("failures need base_rate in [0, 1] and congestion_multiplier >= 1")
	}
	if p := v.PartialFills; p != nil && (p.Probability < 0 || p.Probability > 1 || p.FillMin <= 0 || p.FillMax < p.FillMin || p.FillMax > 1) {
		return fmt.Errorf("partial_fills need probability in [0, 1] and 0 < fill_min <= fill_max <= 1")
	}
	if (v.Cost.PriorityFeeBase == nil) != (v.Cost.PriorityFeeMax == nil) {
		return fmt.Errorf("priority_fee_base and priority_fee_max must be set together")
	}
	return nil
}

// Venue converts the config into a domain venue.
func (v VenueConfig) Venue(id string) domain.Venue {
	out := domain.Venue{
		VenueID: id,
		Execution: domain.ExecutionModel{
			Latency:  domain.LatencyModel{P50: v.Latency.P50, P90: v.Latency.P90, P99: v.Latency.P99, Jitter: v.Latency.Jitter},
			Slippage: domain.SlippageModel{Base: v.Slippage.Base, VolumeImpact: v.Slippage.VolumeImpact, Max: v.Slippage.Max},
		},
		Cost: domain.CostModel{BaseFee: v.Cost.BaseFee, TradingFee: v.Cost.TradingFee},
	}
	if f := v.Failures; f != nil {
		out.Execution.Failures = &domain.FailureModel{BaseRate: f.BaseRate, CongestionMultiplier: f.CongestionMultiplier}
	}
	if p := v.PartialFills; p != nil {
		out.Execution.PartialFills = &domain.PartialFillModel{
			Probability: p.Probability,
			FillRange:   domain.FillRange{Min: p.FillMin, Max: p.FillMax},
		}
	}
	if v.Cost.PriorityFeeBase != nil && v.Cost.PriorityFeeMax != nil {
		out.Cost.PriorityFee = &domain.PriorityFeeModel{Base: *v.Cost.PriorityFeeBase, Max: *v.Cost.PriorityFeeMax}
	}
	return out
}

// VenueFromModels is the inverse of VenueConfig.Venue.
func VenueFromModels(m domain.ExecutionModel, c domain.CostModel) VenueConfig {
	out := VenueConfig{
		Latency:  LatencyConfig{P50: m.Latency.P50, P90: m.Latency.P90, P99: m.Latency.P99, Jitter: m.Latency.Jitter},
		Slippage: SlippageConfig{Base: m.Slippage.Base, VolumeImpact: m.Slippage.VolumeImpact, Max: m.Slippage.Max},
		Cost:     CostConfig{BaseFee: c.BaseFee, TradingFee: c.TradingFee},
	}
	if m.Failures != nil {
		out.Failures = &FailureConfig{BaseRate: m.Failures.BaseRate, CongestionMultiplier: m.Failures.CongestionMultiplier}
	}
	if m.PartialFills != nil {
		out.PartialFills = &PartialFillConfig{
			Probability: m.PartialFills.Probability,
			FillMin:     m.PartialFills.FillRange.Min,
			FillMax:     m.PartialFills.FillRange.Max,
		}
	}
	if c.PriorityFee != nil {
		base, hi := c.PriorityFee.Base, c.PriorityFee.Max
		out.Cost.PriorityFeeBase = &base
		out.Cost.PriorityFeeMax = &hi
	}
	return out
}

// DomainVenues returns the configured venues keyed by ID.
func (c *Config) DomainVenues() map[string]domain.Venue {
	out := make(map[string]domain.Venue, len(c.Venues))
	for id, v := range c.Venues {
		out[id] = v.Venue(id)
	}
	return out
}

// DomainStrategies converts the strategy list in file order.
func (c *Config) DomainStrategies() []domain.StrategyConfig {
	out := make([]domain.StrategyConfig, 0, len(c.Strategies))
	for _, s := range c.Strategies {
		cfg := domain.StrategyConfig{
			StrategyID: s.ID,
			StopLoss: domain.StopLossConfig{
				Initial:         s.StopLoss.Initial,
				Trailing:        s.StopLoss.Trailing,
				TrailingPercent: s.StopLoss.TrailingPercent,
				WindowSize:      s.StopLoss.WindowSize,
				Ratchet:         s.StopLoss.Ratchet,
			},
			MaxHoldCandles: s.MaxHoldCandles,
		}
		for _, t := range s.Targets {
			cfg.Targets = append(cfg.Targets, domain.ProfitTarget{Multiplier: t.Multiplier, PercentOfPosition: t.Percent})
		}
		if sig := s.ExitSignal; sig != nil {
			group := &domain.SignalGroup{Name: sig.Name, Mode: sig.Mode}
			for _, cond := range sig.Conditions {
				group.Conditions = append(group.Conditions, domain.SignalCondition{
					Indicator: cond.Indicator,
					Operator:  cond.Operator,
					Value:     cond.Value,
				})
			}
			cfg.ExitSignal = group
		}
		out = append(out, cfg)
	}
	return out
}

// RiskLimits converts the risk section.
func (c *Config) RiskLimits() domain.RiskLimits {
	limits := domain.RiskLimits{
		MaxDrawdown:          c.Risk.MaxDrawdown,
		MaxLossPerDay:        c.Risk.MaxLossPerDay,
		MaxConsecutiveLosses: c.Risk.MaxConsecutiveLosses,
		MaxPositionSize:      c.Risk.MaxPositionSize,
		MaxTotalExposure:     c.Risk.MaxTotalExposure,
	}
	if th := c.Risk.Throttle; th != nil {
		limits.TradeThrottle = &domain.TradeThrottle{MaxTrades: th.MaxTrades, WindowMinutes: th.WindowMinutes}
	}
	return limits
}

// IntervalSeconds returns the candle interval in seconds.
func (b BacktestConfig) IntervalSeconds() int64 {
	return int64(b.CandleInterval / time.Second)
}

func sortedKeys(m map[string]VenueConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
