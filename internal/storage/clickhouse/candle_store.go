package clickhouse

import (
	"context"
	"fmt"

	"token-backtest-lab/internal/domain"
	"token-backtest-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBulk adds candles for one series. Fails entire batch on duplicate
// (mint, interval_seconds, timestamp).
func (s *CandleStore) InsertBulk(ctx context.Context, mint domain.Mint, interval int64, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	if mint == "" || interval <= 0 {
		return storage.ErrInvalidInput
	}

	// Check for intra-batch duplicates and bad bars
	seen := make(map[int64]struct{}, len(candles))
	lo, hi := candles[0].Timestamp, candles[0].Timestamp
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		if _, exists := seen[c.Timestamp]; exists {
			return storage.ErrDuplicateKey
		}
		seen[c.Timestamp] = struct{}{}
		lo = min(lo, c.Timestamp)
		hi = max(hi, c.Timestamp)
	}

	// Check for duplicates against existing DB rows in one range scan
	existing, err := s.GetByTimeRange(ctx, mint, interval, lo, hi+1, 0)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	for _, c := range existing {
		if _, dup := seen[c.Timestamp]; dup {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (
			mint, interval_seconds, timestamp, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err := batch.Append(
			string(mint), interval, c.Timestamp,
			c.Open, c.High, c.Low, c.Close, c.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByMint retrieves all candles of a series, ordered by timestamp ASC.
func (s *CandleStore) GetByMint(ctx context.Context, mint domain.Mint, interval int64) ([]domain.Candle, error) {
	query := `
		SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE mint = ? AND interval_seconds = ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, string(mint), interval)
	if err != nil {
		return nil, fmt.Errorf("query candles by mint: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// GetByTimeRange retrieves candles within [start, end), ordered by timestamp ASC.
// A limit <= 0 means no limit.
func (s *CandleStore) GetByTimeRange(ctx context.Context, mint domain.Mint, interval int64, start, end int64, limit int) ([]domain.Candle, error) {
	query := `
		SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE mint = ? AND interval_seconds = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`
	args := []any{string(mint), interval, start, end}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candles by time range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// scanCandles scans multiple rows into a slice.
func scanCandles(rows chRows) ([]domain.Candle, error) {
	var candles []domain.Candle

	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}
