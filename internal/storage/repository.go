package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/guregu/null/v6"
	pq "github.com/lib/pq"

	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/guttosm/stockpulse/internal/logger"
)

// PricesRepository defines contract for DB operations.
type PricesRepository interface {
	UpsertSymbol(ctx context.Context, symbol string) (int64, error)
	LoadDailyPrices(ctx context.Context, stockID int64, rows []models.FeaturedPriceRow) (int, error)
	GetLastLoadedDate(ctx context.Context, stockID int64) (time.Time, bool, error)

	FindStock(ctx context.Context, symbol string) (*models.Stock, error)
	ListStocks(ctx context.Context) ([]models.Stock, error)
	GetDailyPrices(ctx context.Context, stockID int64, startDate, endDate *time.Time) ([]models.DailyPrice, error)
}

type pricesRepository struct {
	db *sql.DB
}

func NewPricesRepository(db *sql.DB) PricesRepository {
	return &pricesRepository{db: db}
}

var priceColumns = []string{
	"stock_id", "date", "open", "high", "low", "close", "volume",
	"daily_return", "log_return", "volatility_20d", "ma_20d", "ma_50d",
}

const stagingTable = "daily_prices_staging"

// UpsertSymbol inserts the symbol if absent and returns its stock_id.
// Conflict-safe: concurrent or repeated calls converge on one row.
func (r *pricesRepository) UpsertSymbol(ctx context.Context, symbol string) (int64, error) {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO stocks (symbol) VALUES ($1) ON CONFLICT (symbol) DO NOTHING`, symbol); err != nil {
		return 0, r.fail("upsert symbol", err, symbol)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT stock_id FROM stocks WHERE symbol = $1`, symbol).Scan(&id); err != nil {
		return 0, r.fail("resolve stock_id", err, symbol)
	}
	return id, nil
}

// LoadDailyPrices writes rows for stockID in a single transaction and returns how many
// distinct dates were written.
//
// Duplicate dates in rows are collapsed, last one wins. Rows are bulk-copied into a
// temporary staging table and merged with ON CONFLICT (stock_id, date) DO UPDATE, so
// loading the same input twice leaves the table as if it had been loaded once.
func (r *pricesRepository) LoadDailyPrices(ctx context.Context, stockID int64, rows []models.FeaturedPriceRow) (int, error) {
	rows = dedupeLastWins(rows)
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, r.fail("begin load", err, "")
	}
	rollback := func(op string, err error) (int, error) {
		_ = tx.Rollback()
		return 0, r.fail(op, err, "")
	}

	// Small optimization for bulk load
	if _, err := tx.ExecContext(ctx, `SET LOCAL synchronous_commit = OFF`); err != nil {
		return rollback("tune load", err)
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TEMP TABLE `+stagingTable+` (
			stock_id       BIGINT,
			date           DATE,
			open           DOUBLE PRECISION,
			high           DOUBLE PRECISION,
			low            DOUBLE PRECISION,
			close          DOUBLE PRECISION,
			volume         BIGINT,
			daily_return   DOUBLE PRECISION,
			log_return     DOUBLE PRECISION,
			volatility_20d DOUBLE PRECISION,
			ma_20d         DOUBLE PRECISION,
			ma_50d         DOUBLE PRECISION
		) ON COMMIT DROP`); err != nil {
		return rollback("create staging", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(stagingTable, priceColumns...))
	if err != nil {
		return rollback("prepare copy", err)
	}
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			stockID,
			row.Date,
			nanToNull(row.Open),
			nanToNull(row.High),
			nanToNull(row.Low),
			row.Close,
			row.Volume,
			row.DailyReturn,
			row.LogReturn,
			row.Volatility20d,
			row.MA20d,
			row.MA50d,
		); err != nil {
			_ = stmt.Close()
			return rollback("copy row "+row.Date.Format(time.DateOnly), err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return rollback("flush copy", err)
	}
	if err := stmt.Close(); err != nil {
		return rollback("close copy", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO daily_prices (
			stock_id, date, open, high, low, close, volume,
			daily_return, log_return, volatility_20d, ma_20d, ma_50d
		)
		SELECT stock_id, date, open, high, low, close, volume,
		       daily_return, log_return, volatility_20d, ma_20d, ma_50d
		FROM `+stagingTable+`
		ON CONFLICT (stock_id, date)
		DO UPDATE SET open = EXCLUDED.open,
		              high = EXCLUDED.high,
		              low = EXCLUDED.low,
		              close = EXCLUDED.close,
		              volume = EXCLUDED.volume,
		              daily_return = EXCLUDED.daily_return,
		              log_return = EXCLUDED.log_return,
		              volatility_20d = EXCLUDED.volatility_20d,
		              ma_20d = EXCLUDED.ma_20d,
		              ma_50d = EXCLUDED.ma_50d,
		              updated_at = NOW()`)
	if err != nil {
		return rollback("merge daily prices", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, r.fail("commit load", err, "")
	}

	affected, _ := res.RowsAffected()
	logger.L().Info().Int64("stock_id", stockID).Int("rows", len(rows)).Int64("affected", affected).Msg("loaded daily prices")
	return len(rows), nil
}

// GetLastLoadedDate returns the latest stored date for stockID; ok is false when none exist.
func (r *pricesRepository) GetLastLoadedDate(ctx context.Context, stockID int64) (time.Time, bool, error) {
	var last sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM daily_prices WHERE stock_id = $1`, stockID).Scan(&last)
	if err != nil {
		return time.Time{}, false, r.fail("last loaded date", err, "")
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return last.Time.UTC(), true, nil
}

// FindStock returns the stock for symbol, or nil if it has never been loaded.
func (r *pricesRepository) FindStock(ctx context.Context, symbol string) (*models.Stock, error) {
	var s models.Stock
	err := r.db.QueryRowContext(ctx,
		`SELECT stock_id, symbol FROM stocks WHERE symbol = $1`, symbol).Scan(&s.ID, &s.Symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find stock", err)
	}
	return &s, nil
}

// ListStocks returns every known stock ordered by symbol.
func (r *pricesRepository) ListStocks(ctx context.Context) ([]models.Stock, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT stock_id, symbol FROM stocks ORDER BY symbol`)
	if err != nil {
		return nil, classify("list stocks", err)
	}
	defer rows.Close()

	var out []models.Stock
	for rows.Next() {
		var s models.Stock
		if err := rows.Scan(&s.ID, &s.Symbol); err != nil {
			return nil, classify("scan stock", err)
		}
		out = append(out, s)
	}
	return out, classify("list stocks", rows.Err())
}

// GetDailyPrices returns stored rows for stockID ascending by date, optionally bounded
// (inclusive) by startDate and endDate.
func (r *pricesRepository) GetDailyPrices(ctx context.Context, stockID int64, startDate, endDate *time.Time) ([]models.DailyPrice, error) {
	// $1 is always stock_id. Subsequent placeholders depend on provided dates.
	conditions := "stock_id = $1"
	args := []any{stockID}
	if startDate != nil {
		args = append(args, *startDate)
		conditions += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if endDate != nil {
		args = append(args, *endDate)
		conditions += fmt.Sprintf(" AND date <= $%d", len(args))
	}

	query := fmt.Sprintf(`
		SELECT stock_id, date, open, high, low, close, volume,
		       daily_return, log_return, volatility_20d, ma_20d, ma_50d
		FROM daily_prices
		WHERE %s
		ORDER BY date`, conditions)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("query daily prices", err)
	}
	defer rows.Close()

	var out []models.DailyPrice
	for rows.Next() {
		var (
			p               models.DailyPrice
			open, high, low null.Float
		)
		if err := rows.Scan(
			&p.StockID, &p.Date, &open, &high, &low, &p.Close, &p.Volume,
			&p.DailyReturn, &p.LogReturn, &p.Volatility20d, &p.MA20d, &p.MA50d,
		); err != nil {
			return nil, classify("scan daily price", err)
		}
		p.Date = p.Date.UTC()
		p.Open, p.High, p.Low = nullToNaN(open), nullToNaN(high), nullToNaN(low)
		out = append(out, p)
	}
	return out, classify("query daily prices", rows.Err())
}

// fail classifies err and logs it once at its origin.
func (r *pricesRepository) fail(op string, err error, symbol string) error {
	wrapped := classify(op, err)
	le := wrapped.(*LoadError)
	ev := logger.L().Error().Err(err).Str("op", op).Str("kind", le.Kind.String())
	if symbol != "" {
		ev = ev.Str("symbol", symbol)
	}
	ev.Msg("database operation failed")
	return wrapped
}

// dedupeLastWins collapses rows sharing a date, keeping the last one in input order
// at the position of the first.
func dedupeLastWins(rows []models.FeaturedPriceRow) []models.FeaturedPriceRow {
	idx := make(map[string]int, len(rows))
	out := make([]models.FeaturedPriceRow, 0, len(rows))
	for _, row := range rows {
		key := row.Date.Format(time.DateOnly)
		if i, ok := idx[key]; ok {
			out[i] = row
			continue
		}
		idx[key] = len(out)
		out = append(out, row)
	}
	return out
}

func nanToNull(v float64) null.Float {
	return null.NewFloat(v, !math.IsNaN(v))
}

func nullToNaN(v null.Float) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
