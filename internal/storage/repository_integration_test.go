//go:build integration
// +build integration

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/guregu/null/v6"
	_ "github.com/lib/pq"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/guttosm/stockpulse/db/migrations"
	"github.com/guttosm/stockpulse/internal/domain/models"
)

// startPostgres spins up a Postgres container and returns a DSN and terminate func.
func startPostgres(t *testing.T) (dsn string, terminate func()) {
	t.Helper()
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "stock_pipeline",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
		},
		WaitingFor: wait.ForSQL("5432/tcp", "postgres", func(host string, port nat.Port) string {
			return fmt.Sprintf("host=%s port=%s user=postgres password=postgres dbname=stock_pipeline sslmode=disable", host, port.Port())
		}).WithStartupTimeout(60 * time.Second),
	}

	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("container start: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/stock_pipeline?sslmode=disable", host, port.Port())
	terminate = func() { _ = container.Terminate(context.Background()) }
	return dsn, terminate
}

func openDB(t *testing.T, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := migrations.Up(db); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	return db
}

func sampleRows(n int) []models.FeaturedPriceRow {
	rows := make([]models.FeaturedPriceRow, n)
	for i := range rows {
		c := 100 + float64(i)
		rows[i] = models.FeaturedPriceRow{
			PriceRow: models.PriceRow{Date: day(1 + i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: int64(1000 + i)},
		}
		if i > 0 {
			rows[i].LogReturn = null.FloatFrom(math.Log(c / (c - 1)))
		}
	}
	rows[0].Open = math.NaN()
	return rows
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestRepository_Integration(t *testing.T) {
	dsn, terminate := startPostgres(t)
	defer terminate()
	db := openDB(t, dsn)
	defer db.Close()

	repo := NewPricesRepository(db)
	ctx := context.Background()

	t.Run("upsert symbol is stable", func(t *testing.T) {
		var wg sync.WaitGroup
		ids := make([]int64, 8)
		errs := make([]error, 8)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ids[i], errs[i] = repo.UpsertSymbol(ctx, "AAPL")
			}(i)
		}
		wg.Wait()
		for i := range ids {
			if errs[i] != nil {
				t.Fatalf("upsert %d: %v", i, errs[i])
			}
			if ids[i] != ids[0] {
				t.Fatalf("stock_id diverged: %v", ids)
			}
		}
		if n := countRows(t, db, `SELECT COUNT(*) FROM stocks WHERE symbol = $1`, "AAPL"); n != 1 {
			t.Fatalf("want 1 stock row, got %d", n)
		}
	})

	t.Run("load is idempotent", func(t *testing.T) {
		id, err := repo.UpsertSymbol(ctx, "MSFT")
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		rows := sampleRows(5)

		for i := 0; i < 2; i++ {
			if _, err := repo.LoadDailyPrices(ctx, id, rows); err != nil {
				t.Fatalf("load %d: %v", i, err)
			}
		}
		if n := countRows(t, db, `SELECT COUNT(*) FROM daily_prices WHERE stock_id = $1`, id); n != 5 {
			t.Fatalf("want 5 rows after two loads, got %d", n)
		}

		stored, err := repo.GetDailyPrices(ctx, id, nil, nil)
		if err != nil {
			t.Fatalf("GetDailyPrices: %v", err)
		}
		if !math.IsNaN(stored[0].Open) || stored[0].LogReturn.Valid {
			t.Fatalf("NULLs lost: %+v", stored[0])
		}
		if stored[4].Close != rows[4].Close || stored[4].LogReturn.Float64 != rows[4].LogReturn.Float64 {
			t.Fatalf("values differ: stored=%+v input=%+v", stored[4], rows[4])
		}
	})

	t.Run("reload overwrites derived fields", func(t *testing.T) {
		id, err := repo.UpsertSymbol(ctx, "NVDA")
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		rows := sampleRows(3)
		if _, err := repo.LoadDailyPrices(ctx, id, rows); err != nil {
			t.Fatalf("load: %v", err)
		}
		rows[2].MA20d = null.FloatFrom(42)
		rows[2].Close = 250
		if _, err := repo.LoadDailyPrices(ctx, id, rows[2:]); err != nil {
			t.Fatalf("reload: %v", err)
		}

		stored, err := repo.GetDailyPrices(ctx, id, &rows[2].Date, &rows[2].Date)
		if err != nil || len(stored) != 1 {
			t.Fatalf("GetDailyPrices: %+v %v", stored, err)
		}
		if stored[0].Close != 250 || stored[0].MA20d.Float64 != 42 {
			t.Fatalf("not overwritten: %+v", stored[0])
		}
	})

	t.Run("last loaded date", func(t *testing.T) {
		id, err := repo.UpsertSymbol(ctx, "EMPTY")
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if _, ok, err := repo.GetLastLoadedDate(ctx, id); err != nil || ok {
			t.Fatalf("empty: ok=%v err=%v", ok, err)
		}

		msft, _ := repo.UpsertSymbol(ctx, "MSFT")
		last, ok, err := repo.GetLastLoadedDate(ctx, msft)
		if err != nil || !ok || !last.Equal(day(5)) {
			t.Fatalf("want %s got %s ok=%v err=%v", day(5), last, ok, err)
		}
	})

	t.Run("unknown stock is an integrity error", func(t *testing.T) {
		_, err := repo.LoadDailyPrices(ctx, 999999, sampleRows(1))
		wantLoadError(t, err, KindIntegrity)
	})
}
