// Package history implements the optional History/Report archiver: a
// Postgres store for per-run ValidationReport summaries (grounded on
// core/db's pgx/v5 pool) and an ArangoDB store for the keyword/cluster
// graph (built on github.com/arangodb/go-driver/v2's connection and
// collection calls).
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"keywordintel/core/db"
	"keywordintel/internal/model"
)

// PostgresStore archives ValidationReports and the keywords they
// accepted/rejected, for later audit and trend analysis.
type PostgresStore struct {
	db *db.DB
}

func NewPostgresStore(d *db.DB) *PostgresStore {
	return &PostgresStore{db: d}
}

// Migrate creates the tables PostgresStore needs if they don't already
// exist. Safe to call on every startup.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS validation_reports (
	run_id       TEXT PRIMARY KEY,
	total        INTEGER NOT NULL,
	accepted     INTEGER NOT NULL,
	rejected     INTEGER NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS validation_violations (
	id       BIGSERIAL PRIMARY KEY,
	run_id   TEXT NOT NULL REFERENCES validation_reports(run_id) ON DELETE CASCADE,
	term     TEXT NOT NULL,
	tag      TEXT NOT NULL,
	detail   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS keyword_history (
	id            BIGSERIAL PRIMARY KEY,
	run_id        TEXT NOT NULL,
	term          TEXT NOT NULL,
	search_volume INTEGER NOT NULL,
	cpc           DOUBLE PRECISION NOT NULL,
	competition   DOUBLE PRECISION NOT NULL,
	intent        TEXT NOT NULL,
	score         DOUBLE PRECISION NOT NULL,
	source        TEXT NOT NULL,
	collected_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_keyword_history_run_id ON keyword_history(run_id);
CREATE INDEX IF NOT EXISTS idx_keyword_history_term ON keyword_history(term);
`
	if _, err := s.db.Pool().Exec(ctx, ddl); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// SaveReport persists a ValidationReport and the full keyword set (both
// accepted and rejected) behind one transaction.
func (s *PostgresStore) SaveReport(ctx context.Context, report model.ValidationReport) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		generatedAt := report.GeneratedAt
		if generatedAt.IsZero() {
			generatedAt = time.Now()
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO validation_reports (run_id, total, accepted, rejected, generated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (run_id) DO UPDATE SET
				total = EXCLUDED.total,
				accepted = EXCLUDED.accepted,
				rejected = EXCLUDED.rejected,
				generated_at = EXCLUDED.generated_at`,
			report.RunID, report.Total, len(report.Accepted), len(report.Rejected), generatedAt,
		); err != nil {
			return fmt.Errorf("insert validation_reports: %w", err)
		}

		for _, v := range report.Violations {
			if _, err := tx.Exec(ctx, `
				INSERT INTO validation_violations (run_id, term, tag, detail)
				VALUES ($1, $2, $3, $4)`,
				report.RunID, v.Term, string(v.Tag), v.Detail,
			); err != nil {
				return fmt.Errorf("insert validation_violations: %w", err)
			}
		}

		for _, batch := range [][]model.Keyword{report.Accepted, report.Rejected} {
			for _, k := range batch {
				if _, err := tx.Exec(ctx, `
					INSERT INTO keyword_history
						(run_id, term, search_volume, cpc, competition, intent, score, source, collected_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
					report.RunID, k.Term, k.SearchVolume, k.CPC, k.Competition,
					string(k.Intent), k.Score, k.Source, nonZeroOr(k.CollectedAt, generatedAt),
				); err != nil {
					return fmt.Errorf("insert keyword_history: %w", err)
				}
			}
		}

		return nil
	})
}

// RecentTerms returns up to limit distinct terms collected for runID,
// most recently collected first. Used to seed mladjuster.FeedbackHistory
// lookups without re-deriving them from the live pipeline.
func (s *PostgresStore) RecentTerms(ctx context.Context, runID string, limit int) ([]string, error) {
	rows, err := s.db.Pool().Query(ctx, `
		SELECT term FROM keyword_history
		WHERE run_id = $1
		GROUP BY term
		ORDER BY MAX(collected_at) DESC
		LIMIT $2`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("query keyword_history: %w", err)
	}
	defer rows.Close()

	var terms []string
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, fmt.Errorf("scan term: %w", err)
		}
		terms = append(terms, term)
	}
	return terms, rows.Err()
}

func nonZeroOr(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}
