package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/baxromumarov/portal-scraper/internal/model"
)

// Postgres upserts records into the jobs table and logs failed tasks in
// scrape_failures.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(connStr string) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// RunMigrations executes the SQL file at schemaPath.
func (p *Postgres) RunMigrations(ctx context.Context, schemaPath string) error {
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := p.db.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (p *Postgres) Emit(ctx context.Context, res model.ScrapeResult) error {
	if res.Record == nil {
		return p.insertFailure(ctx, res)
	}
	return p.upsertJob(ctx, res)
}

func (p *Postgres) upsertJob(ctx context.Context, res model.ScrapeResult) error {
	rec := res.Record
	_, err := p.db.ExecContext(ctx, `
INSERT INTO jobs (url, portal, job_id, title, company, location, description, salary, posted_at, status, strategy, missing_fields, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
ON CONFLICT (url) DO UPDATE SET
    job_id = COALESCE(NULLIF(EXCLUDED.job_id, ''), jobs.job_id),
    title = EXCLUDED.title,
    company = EXCLUDED.company,
    location = EXCLUDED.location,
    description = EXCLUDED.description,
    salary = EXCLUDED.salary,
    posted_at = COALESCE(jobs.posted_at, EXCLUDED.posted_at),
    status = EXCLUDED.status,
    strategy = EXCLUDED.strategy,
    missing_fields = EXCLUDED.missing_fields,
    updated_at = NOW()
`, rec.URL, rec.SourcePortal, rec.JobID, rec.Title, rec.Company, rec.Location, rec.Description,
		rec.Salary, rec.PostedAt, string(res.Status), res.Strategy, strings.Join(res.Missing, ","))
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", rec.URL, err)
	}
	return nil
}

func (p *Postgres) insertFailure(ctx context.Context, res model.ScrapeResult) error {
	var kind, cause, message string
	if f := res.Failure; f != nil {
		kind, cause, message = f.Kind, f.Cause, f.Message
	}
	_, err := p.db.ExecContext(ctx, `
INSERT INTO scrape_failures (url, portal, kind, cause, message, attempts, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
`, res.URL, res.Portal, kind, cause, message, res.Attempts)
	if err != nil {
		return fmt.Errorf("insert failure %s: %w", res.URL, err)
	}
	return nil
}

// StoredJob is a row of the jobs table.
type StoredJob struct {
	model.JobRecord
	Status    string    `json:"status"`
	Strategy  string    `json:"strategy"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListJobs returns stored jobs, newest first.
func (p *Postgres) ListJobs(ctx context.Context, portal string, limit, offset int) ([]StoredJob, error) {
	limit = clampLimit(limit, 20, 200)
	if offset < 0 {
		offset = 0
	}

	rows, err := p.db.QueryContext(ctx, `
SELECT url, portal, job_id, title, company, location, description, salary, posted_at, status, strategy, created_at, updated_at
FROM jobs
WHERE $1 = '' OR portal = $1
ORDER BY COALESCE(posted_at, created_at) DESC
LIMIT $2 OFFSET $3
`, portal, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []StoredJob
	for rows.Next() {
		var (
			j        StoredJob
			postedAt sql.NullTime
		)
		if err := rows.Scan(
			&j.URL,
			&j.SourcePortal,
			&j.JobID,
			&j.Title,
			&j.Company,
			&j.Location,
			&j.Description,
			&j.Salary,
			&postedAt,
			&j.Status,
			&j.Strategy,
			&j.CreatedAt,
			&j.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if postedAt.Valid {
			t := postedAt.Time
			j.PostedAt = &t
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func clampLimit(limit int, defaultLimit, maxLimit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// DeleteOldJobs removes jobs whose posting (or first sighting) is older than
// olderThan.
func (p *Postgres) DeleteOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := p.db.ExecContext(ctx, `
DELETE FROM jobs
WHERE COALESCE(posted_at, created_at) < $1
`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
