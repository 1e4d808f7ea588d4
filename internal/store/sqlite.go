package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadpipe/internal/model"
)

// sqlQuerier is the query surface shared by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
	q  sqlQuerier
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// The pragmas below are connection-scoped; a single pooled connection
	// guarantees every statement sees them (and sidesteps SQLITE_BUSY on
	// concurrent writers).
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, q: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS raw_records (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS leads (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	email      TEXT NOT NULL,
	fit_score  REAL NOT NULL DEFAULT 0,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS icps (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	active     INTEGER NOT NULL DEFAULT 1,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS assignments (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	lead_id    TEXT NOT NULL REFERENCES leads(id),
	icp_id     TEXT NOT NULL REFERENCES icps(id),
	bucket     TEXT NOT NULL,
	score      REAL NOT NULL DEFAULT 0,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS stage_activities (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	assignment_id TEXT NOT NULL,
	data          TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS rejections (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	assignment_id TEXT NOT NULL,
	data          TEXT NOT NULL,
	rejected_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_tenant_email ON leads(tenant_id, email);
CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_lead_icp ON assignments(lead_id, icp_id);
CREATE INDEX IF NOT EXISTS idx_raw_records_tenant_status ON raw_records(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_icps_tenant_active ON icps(tenant_id, active);
CREATE INDEX IF NOT EXISTS idx_assignments_tenant_icp_bucket ON assignments(tenant_id, icp_id, bucket);
CREATE INDEX IF NOT EXISTS idx_stage_activities_assignment ON stage_activities(assignment_id);
CREATE INDEX IF NOT EXISTS idx_rejections_assignment ON rejections(assignment_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a single transaction. The store handle passed to fn
// routes all queries through the transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	sqltx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(&SQLiteStore{db: s.db, q: sqltx}); err != nil {
		_ = sqltx.Rollback()
		return err
	}
	return eris.Wrap(sqltx.Commit(), "sqlite: commit tx")
}

// isSQLiteUniqueViolation reports whether err is a unique-index conflict.
func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Raw records

func (s *SQLiteStore) CreateRawRecord(ctx context.Context, rec *model.RawRecord) (*model.RawRecord, error) {
	out := *rec
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	out.CreatedAt = now
	out.UpdatedAt = now
	if out.Status == "" {
		out.Status = model.ProcessingPending
	}

	data, err := json.Marshal(&out)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal raw record")
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO raw_records (id, tenant_id, status, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		out.ID, out.TenantID, string(out.Status), string(data), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert raw record")
	}
	return &out, nil
}

func (s *SQLiteStore) GetRawRecord(ctx context.Context, id string) (*model.RawRecord, error) {
	var data string
	err := s.q.QueryRowContext(ctx, `SELECT data FROM raw_records WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get raw record %s", id)
	}

	var rec model.RawRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal raw record")
	}
	return &rec, nil
}

func (s *SQLiteStore) UpdateRawRecord(ctx context.Context, rec *model.RawRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal raw record")
	}

	res, err := s.q.ExecContext(ctx,
		`UPDATE raw_records SET status = ?, data = ?, updated_at = ? WHERE id = ?`,
		string(rec.Status), string(data), rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update raw record %s", rec.ID)
	}
	return checkRowsAffected(res, "raw record", rec.ID)
}

func (s *SQLiteStore) ListPendingRawRecords(ctx context.Context, tenantID string, limit int) ([]model.RawRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT data FROM raw_records WHERE tenant_id = ? AND status = ? ORDER BY created_at ASC LIMIT ?`,
		tenantID, string(model.ProcessingPending), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending raw records")
	}
	defer rows.Close()

	var recs []model.RawRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan raw record")
		}
		var rec model.RawRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal raw record")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list pending raw records iterate")
}

// Leads

func (s *SQLiteStore) CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, error) {
	out := *lead
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	out.CreatedAt = now
	out.UpdatedAt = now

	data, err := json.Marshal(&out)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal lead")
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO leads (id, tenant_id, email, fit_score, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.TenantID, out.Email, out.FitScore, string(data), now, now,
	)
	if isSQLiteUniqueViolation(err) {
		return nil, ErrDuplicateLead
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert lead")
	}
	return &out, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	return scanSQLiteLead(s.q.QueryRowContext(ctx, `SELECT data FROM leads WHERE id = ?`, id))
}

func (s *SQLiteStore) GetLeadByEmail(ctx context.Context, tenantID, email string) (*model.Lead, error) {
	return scanSQLiteLead(s.q.QueryRowContext(ctx,
		`SELECT data FROM leads WHERE tenant_id = ? AND email = ?`,
		tenantID, email,
	))
}

func scanSQLiteLead(row *sql.Row) (*model.Lead, error) {
	var data string
	err := row.Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get lead")
	}

	var lead model.Lead
	if err := json.Unmarshal([]byte(data), &lead); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal lead")
	}
	return &lead, nil
}

func (s *SQLiteStore) UpdateLead(ctx context.Context, lead *model.Lead) error {
	lead.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(lead)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal lead")
	}

	res, err := s.q.ExecContext(ctx,
		`UPDATE leads SET email = ?, fit_score = ?, data = ?, updated_at = ? WHERE id = ?`,
		lead.Email, lead.FitScore, string(data), lead.UpdatedAt, lead.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead %s", lead.ID)
	}
	return checkRowsAffected(res, "lead", lead.ID)
}

// ICPs

func (s *SQLiteStore) CreateICP(ctx context.Context, icp *model.ICP) (*model.ICP, error) {
	if err := icp.Validate(); err != nil {
		return nil, err
	}

	out := *icp
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	out.CreatedAt = now
	out.UpdatedAt = now

	data, err := json.Marshal(&out)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal icp")
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO icps (id, tenant_id, active, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		out.ID, out.TenantID, out.Active, string(data), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert icp")
	}
	return &out, nil
}

func (s *SQLiteStore) GetICP(ctx context.Context, id string) (*model.ICP, error) {
	var data string
	err := s.q.QueryRowContext(ctx, `SELECT data FROM icps WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get icp %s", id)
	}

	var icp model.ICP
	if err := json.Unmarshal([]byte(data), &icp); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal icp")
	}
	return &icp, nil
}

func (s *SQLiteStore) ListActiveICPs(ctx context.Context, tenantID string) ([]model.ICP, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT data FROM icps WHERE tenant_id = ? AND active = 1 ORDER BY created_at ASC`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active icps")
	}
	defer rows.Close()

	var icps []model.ICP
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan icp")
		}
		var icp model.ICP
		if err := json.Unmarshal([]byte(data), &icp); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal icp")
		}
		icps = append(icps, icp)
	}
	return icps, eris.Wrap(rows.Err(), "sqlite: list active icps iterate")
}

// Assignments

func (s *SQLiteStore) CreateAssignment(ctx context.Context, a *model.Assignment) (*model.Assignment, error) {
	out := *a
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	out.CreatedAt = now
	out.UpdatedAt = now

	data, err := json.Marshal(&out)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal assignment")
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO assignments (id, tenant_id, lead_id, icp_id, bucket, score, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.TenantID, out.LeadID, out.ICPID, string(out.Bucket), out.Score, string(data), now, now,
	)
	if isSQLiteUniqueViolation(err) {
		return nil, ErrDuplicateAssignment
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert assignment")
	}
	return &out, nil
}

func (s *SQLiteStore) GetAssignment(ctx context.Context, id string) (*model.Assignment, error) {
	return scanSQLiteAssignment(s.q.QueryRowContext(ctx, `SELECT data FROM assignments WHERE id = ?`, id))
}

func (s *SQLiteStore) GetAssignmentByPair(ctx context.Context, leadID, icpID string) (*model.Assignment, error) {
	return scanSQLiteAssignment(s.q.QueryRowContext(ctx,
		`SELECT data FROM assignments WHERE lead_id = ? AND icp_id = ?`,
		leadID, icpID,
	))
}

func scanSQLiteAssignment(row *sql.Row) (*model.Assignment, error) {
	var data string
	err := row.Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get assignment")
	}

	var a model.Assignment
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal assignment")
	}
	return &a, nil
}

func (s *SQLiteStore) UpdateAssignment(ctx context.Context, a *model.Assignment) error {
	a.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal assignment")
	}

	res, err := s.q.ExecContext(ctx,
		`UPDATE assignments SET bucket = ?, score = ?, data = ?, updated_at = ? WHERE id = ?`,
		string(a.Bucket), a.Score, string(data), a.UpdatedAt, a.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update assignment %s", a.ID)
	}
	return checkRowsAffected(res, "assignment", a.ID)
}

func (s *SQLiteStore) ListAssignments(ctx context.Context, filter AssignmentFilter) ([]model.Assignment, error) {
	query := `SELECT data FROM assignments WHERE 1=1`
	var args []any

	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.ICPID != "" {
		query += ` AND icp_id = ?`
		args = append(args, filter.ICPID)
	}
	if filter.Bucket != "" {
		query += ` AND bucket = ?`
		args = append(args, string(filter.Bucket))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assignments")
	}
	defer rows.Close()

	var assignments []model.Assignment
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan assignment")
		}
		var a model.Assignment
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal assignment")
		}
		assignments = append(assignments, a)
	}
	return assignments, eris.Wrap(rows.Err(), "sqlite: list assignments iterate")
}

func (s *SQLiteStore) BucketStats(ctx context.Context, tenantID, icpID string) ([]model.BucketStats, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT bucket, COUNT(*), AVG(score) FROM assignments WHERE tenant_id = ? AND icp_id = ? GROUP BY bucket ORDER BY bucket`,
		tenantID, icpID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: bucket stats")
	}
	defer rows.Close()

	var stats []model.BucketStats
	for rows.Next() {
		var st model.BucketStats
		var avg float64
		if err := rows.Scan(&st.Bucket, &st.LeadCount, &avg); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bucket stats")
		}
		st.AvgScore = &avg
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: bucket stats iterate")
}

// Audit trail

func (s *SQLiteStore) InsertStageActivity(ctx context.Context, act *model.StageActivity) error {
	if act.ID == "" {
		act.ID = uuid.New().String()
	}
	if act.CreatedAt.IsZero() {
		act.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(act)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stage activity")
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO stage_activities (id, tenant_id, assignment_id, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		act.ID, act.TenantID, act.AssignmentID, string(data), act.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert stage activity")
}

func (s *SQLiteStore) InsertRejection(ctx context.Context, r *model.RejectionTracking) (*model.RejectionTracking, error) {
	out := *r
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.RejectedAt.IsZero() {
		out.RejectedAt = time.Now().UTC()
	}

	data, err := json.Marshal(&out)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal rejection")
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO rejections (id, tenant_id, assignment_id, data, rejected_at) VALUES (?, ?, ?, ?, ?)`,
		out.ID, out.TenantID, out.AssignmentID, string(data), out.RejectedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert rejection")
	}
	return &out, nil
}

func (s *SQLiteStore) GetRejectionByAssignment(ctx context.Context, assignmentID string) (*model.RejectionTracking, error) {
	var data string
	err := s.q.QueryRowContext(ctx,
		`SELECT data FROM rejections WHERE assignment_id = ? ORDER BY rejected_at DESC LIMIT 1`,
		assignmentID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get rejection for assignment %s", assignmentID)
	}

	var r model.RejectionTracking
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal rejection")
	}
	return &r, nil
}

func (s *SQLiteStore) OverrideRejection(ctx context.Context, rejectionID, userID string) error {
	var data string
	err := s.q.QueryRowContext(ctx, `SELECT data FROM rejections WHERE id = ?`, rejectionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Errorf("rejection not found: %s", rejectionID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: get rejection %s", rejectionID)
	}

	var r model.RejectionTracking
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal rejection")
	}
	if !r.CanOverride {
		return eris.Errorf("rejection %s cannot be overridden", rejectionID)
	}
	if r.OverriddenAt != nil {
		return eris.Errorf("rejection %s already overridden by %s", rejectionID, r.OverriddenBy)
	}

	now := time.Now().UTC()
	r.OverriddenBy = userID
	r.OverriddenAt = &now

	updated, err := json.Marshal(&r)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal rejection")
	}
	res, err := s.q.ExecContext(ctx, `UPDATE rejections SET data = ? WHERE id = ?`, string(updated), rejectionID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: override rejection %s", rejectionID)
	}
	return checkRowsAffected(res, "rejection", rejectionID)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
