package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadpipe/internal/db"
	"github.com/sells-group/leadpipe/internal/model"
)

// pgQuerier is the query surface shared by db.Pool and pgx.Tx, so the same
// store methods run inside and outside a transaction.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	q       pgQuerier
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest pipeline paths.
var preparedStatements = map[string]string{
	"insert_lead":       `INSERT INTO leads (id, tenant_id, email, fit_score, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"get_lead_by_email": `SELECT data FROM leads WHERE tenant_id = $1 AND email = $2`,
	"update_lead":       `UPDATE leads SET email = $1, fit_score = $2, data = $3, updated_at = $4 WHERE id = $5`,
	"insert_assignment": `INSERT INTO assignments (id, tenant_id, lead_id, icp_id, bucket, score, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"update_assignment": `UPDATE assignments SET bucket = $1, score = $2, data = $3, updated_at = $4 WHERE id = $5`,
	"insert_activity":   `INSERT INTO stage_activities (id, tenant_id, assignment_id, data, created_at) VALUES ($1, $2, $3, $4, $5)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, q: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., bulk ingestion via COPY).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS raw_records (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id  TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leads (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id  TEXT NOT NULL,
	email      TEXT NOT NULL,
	fit_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS icps (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id  TEXT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT true,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS assignments (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id  TEXT NOT NULL,
	lead_id    TEXT NOT NULL REFERENCES leads(id),
	icp_id     TEXT NOT NULL REFERENCES icps(id),
	bucket     TEXT NOT NULL,
	score      DOUBLE PRECISION NOT NULL DEFAULT 0,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stage_activities (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id     TEXT NOT NULL,
	assignment_id TEXT NOT NULL,
	data          JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rejections (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id     TEXT NOT NULL,
	assignment_id TEXT NOT NULL,
	data          JSONB NOT NULL,
	rejected_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_tenant_email ON leads(tenant_id, email);
CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_lead_icp ON assignments(lead_id, icp_id);
CREATE INDEX IF NOT EXISTS idx_raw_records_tenant_status ON raw_records(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_icps_tenant_active ON icps(tenant_id, active);
CREATE INDEX IF NOT EXISTS idx_assignments_tenant_icp_bucket ON assignments(tenant_id, icp_id, bucket);
CREATE INDEX IF NOT EXISTS idx_stage_activities_assignment ON stage_activities(assignment_id);
CREATE INDEX IF NOT EXISTS idx_rejections_assignment ON rejections(assignment_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.q.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.q.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// WithTx runs fn inside a single transaction. The store handle passed to fn
// shares the connection pool but routes all queries through the transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	if err := fn(&PostgresStore{pool: s.pool, q: pgtx}); err != nil {
		_ = pgtx.Rollback(ctx)
		return err
	}
	return eris.Wrap(pgtx.Commit(ctx), "postgres: commit tx")
}

// isUniqueViolation reports whether err is a PostgreSQL 23505 error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Raw records

func (s *PostgresStore) CreateRawRecord(ctx context.Context, rec *model.RawRecord) (*model.RawRecord, error) {
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
		return nil, eris.Wrap(err, "postgres: marshal raw record")
	}

	_, err = s.q.Exec(ctx,
		`INSERT INTO raw_records (id, tenant_id, status, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		out.ID, out.TenantID, string(out.Status), data, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert raw record")
	}
	return &out, nil
}

func (s *PostgresStore) GetRawRecord(ctx context.Context, id string) (*model.RawRecord, error) {
	var data []byte
	err := s.q.QueryRow(ctx, `SELECT data FROM raw_records WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get raw record %s", id)
	}

	var rec model.RawRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal raw record")
	}
	return &rec, nil
}

func (s *PostgresStore) UpdateRawRecord(ctx context.Context, rec *model.RawRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal raw record")
	}

	tag, err := s.q.Exec(ctx,
		`UPDATE raw_records SET status = $1, data = $2, updated_at = $3 WHERE id = $4`,
		string(rec.Status), data, rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update raw record %s", rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("raw record not found: %s", rec.ID)
	}
	return nil
}

func (s *PostgresStore) ListPendingRawRecords(ctx context.Context, tenantID string, limit int) ([]model.RawRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.q.Query(ctx,
		`SELECT data FROM raw_records WHERE tenant_id = $1 AND status = $2 ORDER BY created_at ASC LIMIT $3`,
		tenantID, string(model.ProcessingPending), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending raw records")
	}
	defer rows.Close()

	var recs []model.RawRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan raw record")
		}
		var rec model.RawRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal raw record")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list pending raw records iterate")
}

// Leads

func (s *PostgresStore) CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, error) {
	out := *lead
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	out.CreatedAt = now
	out.UpdatedAt = now

	data, err := json.Marshal(&out)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal lead")
	}

	_, err = s.q.Exec(ctx,
		`INSERT INTO leads (id, tenant_id, email, fit_score, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		out.ID, out.TenantID, out.Email, out.FitScore, data, now, now,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicateLead
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert lead")
	}
	return &out, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	return s.scanLead(s.q.QueryRow(ctx, `SELECT data FROM leads WHERE id = $1`, id))
}

func (s *PostgresStore) GetLeadByEmail(ctx context.Context, tenantID, email string) (*model.Lead, error) {
	return s.scanLead(s.q.QueryRow(ctx,
		`SELECT data FROM leads WHERE tenant_id = $1 AND email = $2`,
		tenantID, email,
	))
}

func (s *PostgresStore) scanLead(row pgx.Row) (*model.Lead, error) {
	var data []byte
	err := row.Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get lead")
	}

	var lead model.Lead
	if err := json.Unmarshal(data, &lead); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal lead")
	}
	return &lead, nil
}

func (s *PostgresStore) UpdateLead(ctx context.Context, lead *model.Lead) error {
	lead.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(lead)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal lead")
	}

	tag, err := s.q.Exec(ctx,
		`UPDATE leads SET email = $1, fit_score = $2, data = $3, updated_at = $4 WHERE id = $5`,
		lead.Email, lead.FitScore, data, lead.UpdatedAt, lead.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead %s", lead.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", lead.ID)
	}
	return nil
}

// ICPs

func (s *PostgresStore) CreateICP(ctx context.Context, icp *model.ICP) (*model.ICP, error) {
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
		return nil, eris.Wrap(err, "postgres: marshal icp")
	}

	_, err = s.q.Exec(ctx,
		`INSERT INTO icps (id, tenant_id, active, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		out.ID, out.TenantID, out.Active, data, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert icp")
	}
	return &out, nil
}

func (s *PostgresStore) GetICP(ctx context.Context, id string) (*model.ICP, error) {
	var data []byte
	err := s.q.QueryRow(ctx, `SELECT data FROM icps WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get icp %s", id)
	}

	var icp model.ICP
	if err := json.Unmarshal(data, &icp); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal icp")
	}
	return &icp, nil
}

func (s *PostgresStore) ListActiveICPs(ctx context.Context, tenantID string) ([]model.ICP, error) {
	rows, err := s.q.Query(ctx,
		`SELECT data FROM icps WHERE tenant_id = $1 AND active = true ORDER BY created_at ASC`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active icps")
	}
	defer rows.Close()

	var icps []model.ICP
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan icp")
		}
		var icp model.ICP
		if err := json.Unmarshal(data, &icp); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal icp")
		}
		icps = append(icps, icp)
	}
	return icps, eris.Wrap(rows.Err(), "postgres: list active icps iterate")
}

// Assignments

func (s *PostgresStore) CreateAssignment(ctx context.Context, a *model.Assignment) (*model.Assignment, error) {
	out := *a
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	out.CreatedAt = now
	out.UpdatedAt = now

	data, err := json.Marshal(&out)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal assignment")
	}

	_, err = s.q.Exec(ctx,
		`INSERT INTO assignments (id, tenant_id, lead_id, icp_id, bucket, score, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		out.ID, out.TenantID, out.LeadID, out.ICPID, string(out.Bucket), out.Score, data, now, now,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicateAssignment
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert assignment")
	}
	return &out, nil
}

func (s *PostgresStore) GetAssignment(ctx context.Context, id string) (*model.Assignment, error) {
	return s.scanAssignment(s.q.QueryRow(ctx, `SELECT data FROM assignments WHERE id = $1`, id))
}

func (s *PostgresStore) GetAssignmentByPair(ctx context.Context, leadID, icpID string) (*model.Assignment, error) {
	return s.scanAssignment(s.q.QueryRow(ctx,
		`SELECT data FROM assignments WHERE lead_id = $1 AND icp_id = $2`,
		leadID, icpID,
	))
}

func (s *PostgresStore) scanAssignment(row pgx.Row) (*model.Assignment, error) {
	var data []byte
	err := row.Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get assignment")
	}

	var a model.Assignment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal assignment")
	}
	return &a, nil
}

func (s *PostgresStore) UpdateAssignment(ctx context.Context, a *model.Assignment) error {
	a.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal assignment")
	}

	tag, err := s.q.Exec(ctx,
		`UPDATE assignments SET bucket = $1, score = $2, data = $3, updated_at = $4 WHERE id = $5`,
		string(a.Bucket), a.Score, data, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update assignment %s", a.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("assignment not found: %s", a.ID)
	}
	return nil
}

func (s *PostgresStore) ListAssignments(ctx context.Context, filter AssignmentFilter) ([]model.Assignment, error) {
	query := `SELECT data FROM assignments WHERE true`
	args := []any{}
	argIdx := 1

	if filter.TenantID != "" {
		query += fmt.Sprintf(` AND tenant_id = $%d`, argIdx)
		args = append(args, filter.TenantID)
		argIdx++
	}
	if filter.ICPID != "" {
		query += fmt.Sprintf(` AND icp_id = $%d`, argIdx)
		args = append(args, filter.ICPID)
		argIdx++
	}
	if filter.Bucket != "" {
		query += fmt.Sprintf(` AND bucket = $%d`, argIdx)
		args = append(args, string(filter.Bucket))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assignments")
	}
	defer rows.Close()

	var assignments []model.Assignment
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan assignment")
		}
		var a model.Assignment
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal assignment")
		}
		assignments = append(assignments, a)
	}
	return assignments, eris.Wrap(rows.Err(), "postgres: list assignments iterate")
}

func (s *PostgresStore) BucketStats(ctx context.Context, tenantID, icpID string) ([]model.BucketStats, error) {
	rows, err := s.q.Query(ctx,
		`SELECT bucket, COUNT(*), AVG(score) FROM assignments WHERE tenant_id = $1 AND icp_id = $2 GROUP BY bucket ORDER BY bucket`,
		tenantID, icpID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: bucket stats")
	}
	defer rows.Close()

	var stats []model.BucketStats
	for rows.Next() {
		var st model.BucketStats
		var avg float64
		if err := rows.Scan(&st.Bucket, &st.LeadCount, &avg); err != nil {
			return nil, eris.Wrap(err, "postgres: scan bucket stats")
		}
		st.AvgScore = &avg
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "postgres: bucket stats iterate")
}

// Audit trail

func (s *PostgresStore) InsertStageActivity(ctx context.Context, act *model.StageActivity) error {
	if act.ID == "" {
		act.ID = uuid.New().String()
	}
	if act.CreatedAt.IsZero() {
		act.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(act)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stage activity")
	}

	_, err = s.q.Exec(ctx,
		`INSERT INTO stage_activities (id, tenant_id, assignment_id, data, created_at) VALUES ($1, $2, $3, $4, $5)`,
		act.ID, act.TenantID, act.AssignmentID, data, act.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert stage activity")
}

func (s *PostgresStore) InsertRejection(ctx context.Context, r *model.RejectionTracking) (*model.RejectionTracking, error) {
	out := *r
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.RejectedAt.IsZero() {
		out.RejectedAt = time.Now().UTC()
	}

	data, err := json.Marshal(&out)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal rejection")
	}

	_, err = s.q.Exec(ctx,
		`INSERT INTO rejections (id, tenant_id, assignment_id, data, rejected_at) VALUES ($1, $2, $3, $4, $5)`,
		out.ID, out.TenantID, out.AssignmentID, data, out.RejectedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert rejection")
	}
	return &out, nil
}

func (s *PostgresStore) GetRejectionByAssignment(ctx context.Context, assignmentID string) (*model.RejectionTracking, error) {
	var data []byte
	err := s.q.QueryRow(ctx,
		`SELECT data FROM rejections WHERE assignment_id = $1 ORDER BY rejected_at DESC LIMIT 1`,
		assignmentID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get rejection for assignment %s", assignmentID)
	}

	var r model.RejectionTracking
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal rejection")
	}
	return &r, nil
}

func (s *PostgresStore) OverrideRejection(ctx context.Context, rejectionID, userID string) error {
	var data []byte
	err := s.q.QueryRow(ctx, `SELECT data FROM rejections WHERE id = $1`, rejectionID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Errorf("rejection not found: %s", rejectionID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: get rejection %s", rejectionID)
	}

	var r model.RejectionTracking
	if err := json.Unmarshal(data, &r); err != nil {
		return eris.Wrap(err, "postgres: unmarshal rejection")
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
		return eris.Wrap(err, "postgres: marshal rejection")
	}
	tag, err := s.q.Exec(ctx, `UPDATE rejections SET data = $1 WHERE id = $2`, updated, rejectionID)
	if err != nil {
		return eris.Wrapf(err, "postgres: override rejection %s", rejectionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("rejection not found: %s", rejectionID)
	}
	return nil
}
