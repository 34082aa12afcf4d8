package inspect

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the inspection submission tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS inspection_reports (
    id           TEXT PRIMARY KEY,
    equipment_id TEXT NOT NULL,
    model        TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT '',
    component    TEXT NOT NULL DEFAULT '',
    anomalies    JSONB NOT NULL DEFAULT '[]',
    parts        JSONB NOT NULL DEFAULT '[]',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_inspection_reports_equipment ON inspection_reports(equipment_id);

CREATE TABLE IF NOT EXISTS part_orders (
    id           TEXT PRIMARY KEY,
    equipment_id TEXT NOT NULL,
    model        TEXT NOT NULL DEFAULT '',
    parts        JSONB NOT NULL DEFAULT '[]',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_part_orders_equipment ON part_orders(equipment_id);

CREATE TABLE IF NOT EXISTS form_submissions (
    id         TEXT PRIMARY KEY,
    form_type  TEXT NOT NULL,
    fields     JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_form_submissions_type ON form_submissions(form_type);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [ReportSink] backed by a PostgreSQL database.
// Structured sub-fields (anomalies, parts, form fields) are stored as JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ ReportSink = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the
// submission tables and indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("inspect: migrate: %w", err)
	}
	return nil
}

// SubmitReport persists the anomalies of an inspection result as a report for
// the given equipment. Anomalies missing a severity or an issue summary are
// rejected individually; the remainder are accepted.
func (s *PostgresStore) SubmitReport(ctx context.Context, eq Equipment, res *Result) (Receipt, error) {
	if res == nil {
		return Receipt{}, fmt.Errorf("inspect: submit report: nil result")
	}

	var (
		accepted []Anomaly
		rejected []ItemError
	)
	for i, a := range res.Anomalies {
		switch {
		case a.Severity == "":
			rejected = append(rejected, ItemError{Index: i + 1, Message: "missing severity"})
		case a.Issue == "":
			rejected = append(rejected, ItemError{Index: i + 1, Message: "missing issue summary"})
		default:
			accepted = append(accepted, a)
		}
	}

	anomaliesJSON, err := json.Marshal(emptySlice(accepted))
	if err != nil {
		return Receipt{}, fmt.Errorf("inspect: marshal anomalies: %w", err)
	}
	partsJSON, err := json.Marshal(emptySlice(res.Parts))
	if err != nil {
		return Receipt{}, fmt.Errorf("inspect: marshal parts: %w", err)
	}

	const query = `
		INSERT INTO inspection_reports (id, equipment_id, model, status, component, anomalies, parts)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`

	id := uuid.NewString()
	if _, err := s.db.Exec(ctx, query, id, eq.ID, eq.Model, res.Status, res.Component, anomaliesJSON, partsJSON); err != nil {
		return Receipt{}, fmt.Errorf("inspect: submit report: %w", err)
	}
	return Receipt{ID: id, Accepted: len(accepted), Rejected: rejected}, nil
}

// SubmitOrder persists a part order for the given equipment. Parts without a
// name or with a non-positive quantity are rejected individually.
func (s *PostgresStore) SubmitOrder(ctx context.Context, eq Equipment, parts []Part) (Receipt, error) {
	if len(parts) == 0 {
		return Receipt{}, fmt.Errorf("inspect: submit order: no parts")
	}

	var (
		accepted []Part
		rejected []ItemError
	)
	for i, p := range parts {
		switch {
		case p.Name == "":
			rejected = append(rejected, ItemError{Index: i + 1, Message: "missing part name"})
		case p.Quantity <= 0:
			rejected = append(rejected, ItemError{Index: i + 1, Message: "quantity must be positive"})
		default:
			accepted = append(accepted, p)
		}
	}
	if len(accepted) == 0 {
		return Receipt{Rejected: rejected}, fmt.Errorf("inspect: submit order: no valid parts")
	}

	partsJSON, err := json.Marshal(accepted)
	if err != nil {
		return Receipt{}, fmt.Errorf("inspect: marshal parts: %w", err)
	}

	const query = `
		INSERT INTO part_orders (id, equipment_id, model, parts)
		VALUES ($1,$2,$3,$4)`

	id := uuid.NewString()
	if _, err := s.db.Exec(ctx, query, id, eq.ID, eq.Model, partsJSON); err != nil {
		return Receipt{}, fmt.Errorf("inspect: submit order: %w", err)
	}
	return Receipt{ID: id, Accepted: len(accepted), Rejected: rejected}, nil
}

// SubmitForm persists a free-form submission of the given type.
func (s *PostgresStore) SubmitForm(ctx context.Context, formType string, fields map[string]any) (Receipt, error) {
	if formType == "" {
		return Receipt{}, fmt.Errorf("inspect: submit form: empty form type")
	}

	fieldsJSON, err := json.Marshal(emptyMap(fields))
	if err != nil {
		return Receipt{}, fmt.Errorf("inspect: marshal fields: %w", err)
	}

	const query = `
		INSERT INTO form_submissions (id, form_type, fields)
		VALUES ($1,$2,$3)`

	id := uuid.NewString()
	if _, err := s.db.Exec(ctx, query, id, formType, fieldsJSON); err != nil {
		return Receipt{}, fmt.Errorf("inspect: submit form: %w", err)
	}
	return Receipt{ID: id, Accepted: len(fields), Rejected: nil}, nil
}

// emptySlice returns an empty non-nil slice when s is nil so JSONB columns
// store [] instead of null.
func emptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// emptyMap returns an empty non-nil map when m is nil so JSONB columns store
// {} instead of null.
func emptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
