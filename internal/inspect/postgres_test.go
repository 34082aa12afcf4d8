package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ---------------------------------------------------------------------------
// Test helpers: mock DB types
// ---------------------------------------------------------------------------

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockDB implements the DB interface for testing. Exec invocations are
// recorded so tests can assert on the SQL and bound arguments.
type mockDB struct {
	execFunc  func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	execCalls []execCall
}

type execCall struct {
	sql  string
	args []any
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execCalls = append(m.execCalls, execCall{sql: sql, args: args})
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func (m *mockDB) lastExec(t *testing.T) execCall {
	t.Helper()
	if len(m.execCalls) == 0 {
		t.Fatal("expected at least one Exec call")
	}
	return m.execCalls[len(m.execCalls)-1]
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestPostgresStore_Migrate(t *testing.T) {
	db := &mockDB{}
	store := NewPostgresStore(db)

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	call := db.lastExec(t)
	for _, table := range []string{"inspection_reports", "part_orders", "form_submissions"} {
		if !strings.Contains(call.sql, table) {
			t.Errorf("migrate DDL missing table %q", table)
		}
	}
}

func TestPostgresStore_SubmitReport(t *testing.T) {
	db := &mockDB{}
	store := NewPostgresStore(db)
	eq := Equipment{ID: "pump-7", Model: "HX-200"}

	res := &Result{
		Status:    "anomalies_found",
		Component: "hydraulic pump",
		Anomalies: []Anomaly{
			{Severity: "high", Issue: "seal leak", Description: "fluid residue near the output seal"},
			{Severity: "", Issue: "unrated"},
			{Severity: "low", Issue: ""},
		},
	}

	receipt, err := store.SubmitReport(context.Background(), eq, res)
	if err != nil {
		t.Fatalf("SubmitReport() error = %v", err)
	}
	if receipt.ID == "" {
		t.Error("expected non-empty receipt ID")
	}
	if receipt.Accepted != 1 {
		t.Errorf("Accepted = %d, want 1", receipt.Accepted)
	}
	if len(receipt.Rejected) != 2 {
		t.Fatalf("Rejected = %d entries, want 2", len(receipt.Rejected))
	}
	if receipt.Rejected[0].Index != 2 || receipt.Rejected[0].Message != "missing severity" {
		t.Errorf("Rejected[0] = %+v, want index 2 / missing severity", receipt.Rejected[0])
	}
	if receipt.Rejected[1].Index != 3 || receipt.Rejected[1].Message != "missing issue summary" {
		t.Errorf("Rejected[1] = %+v, want index 3 / missing issue summary", receipt.Rejected[1])
	}

	call := db.lastExec(t)
	if !strings.Contains(call.sql, "inspection_reports") {
		t.Errorf("insert SQL = %q, want inspection_reports insert", call.sql)
	}
	if got := call.args[1]; got != "pump-7" {
		t.Errorf("equipment_id arg = %v, want pump-7", got)
	}
	var stored []Anomaly
	if err := json.Unmarshal(call.args[5].([]byte), &stored); err != nil {
		t.Fatalf("unmarshal stored anomalies: %v", err)
	}
	if len(stored) != 1 || stored[0].Issue != "seal leak" {
		t.Errorf("stored anomalies = %+v, want only the seal leak", stored)
	}
}

func TestPostgresStore_SubmitReport_NilResult(t *testing.T) {
	store := NewPostgresStore(&mockDB{})
	if _, err := store.SubmitReport(context.Background(), Equipment{ID: "x"}, nil); err == nil {
		t.Fatal("expected error for nil result")
	}
}

func TestPostgresStore_SubmitOrder(t *testing.T) {
	db := &mockDB{}
	store := NewPostgresStore(db)
	eq := Equipment{ID: "pump-7"}

	parts := []Part{
		{Name: "output seal", Number: "OS-51", Quantity: 2},
		{Name: "", Quantity: 1},
		{Name: "gasket", Quantity: 0},
	}

	receipt, err := store.SubmitOrder(context.Background(), eq, parts)
	if err != nil {
		t.Fatalf("SubmitOrder() error = %v", err)
	}
	if receipt.Accepted != 1 {
		t.Errorf("Accepted = %d, want 1", receipt.Accepted)
	}
	if len(receipt.Rejected) != 2 {
		t.Fatalf("Rejected = %d entries, want 2", len(receipt.Rejected))
	}
	if receipt.Rejected[1].Message != "quantity must be positive" {
		t.Errorf("Rejected[1].Message = %q", receipt.Rejected[1].Message)
	}

	call := db.lastExec(t)
	if !strings.Contains(call.sql, "part_orders") {
		t.Errorf("insert SQL = %q, want part_orders insert", call.sql)
	}
}

func TestPostgresStore_SubmitOrder_NoValidParts(t *testing.T) {
	db := &mockDB{}
	store := NewPostgresStore(db)

	_, err := store.SubmitOrder(context.Background(), Equipment{ID: "x"}, []Part{{Name: ""}})
	if err == nil {
		t.Fatal("expected error when every part is rejected")
	}
	if len(db.execCalls) != 0 {
		t.Errorf("Exec called %d times, want 0", len(db.execCalls))
	}
}

func TestPostgresStore_SubmitForm(t *testing.T) {
	db := &mockDB{}
	store := NewPostgresStore(db)

	receipt, err := store.SubmitForm(context.Background(), "maintenance_log", map[string]any{
		"technician": "r.alvarez",
		"duration":   45,
	})
	if err != nil {
		t.Fatalf("SubmitForm() error = %v", err)
	}
	if receipt.Accepted != 2 {
		t.Errorf("Accepted = %d, want 2", receipt.Accepted)
	}

	call := db.lastExec(t)
	if got := call.args[1]; got != "maintenance_log" {
		t.Errorf("form_type arg = %v, want maintenance_log", got)
	}
}

func TestPostgresStore_SubmitForm_EmptyType(t *testing.T) {
	store := NewPostgresStore(&mockDB{})
	if _, err := store.SubmitForm(context.Background(), "", nil); err == nil {
		t.Fatal("expected error for empty form type")
	}
}

func TestPostgresStore_ExecFailure(t *testing.T) {
	db := &mockDB{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, errors.New("connection refused")
		},
	}
	store := NewPostgresStore(db)

	_, err := store.SubmitForm(context.Background(), "maintenance_log", nil)
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("SubmitForm() error = %v, want wrapped connection error", err)
	}
}
