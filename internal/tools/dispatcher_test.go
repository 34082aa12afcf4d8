package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/techvox/techvox/internal/inspect"
)

// ---------------------------------------------------------------------------
// Test helpers: collaborator mocks
// ---------------------------------------------------------------------------

type mockVision struct {
	result   *inspect.Result
	err      error
	requests []inspect.Request
}

func (m *mockVision) Inspect(ctx context.Context, req inspect.Request) (*inspect.Result, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.result.Clone(), nil
}

type mockSink struct {
	receipt inspect.Receipt
	err     error

	reportCalls []*inspect.Result
	orderCalls  [][]inspect.Part
	formCalls   []formCall
}

type formCall struct {
	formType string
	fields   map[string]any
}

func (m *mockSink) SubmitReport(ctx context.Context, eq inspect.Equipment, res *inspect.Result) (inspect.Receipt, error) {
	m.reportCalls = append(m.reportCalls, res.Clone())
	return m.receipt, m.err
}

func (m *mockSink) SubmitOrder(ctx context.Context, eq inspect.Equipment, parts []inspect.Part) (inspect.Receipt, error) {
	m.orderCalls = append(m.orderCalls, parts)
	return m.receipt, m.err
}

func (m *mockSink) SubmitForm(ctx context.Context, formType string, fields map[string]any) (inspect.Receipt, error) {
	m.formCalls = append(m.formCalls, formCall{formType: formType, fields: fields})
	return m.receipt, m.err
}

type mockCamera struct {
	photo []byte
	err   error
}

func (m *mockCamera) CapturePhoto(ctx context.Context) ([]byte, error) {
	return m.photo, m.err
}

func sampleResult() *inspect.Result {
	return &inspect.Result{
		Status:    "anomalies_found",
		Component: "hydraulic pump",
		Anomalies: []inspect.Anomaly{
			{Severity: "high", Issue: "seal leak", Description: "fluid at the output seal"},
			{Severity: "medium", Issue: "corrosion", Description: "rust on the mounting bracket"},
			{Severity: "low", Issue: "loose bolt", Description: "bracket bolt under-torqued"},
		},
		Parts: []inspect.Part{{Name: "output seal", Number: "OS-51", Quantity: 1}},
	}
}

func newDispatcher(t *testing.T, vision *mockVision, sink *mockSink, opts ...Option) *Dispatcher {
	t.Helper()
	if vision == nil {
		vision = &mockVision{result: sampleResult()}
	}
	if sink == nil {
		sink = &mockSink{receipt: inspect.Receipt{ID: "rcpt-1", Accepted: 1}}
	}
	return New(vision, sink, inspect.Equipment{ID: "pump-7", Model: "HX-200"}, opts...)
}

// inspected runs a successful run_inspection so the dispatcher holds a result.
func inspected(t *testing.T, d *Dispatcher) {
	t.Helper()
	res := d.Dispatch(context.Background(), Call{ID: "c0", Name: ToolRunInspection, Args: Map{}})
	if res.Status != StatusOK {
		t.Fatalf("run_inspection status = %q, want ok: %s", res.Status, res.Message)
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestDispatch_RunInspection(t *testing.T) {
	vision := &mockVision{result: sampleResult()}
	d := newDispatcher(t, vision, nil, WithCamera(&mockCamera{photo: []byte{0xff, 0xd8}}))

	res := d.Dispatch(context.Background(), Call{
		ID:   "c1",
		Name: ToolRunInspection,
		Args: Map{"voice_text": String("check the pump housing")},
	})
	if res.Status != StatusOK {
		t.Fatalf("status = %q, want ok: %s", res.Status, res.Message)
	}
	if len(vision.requests) != 1 {
		t.Fatalf("vision called %d times, want 1", len(vision.requests))
	}
	req := vision.requests[0]
	if req.VoiceText != "check the pump housing" {
		t.Errorf("VoiceText = %q", req.VoiceText)
	}
	if req.EquipmentID != "pump-7" || req.EquipmentModel != "HX-200" {
		t.Errorf("equipment = %q/%q, want pump-7/HX-200", req.EquipmentID, req.EquipmentModel)
	}
	if got := d.Current(); got == nil || got.Component != "hydraulic pump" {
		t.Errorf("Current() = %+v, want the inspection result held", got)
	}
}

func TestDispatch_RunInspection_NoCamera(t *testing.T) {
	d := newDispatcher(t, nil, nil)

	res := d.Dispatch(context.Background(), Call{ID: "c1", Name: ToolRunInspection, Args: Map{}})
	if res.Status != StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
}

func TestDispatch_RunInspection_CameraFailure(t *testing.T) {
	d := newDispatcher(t, nil, nil, WithCamera(&mockCamera{err: errors.New("hardware unavailable")}))

	res := d.Dispatch(context.Background(), Call{ID: "c1", Name: ToolRunInspection, Args: Map{}})
	if res.Status != StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
	if d.Current() != nil {
		t.Error("no result should be held after a failed inspection")
	}
}

func TestDispatch_RunInspection_VisionFailure(t *testing.T) {
	vision := &mockVision{err: errors.New("backend returned 503")}
	d := newDispatcher(t, vision, nil, WithCamera(&mockCamera{photo: []byte{1}}))

	res := d.Dispatch(context.Background(), Call{ID: "c1", Name: ToolRunInspection, Args: Map{}})
	if res.Status != StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
}

func TestDispatch_OrderParts_Unconfirmed(t *testing.T) {
	sink := &mockSink{}
	d := newDispatcher(t, nil, sink, WithCamera(&mockCamera{photo: []byte{1}}))
	inspected(t, d)

	res := d.Dispatch(context.Background(), Call{
		ID:   "c2",
		Name: ToolOrderParts,
		Args: Map{"confirmed": Bool(false)},
	})
	if res.Status != StatusSkipped {
		t.Fatalf("status = %q, want skipped", res.Status)
	}
	if len(sink.orderCalls) != 0 {
		t.Errorf("sink called %d times, want 0", len(sink.orderCalls))
	}
}

func TestDispatch_OrderParts_ConfirmedFromInspection(t *testing.T) {
	sink := &mockSink{receipt: inspect.Receipt{ID: "ord-9", Accepted: 1}}
	d := newDispatcher(t, nil, sink, WithCamera(&mockCamera{photo: []byte{1}}))
	inspected(t, d)

	res := d.Dispatch(context.Background(), Call{
		ID:   "c2",
		Name: ToolOrderParts,
		Args: Map{"confirmed": Bool(true)},
	})
	if res.Status != StatusOK {
		t.Fatalf("status = %q, want ok: %s", res.Status, res.Message)
	}
	if len(sink.orderCalls) != 1 {
		t.Fatalf("sink called %d times, want 1", len(sink.orderCalls))
	}
	if got := sink.orderCalls[0]; len(got) != 1 || got[0].Number != "OS-51" {
		t.Errorf("ordered parts = %+v, want the flagged OS-51 seal", got)
	}
	if res.Data["order_id"] != "ord-9" {
		t.Errorf("order_id = %v, want ord-9", res.Data["order_id"])
	}
}

func TestDispatch_OrderParts_ExplicitList(t *testing.T) {
	sink := &mockSink{receipt: inspect.Receipt{ID: "ord-10", Accepted: 2}}
	d := newDispatcher(t, nil, sink)

	args := FromArgs(map[string]any{
		"confirmed": true,
		"parts": []any{
			map[string]any{"name": "gasket", "number": "G-2", "quantity": float64(2)},
			map[string]any{"name": "bolt kit"},
		},
	})
	res := d.Dispatch(context.Background(), Call{ID: "c2", Name: ToolOrderParts, Args: args})
	if res.Status != StatusOK {
		t.Fatalf("status = %q, want ok: %s", res.Status, res.Message)
	}
	got := sink.orderCalls[0]
	if len(got) != 2 {
		t.Fatalf("ordered %d parts, want 2", len(got))
	}
	if got[0].Quantity != 2 {
		t.Errorf("parts[0].Quantity = %d, want 2", got[0].Quantity)
	}
	if got[1].Quantity != 1 {
		t.Errorf("parts[1].Quantity = %d, want default 1", got[1].Quantity)
	}
}

func TestDispatch_OrderParts_NoInspection(t *testing.T) {
	sink := &mockSink{}
	d := newDispatcher(t, nil, sink)

	res := d.Dispatch(context.Background(), Call{
		ID:   "c2",
		Name: ToolOrderParts,
		Args: Map{"confirmed": Bool(true)},
	})
	if res.Status != StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
	if len(sink.orderCalls) != 0 {
		t.Errorf("sink called %d times, want 0", len(sink.orderCalls))
	}
}

func TestDispatch_ReportAnomalies(t *testing.T) {
	t.Run("unconfirmed is skipped", func(t *testing.T) {
		sink := &mockSink{}
		d := newDispatcher(t, nil, sink, WithCamera(&mockCamera{photo: []byte{1}}))
		inspected(t, d)

		res := d.Dispatch(context.Background(), Call{ID: "c3", Name: ToolReportAnomalies, Args: Map{}})
		if res.Status != StatusSkipped {
			t.Fatalf("status = %q, want skipped", res.Status)
		}
		if len(sink.reportCalls) != 0 {
			t.Errorf("sink called %d times, want 0", len(sink.reportCalls))
		}
	})

	t.Run("confirmed without inspection errors", func(t *testing.T) {
		d := newDispatcher(t, nil, nil)
		res := d.Dispatch(context.Background(), Call{
			ID: "c3", Name: ToolReportAnomalies, Args: Map{"confirmed": Bool(true)},
		})
		if res.Status != StatusError {
			t.Fatalf("status = %q, want error", res.Status)
		}
	})

	t.Run("confirmed submits the held result", func(t *testing.T) {
		sink := &mockSink{receipt: inspect.Receipt{ID: "rep-4", Accepted: 3}}
		d := newDispatcher(t, nil, sink, WithCamera(&mockCamera{photo: []byte{1}}))
		inspected(t, d)

		res := d.Dispatch(context.Background(), Call{
			ID: "c3", Name: ToolReportAnomalies, Args: Map{"confirmed": Bool(true)},
		})
		if res.Status != StatusOK {
			t.Fatalf("status = %q, want ok: %s", res.Status, res.Message)
		}
		if len(sink.reportCalls) != 1 || len(sink.reportCalls[0].Anomalies) != 3 {
			t.Fatalf("reportCalls = %+v, want one call with 3 anomalies", sink.reportCalls)
		}
		if res.Data["accepted"] != 3 {
			t.Errorf("accepted = %v, want 3", res.Data["accepted"])
		}
	})
}

func TestDispatch_EditFindings_Remove(t *testing.T) {
	d := newDispatcher(t, nil, nil, WithCamera(&mockCamera{photo: []byte{1}}))
	inspected(t, d)

	res := d.Dispatch(context.Background(), Call{
		ID:   "c4",
		Name: ToolEditFindings,
		Args: Map{"action": String("remove"), "index": Int(2)},
	})
	if res.Status != StatusOK {
		t.Fatalf("status = %q, want ok: %s", res.Status, res.Message)
	}

	cur := d.Current()
	if len(cur.Anomalies) != 2 {
		t.Fatalf("findings = %d, want 2 after remove", len(cur.Anomalies))
	}
	// Index 2 (corrosion) is gone; the remainder stays contiguous and ordered.
	if cur.Anomalies[0].Issue != "seal leak" || cur.Anomalies[1].Issue != "loose bolt" {
		t.Errorf("remaining findings = %q, %q", cur.Anomalies[0].Issue, cur.Anomalies[1].Issue)
	}
}

func TestDispatch_EditFindings_UpdatePartial(t *testing.T) {
	d := newDispatcher(t, nil, nil, WithCamera(&mockCamera{photo: []byte{1}}))
	inspected(t, d)

	res := d.Dispatch(context.Background(), Call{
		ID:   "c4",
		Name: ToolEditFindings,
		Args: Map{"action": String("update"), "index": Int(1), "severity": String("critical")},
	})
	if res.Status != StatusOK {
		t.Fatalf("status = %q, want ok: %s", res.Status, res.Message)
	}

	got := d.Current().Anomalies[0]
	if got.Severity != "critical" {
		t.Errorf("Severity = %q, want critical", got.Severity)
	}
	// Fields not supplied stay untouched.
	if got.Issue != "seal leak" || got.Description != "fluid at the output seal" {
		t.Errorf("unsupplied fields changed: %+v", got)
	}
}

func TestDispatch_EditFindings_Errors(t *testing.T) {
	d := newDispatcher(t, nil, nil, WithCamera(&mockCamera{photo: []byte{1}}))

	t.Run("no inspection", func(t *testing.T) {
		res := d.Dispatch(context.Background(), Call{
			ID: "c4", Name: ToolEditFindings,
			Args: Map{"action": String("remove"), "index": Int(1)},
		})
		if res.Status != StatusError {
			t.Fatalf("status = %q, want error", res.Status)
		}
	})

	inspected(t, d)

	cases := []struct {
		name string
		args Map
	}{
		{"missing action", Map{"index": Int(1)}},
		{"missing index", Map{"action": String("remove")}},
		{"index zero", Map{"action": String("remove"), "index": Int(0)}},
		{"index past end", Map{"action": String("remove"), "index": Int(4)}},
		{"unknown action", Map{"action": String("duplicate"), "index": Int(1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := d.Dispatch(context.Background(), Call{ID: "c4", Name: ToolEditFindings, Args: tc.args})
			if res.Status != StatusError {
				t.Fatalf("status = %q, want error", res.Status)
			}
		})
	}
	if got := len(d.Current().Anomalies); got != 3 {
		t.Errorf("findings = %d after failed edits, want 3 unchanged", got)
	}
}

func TestDispatch_SubmitForm(t *testing.T) {
	sink := &mockSink{receipt: inspect.Receipt{ID: "frm-1", Accepted: 2}}
	d := newDispatcher(t, nil, sink)

	args := FromArgs(map[string]any{
		"form_type": "maintenance_log",
		"fields":    map[string]any{"technician": "r.alvarez", "duration_minutes": float64(45)},
	})
	res := d.Dispatch(context.Background(), Call{ID: "c5", Name: ToolSubmitForm, Args: args})
	if res.Status != StatusOK {
		t.Fatalf("status = %q, want ok: %s", res.Status, res.Message)
	}
	if len(sink.formCalls) != 1 {
		t.Fatalf("sink called %d times, want 1", len(sink.formCalls))
	}
	call := sink.formCalls[0]
	if call.formType != "maintenance_log" {
		t.Errorf("formType = %q", call.formType)
	}
	if call.fields["duration_minutes"] != int64(45) {
		t.Errorf("duration_minutes = %v (%T), want int64 45", call.fields["duration_minutes"], call.fields["duration_minutes"])
	}
}

func TestDispatch_SubmitForm_MissingType(t *testing.T) {
	sink := &mockSink{}
	d := newDispatcher(t, nil, sink)

	res := d.Dispatch(context.Background(), Call{ID: "c5", Name: ToolSubmitForm, Args: Map{}})
	if res.Status != StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
	if len(sink.formCalls) != 0 {
		t.Errorf("sink called %d times, want 0", len(sink.formCalls))
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	d := newDispatcher(t, nil, nil)

	res := d.Dispatch(context.Background(), Call{ID: "c6", Name: "reboot_equipment", Args: Map{}})
	if res.Status != StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
}

func TestDispatcher_Reset(t *testing.T) {
	d := newDispatcher(t, nil, nil, WithCamera(&mockCamera{photo: []byte{1}}))
	inspected(t, d)

	d.Reset()
	if d.Current() != nil {
		t.Error("Current() non-nil after Reset")
	}
}
