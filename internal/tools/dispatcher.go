package tools

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/techvox/techvox/internal/inspect"
	"github.com/techvox/techvox/internal/observe"
)

// Tool names the relay side may invoke.
const (
	ToolRunInspection   = "run_inspection"
	ToolReportAnomalies = "report_anomalies"
	ToolOrderParts      = "order_parts"
	ToolEditFindings    = "edit_findings"
	ToolSubmitForm      = "submit_form"
)

// Result statuses.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Call is one remote tool invocation: a name, loosely-typed arguments, and
// the identifier the result must be tagged with.
type Call struct {
	ID   string
	Name string
	Args Map
}

// Result is the structured outcome returned to the remote side. Errors are
// data here, never Go errors; a failed tool must not take the session down.
type Result struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

func errorResult(format string, args ...any) Result {
	return Result{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// Option is a functional option for configuring a [Dispatcher].
type Option func(*Dispatcher)

// WithCamera sets the camera used for inspection snapshots. Without one,
// run_inspection reports an error result.
func WithCamera(cam inspect.Camera) Option {
	return func(d *Dispatcher) { d.camera = cam }
}

// WithMetrics sets the metrics registry used to record tool timings.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher executes named tool calls against the single mutable inspection
// result held for the active session. Tool calls are serialized by the
// session control loop; the internal state needs no locking beyond that.
type Dispatcher struct {
	vision    inspect.Vision
	sink      inspect.ReportSink
	camera    inspect.Camera
	equipment inspect.Equipment
	metrics   *observe.Metrics
	log       *slog.Logger

	current *inspect.Result
}

// New creates a dispatcher for the given equipment, backed by the vision
// backend and persistence sink.
func New(vision inspect.Vision, sink inspect.ReportSink, eq inspect.Equipment, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		vision:    vision,
		sink:      sink,
		equipment: eq,
		log:       slog.Default().With("component", "tools"),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Current returns a copy of the held inspection result, or nil when no
// inspection has run yet this session.
func (d *Dispatcher) Current() *inspect.Result {
	return d.current.Clone()
}

// Reset discards the held inspection result. Called when the session returns
// to idle or restarts after an error.
func (d *Dispatcher) Reset() {
	d.current = nil
}

// Dispatch executes one tool call and returns its structured result. It
// never returns a Go error: unknown names, missing prerequisites, and
// downstream failures all come back as error results for the remote side.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) Result {
	start := time.Now()

	var res Result
	switch call.Name {
	case ToolRunInspection:
		res = d.runInspection(ctx, call.Args)
	case ToolReportAnomalies:
		res = d.reportAnomalies(ctx, call.Args)
	case ToolOrderParts:
		res = d.orderParts(ctx, call.Args)
	case ToolEditFindings:
		res = d.editFindings(call.Args)
	case ToolSubmitForm:
		res = d.submitForm(ctx, call.Args)
	default:
		res = errorResult("unknown tool %q", call.Name)
	}

	elapsed := time.Since(start)
	d.metrics.RecordToolCall(ctx, call.Name, res.Status, elapsed.Seconds())
	if res.Status == StatusError {
		d.log.Warn("tool call failed", "tool", call.Name, "call_id", call.ID, "message", res.Message)
	} else {
		d.log.Info("tool call finished", "tool", call.Name, "call_id", call.ID,
			"status", res.Status, "duration", elapsed)
	}
	return res
}

// ── Tool implementations ────────────────────────────────────────────────────

func (d *Dispatcher) runInspection(ctx context.Context, args Map) Result {
	if d.camera == nil {
		return errorResult("no camera available for inspection")
	}
	image, err := d.camera.CapturePhoto(ctx)
	if err != nil {
		return errorResult("camera capture failed: %v", err)
	}

	voiceText, _ := args.String("voice_text")
	result, err := d.vision.Inspect(ctx, inspect.Request{
		Image:          image,
		VoiceText:      voiceText,
		EquipmentID:    d.equipment.ID,
		EquipmentModel: d.equipment.Model,
	})
	if err != nil {
		return errorResult("inspection failed: %v", err)
	}

	d.current = result
	return Result{Status: StatusOK, Data: map[string]any{
		"status":    result.Status,
		"component": result.Component,
		"anomalies": result.Anomalies,
		"parts":     result.Parts,
	}}
}

func (d *Dispatcher) reportAnomalies(ctx context.Context, args Map) Result {
	if confirmed, _ := args.Bool("confirmed"); !confirmed {
		return Result{Status: StatusSkipped, Message: "report not confirmed by the wearer"}
	}
	if d.current == nil {
		return errorResult("no inspection result to report; run an inspection first")
	}

	receipt, err := d.sink.SubmitReport(ctx, d.equipment, d.current)
	if err != nil {
		return errorResult("report submission failed: %v", err)
	}
	return receiptResult(receipt, "report_id")
}

func (d *Dispatcher) orderParts(ctx context.Context, args Map) Result {
	if confirmed, _ := args.Bool("confirmed"); !confirmed {
		return Result{Status: StatusSkipped, Message: "order not confirmed by the wearer"}
	}

	parts, res := d.resolveParts(args)
	if res != nil {
		return *res
	}

	receipt, err := d.sink.SubmitOrder(ctx, d.equipment, parts)
	if err != nil {
		return errorResult("part order failed: %v", err)
	}
	return receiptResult(receipt, "order_id")
}

// resolveParts takes an explicit parts list from the arguments when present,
// falling back to the parts the vision backend flagged on the held result.
func (d *Dispatcher) resolveParts(args Map) ([]inspect.Part, *Result) {
	list, ok := args.List("parts")
	if !ok {
		if d.current == nil {
			res := errorResult("no inspection result to order from; run an inspection first")
			return nil, &res
		}
		if len(d.current.Parts) == 0 {
			res := errorResult("the inspection flagged no parts to order")
			return nil, &res
		}
		return slices.Clone(d.current.Parts), nil
	}

	parts := make([]inspect.Part, 0, len(list))
	for i, v := range list {
		m, ok := v.AsMap()
		if !ok {
			res := errorResult("parts[%d] is not an object", i)
			return nil, &res
		}
		name, _ := m.String("name")
		number, _ := m.String("number")
		qty, ok := m.Int("quantity")
		if !ok {
			qty = 1
		}
		parts = append(parts, inspect.Part{Name: name, Number: number, Quantity: int(qty)})
	}
	return parts, nil
}

func (d *Dispatcher) editFindings(args Map) Result {
	if d.current == nil {
		return errorResult("no inspection result to edit; run an inspection first")
	}

	action, ok := args.String("action")
	if !ok {
		return errorResult("edit_findings requires an action (update or remove)")
	}
	index, ok := args.Int("index")
	if !ok {
		return errorResult("edit_findings requires a 1-based finding index")
	}
	if index < 1 || int(index) > len(d.current.Anomalies) {
		return errorResult("finding index %d out of range; result has %d findings", index, len(d.current.Anomalies))
	}
	i := int(index) - 1

	switch action {
	case "remove":
		d.current.Anomalies = slices.Delete(d.current.Anomalies, i, i+1)
	case "update":
		a := &d.current.Anomalies[i]
		if severity, ok := args.String("severity"); ok {
			a.Severity = severity
		}
		if issue, ok := args.String("issue"); ok {
			a.Issue = issue
		}
		if description, ok := args.String("description"); ok {
			a.Description = description
		}
	default:
		return errorResult("unknown edit action %q", action)
	}

	return Result{Status: StatusOK, Data: map[string]any{
		"findings": d.current.Anomalies,
	}}
}

func (d *Dispatcher) submitForm(ctx context.Context, args Map) Result {
	formType, ok := args.String("form_type")
	if !ok || formType == "" {
		return errorResult("submit_form requires a form_type")
	}
	fields := map[string]any{}
	if m, ok := args.Map("fields"); ok {
		for k, v := range m {
			fields[k] = v.Interface()
		}
	}

	receipt, err := d.sink.SubmitForm(ctx, formType, fields)
	if err != nil {
		return errorResult("form submission failed: %v", err)
	}
	return receiptResult(receipt, "submission_id")
}

func receiptResult(r inspect.Receipt, idKey string) Result {
	data := map[string]any{
		idKey:      r.ID,
		"accepted": r.Accepted,
	}
	if len(r.Rejected) > 0 {
		data["rejected"] = r.Rejected
	}
	return Result{Status: StatusOK, Data: data}
}
