// Package inspect holds the inspection domain model and the two backend
// clients the tool dispatcher works against: the vision service that turns a
// camera frame into structured findings, and the persistence sink that
// receives reports, part orders, and form submissions.
package inspect

import "context"

// Equipment identifies the unit under inspection for the current shift.
type Equipment struct {
	ID    string
	Model string
}

// Anomaly is one finding on the inspected component.
type Anomaly struct {
	Severity    string `json:"severity"`
	Issue       string `json:"issue"`
	Description string `json:"description"`
}

// Part is one replacement part the vision backend recommends ordering.
type Part struct {
	Name     string `json:"name"`
	Number   string `json:"number"`
	Quantity int    `json:"quantity"`
}

// Result is the mutable outcome of one inspection. It is created by the
// vision backend, edited in place through tool calls, and read by the
// report and order operations until the session ends.
type Result struct {
	Status    string    `json:"status"`
	Component string    `json:"component"`
	Anomalies []Anomaly `json:"anomalies"`
	Parts     []Part    `json:"parts"`
}

// Clone returns a deep copy of the result.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	cp := &Result{
		Status:    r.Status,
		Component: r.Component,
		Anomalies: make([]Anomaly, len(r.Anomalies)),
		Parts:     make([]Part, len(r.Parts)),
	}
	copy(cp.Anomalies, r.Anomalies)
	copy(cp.Parts, r.Parts)
	return cp
}

// Request is one vision inspection request.
type Request struct {
	// Image is the raw camera frame (JPEG).
	Image []byte

	// VoiceText is what the wearer said when asking for the inspection,
	// forwarded as a hint to the vision backend.
	VoiceText string

	EquipmentID    string
	EquipmentModel string
}

// Vision analyses a camera frame and produces structured findings.
type Vision interface {
	Inspect(ctx context.Context, req Request) (*Result, error)
}

// ItemError describes one rejected item in a partially-accepted submission.
type ItemError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// Receipt is the persistence backend's answer to a submission: how many
// items were accepted and per-item detail for the ones that were not.
type Receipt struct {
	ID       string      `json:"id"`
	Accepted int         `json:"accepted"`
	Rejected []ItemError `json:"rejected,omitempty"`
}

// ReportSink persists inspection outcomes.
type ReportSink interface {
	// SubmitReport files the anomalies of one inspection result.
	SubmitReport(ctx context.Context, eq Equipment, res *Result) (Receipt, error)

	// SubmitOrder places a parts order for one inspection result.
	SubmitOrder(ctx context.Context, eq Equipment, parts []Part) (Receipt, error)

	// SubmitForm files a free-form structured submission.
	SubmitForm(ctx context.Context, formType string, fields map[string]any) (Receipt, error)
}

// Camera captures a still photo of whatever the wearer is looking at.
// Hardware-dependent; may fail when the camera is unavailable.
type Camera interface {
	CapturePhoto(ctx context.Context) ([]byte, error)
}
