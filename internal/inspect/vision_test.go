package inspect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient_Inspect(t *testing.T) {
	image := []byte{0xff, 0xd8, 0xff, 0xe0, 0x01, 0x02}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/inspections" {
			t.Errorf("request = %s %s, want POST /v1/inspections", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want Bearer test-token", got)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if got := req["image"]; got != base64.StdEncoding.EncodeToString(image) {
			t.Errorf("image = %v, want base64 of the raw frame", got)
		}
		if got := req["voice_text"]; got != "check the left manifold" {
			t.Errorf("voice_text = %v", got)
		}
		if got := req["equipment_id"]; got != "pump-7" {
			t.Errorf("equipment_id = %v", got)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Result{
			Status:    "anomalies_found",
			Component: "manifold",
			Anomalies: []Anomaly{{Severity: "medium", Issue: "corrosion", Description: "surface rust on the left flange"}},
			Parts:     []Part{{Name: "flange gasket", Number: "FG-12", Quantity: 1}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	res, err := client.Inspect(context.Background(), Request{
		Image:          image,
		VoiceText:      "check the left manifold",
		EquipmentID:    "pump-7",
		EquipmentModel: "HX-200",
	})
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if res.Status != "anomalies_found" {
		t.Errorf("Status = %q, want anomalies_found", res.Status)
	}
	if len(res.Anomalies) != 1 || res.Anomalies[0].Issue != "corrosion" {
		t.Errorf("Anomalies = %+v, want one corrosion finding", res.Anomalies)
	}
	if len(res.Parts) != 1 || res.Parts[0].Number != "FG-12" {
		t.Errorf("Parts = %+v, want one FG-12 part", res.Parts)
	}
}

func TestClient_Inspect_BackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "image too dark to analyze"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.Inspect(context.Background(), Request{Image: []byte{1}, EquipmentID: "pump-7"})
	if err == nil {
		t.Fatal("expected error for 422 response")
	}
	if !strings.Contains(err.Error(), "image too dark to analyze") {
		t.Errorf("error = %v, want backend message included", err)
	}
}

func TestClient_Inspect_EmptyImage(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "")
	if _, err := client.Inspect(context.Background(), Request{EquipmentID: "pump-7"}); err == nil {
		t.Fatal("expected error for empty image")
	}
}

func TestClient_Inspect_Unreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "")
	_, err := client.Inspect(context.Background(), Request{Image: []byte{1}, EquipmentID: "pump-7"})
	if err == nil {
		t.Fatal("expected error for unreachable backend")
	}
}
