package tools

import "github.com/techvox/techvox/pkg/relay"

// Definitions returns the tool declarations advertised to the assistant when
// a session opens. Parameter shapes follow JSON Schema, which is what the
// relay protocol expects.
func Definitions() []relay.ToolDefinition {
	return []relay.ToolDefinition{
		{
			Name:        ToolRunInspection,
			Description: "Capture a camera frame of the equipment and analyze it for anomalies and needed parts.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"voice_text": map[string]any{
						"type":        "string",
						"description": "What the wearer said about the equipment, verbatim.",
					},
				},
			},
		},
		{
			Name:        ToolReportAnomalies,
			Description: "File the current inspection findings as a formal anomaly report. Propose first, then call with confirmed=true once the wearer agrees.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"confirmed": map[string]any{
						"type":        "boolean",
						"description": "Whether the wearer explicitly confirmed filing the report.",
					},
				},
				"required": []string{"confirmed"},
			},
		},
		{
			Name:        ToolOrderParts,
			Description: "Order replacement parts. Defaults to the parts the inspection flagged; pass an explicit parts list to override. Propose first, then call with confirmed=true.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"confirmed": map[string]any{
						"type":        "boolean",
						"description": "Whether the wearer explicitly confirmed the order.",
					},
					"parts": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"name":     map[string]any{"type": "string"},
								"number":   map[string]any{"type": "string"},
								"quantity": map[string]any{"type": "integer"},
							},
							"required": []string{"name"},
						},
					},
				},
				"required": []string{"confirmed"},
			},
		},
		{
			Name:        ToolEditFindings,
			Description: "Update or remove one finding of the current inspection result by its 1-based index.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"action": map[string]any{
						"type": "string",
						"enum": []string{"update", "remove"},
					},
					"index": map[string]any{
						"type":        "integer",
						"description": "1-based index of the finding to edit.",
					},
					"severity":    map[string]any{"type": "string"},
					"issue":       map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
				},
				"required": []string{"action", "index"},
			},
		},
		{
			Name:        ToolSubmitForm,
			Description: "Submit a free-form maintenance or compliance form with the given fields.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"form_type": map[string]any{"type": "string"},
					"fields":    map[string]any{"type": "object"},
				},
				"required": []string{"form_type"},
			},
		},
	}
}
