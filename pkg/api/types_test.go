package api

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestToolDefinitionRoundTrip(t *testing.T) {
	td := ToolDefinition{
		Type:        "function",
		Name:        "shell",
		Description: "run a shell command",
		Parameters:  json.RawMessage(`{"type":"object"}`),
		Strict:      true,
	}

	data, err := json.Marshal(td)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got ToolDefinition
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, td) {
		t.Errorf("got %+v, want %+v", got, td)
	}
}

func TestToolDefinitionOmitsEmptyDescription(t *testing.T) {
	td := ToolDefinition{Type: "function", Name: "shell"}
	data, err := json.Marshal(td)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["description"]; ok {
		t.Errorf("expected description to be omitted when empty, got %v", raw["description"])
	}
}

func TestCodeRunDataRoundTrip(t *testing.T) {
	data := CodeRunData{
		MainFile: "main.py",
		Outputs: []CodeRunOutput{
			{Type: "logs", Logs: "hi\n"},
			{Type: "image", Image: &CodeRunImage{FileID: "file_abc", URL: "https://example.invalid/abc.png"}},
		},
	}

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got CodeRunData
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.MainFile != data.MainFile {
		t.Errorf("MainFile = %q, want %q", got.MainFile, data.MainFile)
	}
	if len(got.Outputs) != 2 {
		t.Fatalf("len(Outputs) = %d, want 2", len(got.Outputs))
	}
	if got.Outputs[0].Logs != "hi\n" {
		t.Errorf("Outputs[0].Logs = %q, want %q", got.Outputs[0].Logs, "hi\n")
	}
	if got.Outputs[1].Image == nil || got.Outputs[1].Image.FileID != "file_abc" {
		t.Errorf("Outputs[1].Image = %+v, want FileID file_abc", got.Outputs[1].Image)
	}
}
