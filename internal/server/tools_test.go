package server

import (
	"encoding/json"
	"testing"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()

	if len(tools) == 0 {
		t.Fatal("GetToolDefinitions returned empty slice")
	}

	expectedTools := []string{
		"picker_open",
		"picker_authorize",
		"picker_load_more",
		"picker_preview",
		"picker_select",
		"picker_deselect",
		"picker_selection",
		"picker_capture",
		"picker_configure",
		"picker_finish",
		"picker_cancel",
	}

	toolMap := make(map[string]Tool)
	for _, tool := range tools {
		if _, dup := toolMap[tool.Name]; dup {
			t.Errorf("Duplicate tool %s", tool.Name)
		}
		toolMap[tool.Name] = tool
	}

	for _, name := range expectedTools {
		if _, ok := toolMap[name]; !ok {
			t.Errorf("Expected tool %s not found", name)
		}
	}
	if len(tools) != len(expectedTools) {
		t.Errorf("Tool count: got %d, want %d", len(tools), len(expectedTools))
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	tools := GetToolDefinitions()

	for _, tool := range tools {
		t.Run(tool.Name, func(t *testing.T) {
			if tool.Description == "" {
				t.Error("Tool description is empty")
			}

			if tool.InputSchema["type"] != "object" {
				t.Errorf("InputSchema type: got %v, want 'object'", tool.InputSchema["type"])
			}

			props, ok := tool.InputSchema["properties"].(map[string]interface{})
			if !ok || props == nil {
				t.Fatal("InputSchema missing 'properties' field")
			}

			// Every required parameter must be declared.
			required, _ := tool.InputSchema["required"].([]string)
			for _, r := range required {
				if _, ok := props[r]; !ok {
					t.Errorf("required parameter %s not in properties", r)
				}
			}
		})
	}
}

func TestToolDefinitions_RequiredSessionID(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		if tool.Name == "picker_open" {
			continue
		}

		t.Run(tool.Name, func(t *testing.T) {
			required, ok := tool.InputSchema["required"].([]string)
			if !ok {
				t.Fatal("'required' should be a string slice")
			}

			hasSession := false
			for _, r := range required {
				if r == "session_id" {
					hasSession = true
					break
				}
			}
			if !hasSession {
				t.Error("Tool should require 'session_id' parameter")
			}
		})
	}
}

func TestToolDefinitions_PositionTools(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		switch tool.Name {
		case "picker_preview", "picker_select", "picker_deselect":
		default:
			continue
		}

		props := tool.InputSchema["properties"].(map[string]interface{})
		partition, ok := props["partition"].(map[string]interface{})
		if !ok {
			t.Errorf("%s: missing partition property", tool.Name)
			continue
		}
		enum, _ := partition["enum"].([]string)
		if len(enum) != 2 || enum[0] != "library" || enum[1] != "external" {
			t.Errorf("%s: partition enum: got %v", tool.Name, enum)
		}
	}
}

func TestToolDefinitions_JSONSerializable(t *testing.T) {
	data, err := json.Marshal(GetToolDefinitions())
	if err != nil {
		t.Fatalf("Failed to marshal tools: %v", err)
	}

	var decoded []map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal tools: %v", err)
	}
	if _, ok := decoded[0]["inputSchema"]; !ok {
		t.Error("tool JSON should use inputSchema key")
	}
}
