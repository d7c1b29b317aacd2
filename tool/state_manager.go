package tool

import (
	"fmt"

	"github.com/hupe1980/agentloop/core"
)

// StateManagerTool exposes the ToolContext surface as a single dispatching
// tool: session state reads/writes, flow control (transfer, escalate, skip
// summarization), credential requests, artifacts and memory search. It is
// mainly useful for demos and for models that should manage their own state
// explicitly.
type StateManagerTool struct {
	name        string
	description string
}

// NewStateManagerTool creates a new state management tool.
func NewStateManagerTool() *StateManagerTool {
	return &StateManagerTool{
		name: "state_manager",
		description: "Manages session state, agent flow control, and runtime integration. " +
			"Supports operations: get_state, set_state, transfer_agent, escalate, skip_summarization, " +
			"request_credential, save_artifact, load_artifact, list_artifacts, search_memory, get_history.",
	}
}

// Name returns the tool identifier.
func (t *StateManagerTool) Name() string { return t.name }

// Description returns the tool description.
func (t *StateManagerTool) Description() string { return t.description }

// IsLongRunning reports false; every operation completes synchronously.
func (t *StateManagerTool) IsLongRunning() bool { return false }

// Parameters returns the JSON schema for tool parameters.
func (t *StateManagerTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []string{
					"get_state", "set_state", "transfer_agent", "escalate",
					"skip_summarization", "request_credential", "save_artifact",
					"load_artifact", "list_artifacts", "search_memory", "get_history",
				},
				"description": "The operation to perform",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "State key for get_state/set_state",
			},
			"value": map[string]any{
				"description": "Value for set_state (any type)",
			},
			"agent_name": map[string]any{
				"type":        "string",
				"description": "Agent name for transfer_agent",
			},
			"filename": map[string]any{
				"type":        "string",
				"description": "Artifact filename for artifact operations",
			},
			"data": map[string]any{
				"type":        "string",
				"description": "Text content for save_artifact",
			},
			"mime_type": map[string]any{
				"type":        "string",
				"description": "MIME type for save_artifact (default text/plain)",
			},
			"query": map[string]any{
				"type":        "string",
				"description": "Search query for search_memory",
			},
			"auth_config": map[string]any{
				"type":        "object",
				"description": "Credential request payload for request_credential",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Result limit for search_memory (default 10)",
			},
		},
		"required": []string{"operation"},
	}
}

// Call dispatches on the operation argument.
func (t *StateManagerTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	operation, ok := args["operation"].(string)
	if !ok {
		return nil, fmt.Errorf("operation parameter is required")
	}

	switch operation {
	case "get_state":
		key, ok := args["key"].(string)
		if !ok {
			return nil, fmt.Errorf("key parameter is required for get_state")
		}
		value, exists := tc.GetState(key)
		return map[string]any{"key": key, "exists": exists, "value": value}, nil

	case "set_state":
		key, ok := args["key"].(string)
		if !ok {
			return nil, fmt.Errorf("key parameter is required for set_state")
		}
		tc.SetState(key, args["value"])
		return map[string]any{"key": key, "value": args["value"], "success": true}, nil

	case "transfer_agent":
		agentName, ok := args["agent_name"].(string)
		if !ok || agentName == "" {
			return nil, fmt.Errorf("agent_name parameter is required for transfer_agent")
		}
		tc.Transfer(agentName)
		return map[string]any{"agent_name": agentName, "success": true}, nil

	case "escalate":
		tc.Escalate()
		return map[string]any{"success": true}, nil

	case "skip_summarization":
		tc.SkipSummarization()
		return map[string]any{"success": true}, nil

	case "request_credential":
		config, _ := args["auth_config"].(map[string]any)
		if config == nil {
			config = map[string]any{}
		}
		tc.RequestCredential(config)
		return map[string]any{"requested": true, "function_call_id": tc.FunctionCallID()}, nil

	case "save_artifact":
		filename, ok := args["filename"].(string)
		if !ok {
			return nil, fmt.Errorf("filename parameter is required for save_artifact")
		}
		data, ok := args["data"].(string)
		if !ok {
			return nil, fmt.Errorf("data parameter is required for save_artifact")
		}
		mimeType, _ := args["mime_type"].(string)
		if mimeType == "" {
			mimeType = "text/plain"
		}
		version, err := tc.SaveArtifact(filename, []byte(data), mimeType)
		if err != nil {
			return nil, fmt.Errorf("failed to save artifact: %w", err)
		}
		return map[string]any{"filename": filename, "version": version, "size": len(data), "success": true}, nil

	case "load_artifact":
		filename, ok := args["filename"].(string)
		if !ok {
			return nil, fmt.Errorf("filename parameter is required for load_artifact")
		}
		art, err := tc.LoadArtifact(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to load artifact: %w", err)
		}
		return map[string]any{
			"filename":  filename,
			"data":      string(art.Data),
			"mime_type": art.MIMEType,
			"version":   art.Version,
			"success":   true,
		}, nil

	case "list_artifacts":
		names, err := tc.ListArtifacts()
		if err != nil {
			return nil, fmt.Errorf("failed to list artifacts: %w", err)
		}
		return map[string]any{"artifacts": names, "count": len(names), "success": true}, nil

	case "search_memory":
		query, ok := args["query"].(string)
		if !ok {
			return nil, fmt.Errorf("query parameter is required for search_memory")
		}
		limit := 10
		if l, ok := args["limit"].(float64); ok && l > 0 {
			limit = int(l)
		}
		results, err := tc.SearchMemory(query)
		if err != nil {
			return nil, fmt.Errorf("failed to search memory: %w", err)
		}
		if len(results) > limit {
			results = results[:limit]
		}
		return map[string]any{"query": query, "count": len(results), "results": results, "success": true}, nil

	case "get_history":
		sess := tc.InvocationContext().Session
		if sess == nil {
			return map[string]any{"events": []map[string]any{}, "count": 0, "success": true}, nil
		}
		history := sess.GetConversationHistory()
		events := make([]map[string]any, len(history))
		for i, ev := range history {
			preview := ev.TextContent()
			if len(preview) > 100 {
				preview = preview[:100] + "..."
			}
			events[i] = map[string]any{
				"id":        ev.ID,
				"author":    ev.Author,
				"timestamp": ev.Timestamp,
				"text":      preview,
			}
		}
		return map[string]any{"events": events, "count": len(events), "success": true}, nil

	default:
		return nil, fmt.Errorf("unknown operation: %s", operation)
	}
}
