package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var referenceDateSchema = map[string]interface{}{
	"type":        "string",
	"description": "Day that relative phrases like \"tomorrow\" resolve against (YYYY-MM-DD). Defaults to today.",
	"pattern":     `^\d{4}-\d{2}-\d{2}$`,
}

// parseEventTool returns the tool definition for parse_event
func parseEventTool() mcp.Tool {
	return mcp.Tool{
		Name:        "parse_event",
		Description: "Extract title, date, start/end time and location from one English sentence describing an event. Nothing is saved.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Event sentence, e.g. \"Team meeting next Tuesday at 3pm for 1 hour in Conference Room B\"",
				},
				"reference_date": referenceDateSchema,
			},
			Required: []string{"text"},
		},
	}
}

// saveEventTool returns the tool definition for save_event
func saveEventTool() mcp.Tool {
	return mcp.Tool{
		Name:        "save_event",
		Description: "Parse an event sentence and save it to a calendar (the selected calendar unless calendar_id is given)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Event sentence",
				},
				"calendar_id": map[string]interface{}{
					"type":        "integer",
					"description": "Target calendar ID",
					"minimum":     1,
				},
				"reference_date": referenceDateSchema,
			},
			Required: []string{"text"},
		},
	}
}

// listCalendarsTool returns the tool definition for list_calendars
func listCalendarsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_calendars",
		Description: "List calendars events can be saved into, and which one is selected",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
