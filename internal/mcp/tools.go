package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	appLog "sharecal/internal/log"
	"sharecal/internal/model"
	"sharecal/internal/share"
	"sharecal/internal/store"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeValidation    = -32010 // Draft rejected by the save flow
)

// ToolError represents an MCP protocol error
type ToolError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func newToolError(code int, message string, data interface{}) error {
	// Returned as a regular error; the framework encodes it.
	return &ToolError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// handleParseEvent handles the parse_event tool invocation
func (s *Server) handleParseEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newToolError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	text, err := requiredText(args)
	if err != nil {
		return nil, err
	}
	ref, err := referenceDate(args)
	if err != nil {
		return nil, err
	}

	draft := s.share.Prepare(text, ref)
	return mcp.NewToolResultText(formatJSON(draft)), nil
}

// handleSaveEvent handles the save_event tool invocation
func (s *Server) handleSaveEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newToolError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	text, err := requiredText(args)
	if err != nil {
		return nil, err
	}
	ref, err := referenceDate(args)
	if err != nil {
		return nil, err
	}
	calendarID := getInt64Default(args, "calendar_id", 0)
	if calendarID < 0 {
		return nil, newToolError(ErrorCodeInvalidParams, "calendar_id must be positive", map[string]interface{}{
			"param": "calendar_id",
			"value": calendarID,
		})
	}

	draft := s.share.Prepare(text, ref)

	var id int64
	if calendarID > 0 {
		id, err = s.share.SaveTo(ctx, calendarID, draft)
	} else {
		id, err = s.share.Save(ctx, draft)
	}
	if err != nil {
		switch {
		case errors.Is(err, share.ErrNoCalendarSelected),
			errors.Is(err, share.ErrEmptyTitle),
			errors.Is(err, share.ErrCalendarNotFound),
			errors.Is(err, share.ErrInvalidDate),
			errors.Is(err, store.ErrInvalid):
			return nil, newToolError(ErrorCodeValidation, err.Error(), map[string]interface{}{
				"event": draft,
			})
		default:
			appLog.Error("mcp save_event failed", err)
			return nil, newToolError(ErrorCodeInternalError, "save failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"saved": true,
		"id":    id,
		"event": draft,
	})), nil
}

// handleListCalendars handles the list_calendars tool invocation
func (s *Server) handleListCalendars(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cals, err := s.store.ListCalendars(ctx)
	if err != nil {
		return nil, newToolError(ErrorCodeInternalError, "failed to list calendars", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if cals == nil {
		cals = []model.Calendar{}
	}

	response := map[string]interface{}{
		"calendars": cals,
	}
	if id, ok, err := s.store.SelectedCalendarID(ctx); err == nil && ok {
		response["selected_calendar_id"] = id
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func requiredText(args map[string]interface{}) (string, error) {
	text, ok := args["text"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return "", newToolError(ErrorCodeInvalidParams, "text parameter is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing or empty",
		})
	}
	return text, nil
}

// referenceDate reads the optional reference_date; zero means today.
func referenceDate(args map[string]interface{}) (model.Date, error) {
	raw := getStringDefault(args, "reference_date", "")
	if raw == "" {
		return model.Date{}, nil
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		return model.Date{}, newToolError(ErrorCodeInvalidParams, "invalid reference_date", map[string]interface{}{
			"param":  "reference_date",
			"reason": err.Error(),
		})
	}
	return d, nil
}

// formatJSON formats data as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getInt64Default extracts an integer parameter with a default value
func getInt64Default(args map[string]interface{}, key string, defaultValue int64) int64 {
	switch val := args[key].(type) {
	case float64:
		return int64(val)
	case int:
		return int64(val)
	case int64:
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
