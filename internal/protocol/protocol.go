package protocol

import (
	"encoding/json"
	"strings"
)

// BackgroundSessionID is the sentinel session for frames addressed to the
// browser controller rather than a page agent.
const BackgroundSessionID = "__background__"

const (
	// Registration and status.
	TypeBackgroundReady     = "background_ready"
	TypeBrowserReady        = "browser_ready"
	TypeMCPClientReady      = "mcp_client_ready"
	TypeMCPClientRegistered = "mcp_client_registered"
	TypeBackgroundStatus    = "background_status"

	// Request/response plumbing.
	TypeResponse       = "response"
	TypeRouteToSession = "route_to_session"

	// Liveness.
	TypeHealthCheck = "health_check"
	TypePing        = "ping"
	TypePong        = "pong"

	// Controller events.
	TypeDialogOpened        = "dialog_opened"
	TypeWindowClosed        = "window_closed"
	TypeTabAdded            = "tab_added"
	TypeActiveTabChanged    = "active_tab_changed"
	TypeNavigationCompleted = "navigation_completed"
)

// Controller commands. Every command frame carries
// sessionId __background__ and a typed data payload.
const (
	TypeCreateSession  = "create_session_command"
	TypeCloseSession   = "close_session_command"
	TypeGetSessions    = "get_sessions_command"
	TypeOpenNewTab     = "open_new_tab_command"
	TypeGetTabHandles  = "get_tab_handles_command"
	TypeSwitchToTab    = "switch_to_tab_command"
	TypeCloseTab       = "close_tab_command"
	TypeTakeScreenshot = "take_screenshot_command"
	TypeNavigate       = "navigate_command"

	TypeAttachDebugger      = "attach_debugger_command"
	TypeDetachDebugger      = "detach_debugger_command"
	TypeToggleNetwork       = "toggle_network_capture_command"
	TypeToggleConsole       = "toggle_console_capture_command"
	TypeToggleWebSocket     = "toggle_websocket_capture_command"
	TypeGetNetworkLogs      = "get_network_logs_command"
	TypeGetConsoleLogs      = "get_console_logs_command"
	TypeGetWebSocketLogs    = "get_websocket_logs_command"
	TypeClearCapturedLogs   = "clear_captured_logs_command"
	TypeEvaluateExpression  = "evaluate_expression_command"
	TypeToggleInterception  = "toggle_request_interception_command"
	TypeGetPerformanceStats = "get_performance_metrics_command"
)

const commandSuffix = "_command"

// Frame is the single envelope exchanged on every peer WebSocket. Absent
// fields are omitted on the wire; Success is a pointer so that response
// frames can distinguish "failed" from "not a response".
type Frame struct {
	Type          string          `json:"type"`
	RequestID     string          `json:"requestId,omitempty"`
	SessionID     string          `json:"sessionId,omitempty"`
	MCPInstanceID string          `json:"mcpInstanceId,omitempty"`
	OriginalType  string          `json:"originalType,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Success       *bool           `json:"success,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// IsCommandType reports whether a frame type names a controller command.
func IsCommandType(t string) bool {
	return strings.HasSuffix(t, commandSuffix)
}

// IsEventType reports whether a frame type is a spontaneous controller
// event.
func IsEventType(t string) bool {
	switch t {
	case TypeDialogOpened, TypeWindowClosed, TypeTabAdded, TypeActiveTabChanged, TypeNavigationCompleted:
		return true
	}
	return false
}

// IsCommand reports whether the frame is a controller command.
func (f Frame) IsCommand() bool {
	return IsCommandType(f.Type)
}

// IsResponse reports whether the frame completes a pending request.
func (f Frame) IsResponse() bool {
	return f.Type == TypeResponse && f.RequestID != ""
}

// OK reports whether a response frame carries a successful result.
func (f Frame) OK() bool {
	return f.Success != nil && *f.Success
}

// Bool returns a pointer for the Success field.
func Bool(v bool) *bool { return &v }

// NewResponse builds a successful response frame for req with the given
// payload already marshalled.
func NewResponse(req Frame, data json.RawMessage) Frame {
	return Frame{
		Type:          TypeResponse,
		RequestID:     req.RequestID,
		SessionID:     req.SessionID,
		MCPInstanceID: req.MCPInstanceID,
		Data:          data,
		Success:       Bool(true),
	}
}

// NewErrorResponse builds a failed response frame for req.
func NewErrorResponse(req Frame, msg string) Frame {
	return Frame{
		Type:          TypeResponse,
		RequestID:     req.RequestID,
		SessionID:     req.SessionID,
		MCPInstanceID: req.MCPInstanceID,
		Success:       Bool(false),
		Error:         msg,
	}
}

// Marshal encodes a frame, panicking never: marshal of Frame cannot fail for
// any value constructed through this package.
func Marshal(f Frame) []byte {
	raw, err := json.Marshal(f)
	if err != nil {
		return []byte(`{"type":"response","success":false,"error":"frame encode failure"}`)
	}
	return raw
}

// MarshalData encodes a payload for the Data field. The payload structs in
// this package marshal without error; anything else that fails becomes an
// empty object so the frame still goes out.
func MarshalData(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

// Registration payloads.

type BrowserReadyData struct {
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

type MCPClientReadyData struct {
	InstanceID string `json:"instanceId"`
}

type MCPClientRegisteredData struct {
	InstanceID          string `json:"instanceId"`
	BackgroundConnected bool   `json:"backgroundConnected"`
}

type BackgroundStatusData struct {
	Connected bool `json:"connected"`
}

// HealthCheckData refreshes page-agent metadata; never answered.
type HealthCheckData struct {
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// Controller command payloads.

type CreateSessionData struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url,omitempty"`
}

type CloseSessionData struct {
	SessionID string `json:"sessionId"`
}

type OpenNewTabData struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url,omitempty"`
	SwitchTo  bool   `json:"switchTo,omitempty"`
}

type GetTabHandlesData struct {
	SessionID string `json:"sessionId"`
}

type SwitchToTabData struct {
	SessionID string `json:"sessionId"`
	TabHandle string `json:"tabHandle"`
}

type CloseTabData struct {
	SessionID string `json:"sessionId"`
	TabHandle string `json:"tabHandle"`
}

type TakeScreenshotData struct {
	SessionID string `json:"sessionId"`
	Format    string `json:"format,omitempty"`
	Quality   int    `json:"quality,omitempty"`
}

type NavigateData struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type EvaluateExpressionData struct {
	SessionID  string `json:"sessionId"`
	Expression string `json:"expression"`
}

type ToggleCaptureData struct {
	SessionID string `json:"sessionId"`
	Enabled   bool   `json:"enabled"`
}

// GetLogsData pages through a capture buffer; zero Limit means
// controller-default.
type GetLogsData struct {
	SessionID string `json:"sessionId"`
	Filter    string `json:"filter,omitempty"`
	Level     string `json:"level,omitempty"`
	Offset    int    `json:"offset,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type ClearLogsData struct {
	SessionID string `json:"sessionId"`
	Buffer    string `json:"buffer,omitempty"`
}

// Controller command results.

type TabInfo struct {
	Handle    string `json:"handle"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`
	Active    bool   `json:"active,omitempty"`
	CreatedAt int64  `json:"createdAt,omitempty"`
}

type SessionCreatedData struct {
	SessionID       string    `json:"sessionId"`
	WindowHandle    string    `json:"windowHandle"`
	ActiveTabHandle string    `json:"activeTabHandle"`
	Tabs            []TabInfo `json:"tabs,omitempty"`
	Reused          bool      `json:"reused,omitempty"`
}

type SessionSummary struct {
	SessionID       string `json:"sessionId"`
	WindowHandle    string `json:"windowHandle"`
	ActiveTabHandle string `json:"activeTabHandle"`
	TabCount        int    `json:"tabCount"`
}

type SessionListData struct {
	Sessions []SessionSummary `json:"sessions"`
}

type TabHandlesData struct {
	Tabs            []TabInfo `json:"tabs"`
	ActiveTabHandle string    `json:"activeTabHandle,omitempty"`
}

type ScreenshotData struct {
	Format  string `json:"format"`
	Quality int    `json:"quality,omitempty"`
	DataURL string `json:"dataUrl"`
}

// Controller event payloads.

type DialogOpenedData struct {
	DialogType string `json:"dialogType"`
	Message    string `json:"message,omitempty"`
	URL        string `json:"url,omitempty"`
}

type TabEventData struct {
	TabHandle string `json:"tabHandle"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`
}
