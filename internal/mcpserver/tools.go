package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/adityalohuni/browser-bridge/internal/protocol"
	"github.com/adityalohuni/browser-bridge/internal/session"
)

// ErrPayloadInvalid covers tool arguments that fail schema expectations.
var ErrPayloadInvalid = errors.New("invalid tool arguments")

const (
	// agentTimeout bounds routed page operations; the agent contract says
	// every operation answers within the global request cap anyway.
	agentTimeout = 30 * time.Second
	// waitDefaultMs and waitMaxMs bound wait_for_element's own polling
	// budget inside the page agent.
	waitDefaultMs = 10000
	waitMaxMs     = 55000
)

// toolFunc handles one tool call for an already-resolved transport.
type toolFunc func(ctx context.Context, transportID string, args map[string]any) (string, error)

func (s *Server) registerTools() {
	for _, t := range []struct {
		name   string
		desc   string
		schema string
		fn     toolFunc
	}{
		{"create_automation_session", "Create an isolated browser window for this connection. Idempotent: a second call returns the same session.", schemaCreateSession, s.toolCreateSession},
		{"close_automation_session", "Close this connection's browser window and forget the session.", schemaEmpty, s.toolCloseSession},
		{"get_automation_status", "Report bridge role, browser connectivity, and this connection's session state.", schemaEmpty, s.toolStatus},

		{"navigate_to", "Navigate the session's active tab to a URL. Returns when navigation is committed, not when the page finished loading.", schemaNavigate, s.toolNavigate},
		{"open_new_tab", "Open a new tab in the session's window, optionally switching to it.", schemaOpenNewTab, s.toolOpenNewTab},
		{"get_tab_handles", "List the session's tab handles. Dead handles are pruned before the answer.", schemaEmpty, s.toolGetTabHandles},
		{"switch_to_tab", "Make the given tab the session's active tab.", schemaTabHandle, s.toolSwitchToTab},
		{"close_tab", "Close one tab. Closing the last tab of the window is refused.", schemaTabHandle, s.toolCloseTab},
		{"take_screenshot", "Capture the active tab as a data URL. Format jpeg (default) or png; quality 1-100, ignored for png.", schemaScreenshot, s.toolTakeScreenshot},

		{"get_network_logs", "Page through the session's captured network requests.", schemaNetworkLogs, s.toolGetNetworkLogs},
		{"get_console_logs", "Page through the session's captured console messages.", schemaConsoleLogs, s.toolGetConsoleLogs},
		{"get_websocket_logs", "Page through the session's captured WebSocket frames.", schemaPagedLogs, s.toolGetWebSocketLogs},
		{"clear_captured_logs", "Empty one capture buffer, or all of them.", schemaClearLogs, s.toolClearLogs},
		{"evaluate_expression", "Evaluate a JavaScript expression in the active tab and return its raw result.", schemaEvaluate, s.toolEvaluate},
		{"get_performance_metrics", "Dump the active tab's performance counters.", schemaEmpty, s.toolPerformanceMetrics},

		{"get_current_url", "Return the active page's URL as seen by the page itself.", schemaEmpty, s.agentTool("get_current_url", nil)},
		{"get_page_title", "Return the active page's document title.", schemaEmpty, s.agentTool("get_page_title", nil)},
		{"click_element", "Click the first element matching a CSS selector.", schemaSelector, s.agentTool("click_element", []string{"selector"})},
		{"fill_field", "Set the value of the input matching a CSS selector.", schemaFillField, s.agentTool("fill_field", []string{"selector", "value"})},
		{"extract_page_text", "Extract the page's visible text.", schemaExtractText, s.agentTool("extract_page_text", nil)},
		{"wait_for_element", "Wait until an element matching the selector exists.", schemaWaitFor, s.toolWaitForElement},
	} {
		tool := mcp.NewToolWithRawSchema(t.name, t.desc, json.RawMessage(t.schema))
		s.mcp.AddTool(tool, s.wrap(t.name, t.fn))
	}
}

// wrap resolves the caller's transport session, runs the tool, and renders
// the outcome. Failures become "Error: ..." tool text, never JSON-RPC errors.
func (s *Server) wrap(name string, fn toolFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cs := server.ClientSessionFromContext(ctx)
		if cs == nil {
			s.metrics.ObserveToolCall(name, false)
			return mcp.NewToolResultError("Error: no transport session for this call"), nil
		}
		transportID := cs.SessionID()
		s.registry.Touch(transportID)

		text, err := fn(ctx, transportID, req.GetArguments())
		if err != nil {
			s.metrics.ObserveToolCall(name, false)
			s.log.Warn("tool call failed", "tool", name, "transport_id", transportID, "err", err)
			return mcp.NewToolResultError("Error: " + err.Error()), nil
		}
		s.metrics.ObserveToolCall(name, true)
		return mcp.NewToolResultText(text), nil
	}
}

func (s *Server) toolCreateSession(ctx context.Context, transportID string, args map[string]any) (string, error) {
	url, _ := stringArg(args, "url", false)
	sid, fresh, err := s.registry.Bind(transportID)
	if err != nil {
		return "", err
	}
	s.cancelGrace(sid)

	created, err := s.controller.CreateSession(ctx, sid, url)
	if err != nil {
		if fresh {
			s.registry.Unbind(sid)
		}
		return "", err
	}
	if created.SessionID == "" {
		created.SessionID = sid
	}
	s.store.Put(session.Session{
		ID:              created.SessionID,
		WindowHandle:    created.WindowHandle,
		ActiveTabHandle: created.ActiveTabHandle,
		Tabs:            mirrorTabs(created.Tabs),
	})
	return marshalText(map[string]any{
		"session_id":        created.SessionID,
		"window_handle":     created.WindowHandle,
		"active_tab_handle": created.ActiveTabHandle,
		"reused":            created.Reused,
	})
}

func (s *Server) toolCloseSession(ctx context.Context, transportID string, _ map[string]any) (string, error) {
	sid, err := s.registry.SessionOrError(transportID)
	if err != nil {
		return "", err
	}
	closeErr := s.controller.CloseSession(ctx, sid)
	s.fabric.CancelSessionPendings(sid, errors.New("session closed by driver"))
	s.store.Drop(sid)
	s.registry.Unbind(sid)
	s.cancelGrace(sid)
	if closeErr != nil {
		return "", closeErr
	}
	return marshalText(map[string]any{"closed": true, "session_id": sid})
}

func (s *Server) toolStatus(_ context.Context, transportID string, _ map[string]any) (string, error) {
	status := map[string]any{
		"bridge_role":          string(s.fabric.Role()),
		"controller_connected": s.fabric.ControllerConnected(),
		"session_bound":        false,
	}
	if sid, ok := s.registry.Lookup(transportID); ok {
		status["session_bound"] = true
		status["session_id"] = sid
		if sess, ok := s.store.Get(sid); ok {
			status["window_handle"] = sess.WindowHandle
			status["active_tab_handle"] = sess.ActiveTabHandle
			status["tab_count"] = len(sess.Tabs)
		}
	}
	return marshalText(status)
}

func (s *Server) toolNavigate(ctx context.Context, transportID string, args map[string]any) (string, error) {
	url, err := stringArg(args, "url", true)
	if err != nil {
		return "", err
	}
	sid, err := s.registry.SessionOrError(transportID)
	if err != nil {
		return "", err
	}
	if err := s.controller.Navigate(ctx, sid, url); err != nil {
		return "", err
	}
	return marshalText(map[string]any{"navigated": true, "url": url})
}

func (s *Server) toolOpenNewTab(ctx context.Context, transportID string, args map[string]any) (string, error) {
	sid, err := s.registry.SessionOrError(transportID)
	if err != nil {
		return "", err
	}
	url, _ := stringArg(args, "url", false)
	switchTo := boolArg(args, "switch_to")
	tab, err := s.controller.OpenNewTab(ctx, sid, url, switchTo)
	if err != nil {
		return "", err
	}
	s.store.ApplyEvent(protocol.Frame{
		Type:      protocol.TypeTabAdded,
		SessionID: sid,
		Data: protocol.MarshalData(protocol.TabEventData{
			TabHandle: tab.Handle,
			URL:       tab.URL,
			Title:     tab.Title,
		}),
	})
	if switchTo && tab.Handle != "" {
		s.store.ApplyEvent(protocol.Frame{
			Type:      protocol.TypeActiveTabChanged,
			SessionID: sid,
			Data:      protocol.MarshalData(protocol.TabEventData{TabHandle: tab.Handle}),
		})
	}
	return marshalText(map[string]any{"tab_handle": tab.Handle, "url": tab.URL, "switched": switchTo})
}

func (s *Server) toolGetTabHandles(ctx context.Context, transportID string, _ map[string]any) (string, error) {
	sid, err := s.registry.SessionOrError(transportID)
	if err != nil {
		return "", err
	}
	res, err := s.controller.GetTabHandles(ctx, sid)
	if err != nil {
		return "", err
	}
	s.store.SetTabs(sid, mirrorTabs(res.Tabs), res.ActiveTabHandle)
	return marshalText(res)
}

func (s *Server) toolSwitchToTab(ctx context.Context, transportID string, args map[string]any) (string, error) {
	handle, err := stringArg(args, "tab_handle", true)
	if err != nil {
		return "", err
	}
	sid, err := s.registry.SessionOrError(transportID)
	if err != nil {
		return "", err
	}
	if err := s.controller.SwitchToTab(ctx, sid, handle); err != nil {
		return "", err
	}
	s.store.ApplyEvent(protocol.Frame{
		Type:      protocol.TypeActiveTabChanged,
		SessionID: sid,
		Data:      protocol.MarshalData(protocol.TabEventData{TabHandle: handle}),
	})
	return marshalText(map[string]any{"active_tab_handle": handle})
}

func (s *Server) toolCloseTab(ctx context.Context, transportID string, args map[string]any) (string, error) {
	handle, err := stringArg(args, "tab_handle", true)
	if err != nil {
		return "", err
	}
	sid, err := s.registry.SessionOrError(transportID)
	if err != nil {
		return "", err
	}
	if err := s.controller.CloseTab(ctx, sid, handle); err != nil {
		return "", err
	}
	s.store.RemoveTab(sid, handle)
	return marshalText(map[string]any{"closed": true, "tab_handle": handle})
}

func (s *Server) toolTakeScreenshot(ctx context.Context, transportID string, args map[string]any) (string, error) {
	sid, err := s.registry.SessionOrError(transportID)
	if err != nil {
		return "", err
	}
	format, _ := stringArg(args, "format", false)
	quality, _, err := intArg(args, "quality")
	if err != nil {
		return "", err
	}
	shot, err := s.controller.TakeScreenshot(ctx, sid, format, quality)
	if err != nil {
		return "", err
	}
	return shot.DataURL, nil
}

func (s *Server) toolGetNetworkLogs(ctx context.Context, transportID string, args map[string]any) (string, error) {
	sid, err := s.registry.SessionOrError(transportID)
	if err != nil {
		return "", err
	}
	query, err := logsQuery(sid, args)
	if err != nil {
		return "", err
	}
	query.Filter, _ = stringArg(args, "filter", false)
	res, err := s.controller.GetNetworkLogs(ctx, query)
	if err != nil {
		return "", err
	}
	return marshalText(res)
}

func (s *Server) toolGetConsoleLogs(ctx context.Context, transportID string, args map[string]any) (string, error) {
	sid, err := s.registry.SessionOrError(transportID)
	if err != nil {
		return "", err
	}
	query, err := logsQuery(sid, args)
	if err != nil {
		return "", err
	}
	query.Level, _ = stringArg(args, "level", false)
	res, err := s.controller.GetConsoleLogs(ctx, query)
	if err != nil {
		return "", err
	}
	return marshalText(res)
}

func (s *Server) toolGetWebSocketLogs(ctx context.Context, transportID string, args map[string]any) (string, error) {
	sid, err := s.registry.SessionOrError(transportID)
	if err != nil {
		return "", err
	}
	query, err := logsQuery(sid, args)
	if err != nil {
		return "", err
	}
	res, err := s.controller.GetWebSocketLogs(ctx, query)
	if err != nil {
		return "", err
	}
	return marshalText(res)
}

func (s *Server) toolClearLogs(ctx context.Context, transportID string, args map[string]any) (string, error) {
	sid, err := s.registry.SessionOrError(transportID)
	if err != nil {
		return "", err
	}
	buffer, _ := stringArg(args, "buffer", false)
	if err := s.controller.ClearLogs(ctx, sid, buffer); err != nil {
		return "", err
	}
	if buffer == "" {
		buffer = "all"
	}
	return marshalText(map[string]any{"cleared": buffer})
}

func (s *Server) toolEvaluate(ctx context.Context, transportID string, args map[string]any) (string, error) {
	expr, err := stringArg(args, "expression", true)
	if err != nil {
		return "", err
	}
	sid, err := s.registry.SessionOrError(transportID)
	if err != nil {
		return "", err
	}
	raw, err := s.controller.EvaluateExpression(ctx, sid, expr)
	if err != nil {
		return "", err
	}
	return rawText(raw), nil
}

func (s *Server) toolPerformanceMetrics(ctx context.Context, transportID string, _ map[string]any) (string, error) {
	sid, err := s.registry.SessionOrError(transportID)
	if err != nil {
		return "", err
	}
	raw, err := s.controller.GetPerformanceMetrics(ctx, sid)
	if err != nil {
		return "", err
	}
	return rawText(raw), nil
}

// agentTool builds a handler that forwards the tool's arguments opaquely to
// the session's page agent, enforcing only the required keys.
func (s *Server) agentTool(opType string, required []string) toolFunc {
	return func(ctx context.Context, transportID string, args map[string]any) (string, error) {
		for _, key := range required {
			v, ok := args[key]
			str, isStr := v.(string)
			if !ok || !isStr {
				return "", fmt.Errorf("%w: %q is required", ErrPayloadInvalid, key)
			}
			// An empty value is legal (it clears a field); an empty
			// selector never matches anything.
			if key == "selector" && str == "" {
				return "", fmt.Errorf("%w: %q is required", ErrPayloadInvalid, key)
			}
		}
		return s.agentCall(ctx, transportID, opType, args, agentTimeout)
	}
}

func (s *Server) toolWaitForElement(ctx context.Context, transportID string, args map[string]any) (string, error) {
	if _, err := stringArg(args, "selector", true); err != nil {
		return "", err
	}
	timeoutMs, ok, err := intArg(args, "timeout_ms")
	if err != nil {
		return "", err
	}
	if !ok || timeoutMs <= 0 {
		timeoutMs = waitDefaultMs
	}
	if timeoutMs > waitMaxMs {
		timeoutMs = waitMaxMs
	}
	args["timeout_ms"] = timeoutMs
	// The call deadline leaves the agent room to answer after its own
	// polling budget expires.
	return s.agentCall(ctx, transportID, "wait_for_element", args, time.Duration(timeoutMs)*time.Millisecond+5*time.Second)
}

func (s *Server) agentCall(ctx context.Context, transportID, opType string, args map[string]any, timeout time.Duration) (string, error) {
	sid, err := s.registry.SessionOrError(transportID)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	f, err := s.fabric.SendToAgent(ctx, sid, opType, payload)
	if err != nil {
		return "", err
	}
	if !f.OK() {
		if f.Error == "" {
			return "", fmt.Errorf("page agent rejected %s", opType)
		}
		return "", errors.New(f.Error)
	}
	return rawText(f.Data), nil
}

func mirrorTabs(in []protocol.TabInfo) []session.Tab {
	if len(in) == 0 {
		return nil
	}
	out := make([]session.Tab, 0, len(in))
	for _, t := range in {
		tab := session.Tab{Handle: t.Handle, URL: t.URL, Title: t.Title}
		if t.CreatedAt > 0 {
			tab.CreatedAt = time.UnixMilli(t.CreatedAt)
		}
		out = append(out, tab)
	}
	return out
}

func logsQuery(sid string, args map[string]any) (protocol.GetLogsData, error) {
	offset, _, err := intArg(args, "offset")
	if err != nil {
		return protocol.GetLogsData{}, err
	}
	limit, _, err := intArg(args, "limit")
	if err != nil {
		return protocol.GetLogsData{}, err
	}
	return protocol.GetLogsData{SessionID: sid, Offset: offset, Limit: limit}, nil
}

func stringArg(args map[string]any, key string, required bool) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("%w: %q is required", ErrPayloadInvalid, key)
		}
		return "", nil
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q must be a string", ErrPayloadInvalid, key)
	}
	if required && str == "" {
		return "", fmt.Errorf("%w: %q is required", ErrPayloadInvalid, key)
	}
	return str, nil
}

// intArg accepts the float64 JSON numbers decode to.
func intArg(args map[string]any, key string) (int, bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return int(n), true, nil
	case int:
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("%w: %q must be a number", ErrPayloadInvalid, key)
	}
}

func boolArg(args map[string]any, key string) bool {
	v, ok := args[key].(bool)
	return ok && v
}

func marshalText(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// rawText renders an opaque payload for the driver; an absent payload still
// yields valid JSON.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
