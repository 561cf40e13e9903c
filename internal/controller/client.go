// Package controller wraps the raw controller command protocol in typed Go
// calls. The client is transport-agnostic: anything that can deliver a command
// frame and return its response satisfies Commander, so the same wrappers work
// in server and peer-client bridge roles.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adityalohuni/browser-bridge/internal/capture"
	"github.com/adityalohuni/browser-bridge/internal/protocol"
)

// Commander delivers one controller command and returns its response frame.
type Commander interface {
	SendCommand(ctx context.Context, cmdType string, data any) (protocol.Frame, error)
}

type Options struct {
	// Timeout bounds ordinary commands. Zero means 15 s.
	Timeout time.Duration
	// ScreenshotTimeout bounds screenshot capture, which encodes and
	// base64s a full viewport. Zero means 30 s.
	ScreenshotTimeout time.Duration
}

type Client struct {
	commander         Commander
	timeout           time.Duration
	screenshotTimeout time.Duration
}

func NewClient(commander Commander, opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	shotTimeout := opts.ScreenshotTimeout
	if shotTimeout == 0 {
		shotTimeout = 30 * time.Second
	}
	return &Client{
		commander:         commander,
		timeout:           timeout,
		screenshotTimeout: shotTimeout,
	}
}

// CreateSession asks the controller for a fresh isolated window. The
// controller reuses an existing window when the session id is already live
// and says so in the reply.
func (c *Client) CreateSession(ctx context.Context, sessionID, url string) (protocol.SessionCreatedData, error) {
	if sessionID == "" {
		return protocol.SessionCreatedData{}, errors.New("sessionId is required")
	}
	resp, err := c.send(ctx, protocol.TypeCreateSession, protocol.CreateSessionData{SessionID: sessionID, URL: url}, c.timeout)
	if err != nil {
		return protocol.SessionCreatedData{}, err
	}
	var out protocol.SessionCreatedData
	if err := decodeResponse(resp, &out); err != nil {
		return protocol.SessionCreatedData{}, err
	}
	return out, nil
}

func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("sessionId is required")
	}
	_, err := c.send(ctx, protocol.TypeCloseSession, protocol.CloseSessionData{SessionID: sessionID}, c.timeout)
	return err
}

func (c *Client) GetSessions(ctx context.Context) (protocol.SessionListData, error) {
	resp, err := c.send(ctx, protocol.TypeGetSessions, struct{}{}, c.timeout)
	if err != nil {
		return protocol.SessionListData{}, err
	}
	var out protocol.SessionListData
	if err := decodeResponse(resp, &out); err != nil {
		return protocol.SessionListData{}, err
	}
	return out, nil
}

// Navigate points the session's active tab at url. The controller answers as
// soon as navigation is committed, not when the page finished loading.
func (c *Client) Navigate(ctx context.Context, sessionID, url string) error {
	if sessionID == "" {
		return errors.New("sessionId is required")
	}
	if url == "" {
		return errors.New("url is required")
	}
	_, err := c.send(ctx, protocol.TypeNavigate, protocol.NavigateData{SessionID: sessionID, URL: url}, c.timeout)
	return err
}

func (c *Client) OpenNewTab(ctx context.Context, sessionID, url string, switchTo bool) (protocol.TabInfo, error) {
	if sessionID == "" {
		return protocol.TabInfo{}, errors.New("sessionId is required")
	}
	resp, err := c.send(ctx, protocol.TypeOpenNewTab, protocol.OpenNewTabData{
		SessionID: sessionID,
		URL:       url,
		SwitchTo:  switchTo,
	}, c.timeout)
	if err != nil {
		return protocol.TabInfo{}, err
	}
	var out protocol.TabInfo
	if err := decodeResponse(resp, &out); err != nil {
		return protocol.TabInfo{}, err
	}
	return out, nil
}

// GetTabHandles lists the session's tabs. The controller prunes handles whose
// tabs died since the last call, so the answer is authoritative.
func (c *Client) GetTabHandles(ctx context.Context, sessionID string) (protocol.TabHandlesData, error) {
	if sessionID == "" {
		return protocol.TabHandlesData{}, errors.New("sessionId is required")
	}
	resp, err := c.send(ctx, protocol.TypeGetTabHandles, protocol.GetTabHandlesData{SessionID: sessionID}, c.timeout)
	if err != nil {
		return protocol.TabHandlesData{}, err
	}
	var out protocol.TabHandlesData
	if err := decodeResponse(resp, &out); err != nil {
		return protocol.TabHandlesData{}, err
	}
	return out, nil
}

func (c *Client) SwitchToTab(ctx context.Context, sessionID, tabHandle string) error {
	if sessionID == "" || tabHandle == "" {
		return errors.New("sessionId and tabHandle are required")
	}
	_, err := c.send(ctx, protocol.TypeSwitchToTab, protocol.SwitchToTabData{SessionID: sessionID, TabHandle: tabHandle}, c.timeout)
	return err
}

// CloseTab closes one tab. The controller refuses to close the last tab of a
// window; that refusal comes back as a command error.
func (c *Client) CloseTab(ctx context.Context, sessionID, tabHandle string) error {
	if sessionID == "" || tabHandle == "" {
		return errors.New("sessionId and tabHandle are required")
	}
	_, err := c.send(ctx, protocol.TypeCloseTab, protocol.CloseTabData{SessionID: sessionID, TabHandle: tabHandle}, c.timeout)
	return err
}

// TakeScreenshot captures the active tab. Format defaults to jpeg; quality is
// clamped to [1,100] and dropped entirely for png, which is lossless.
func (c *Client) TakeScreenshot(ctx context.Context, sessionID, format string, quality int) (protocol.ScreenshotData, error) {
	if sessionID == "" {
		return protocol.ScreenshotData{}, errors.New("sessionId is required")
	}
	switch format {
	case "":
		format = "jpeg"
	case "jpeg", "png":
	default:
		return protocol.ScreenshotData{}, fmt.Errorf("unsupported screenshot format %q (want jpeg or png)", format)
	}
	if format == "png" {
		quality = 0
	} else {
		if quality == 0 {
			quality = 80
		}
		if quality < 1 {
			quality = 1
		}
		if quality > 100 {
			quality = 100
		}
	}
	resp, err := c.send(ctx, protocol.TypeTakeScreenshot, protocol.TakeScreenshotData{
		SessionID: sessionID,
		Format:    format,
		Quality:   quality,
	}, c.screenshotTimeout)
	if err != nil {
		return protocol.ScreenshotData{}, err
	}
	var out protocol.ScreenshotData
	if err := decodeResponse(resp, &out); err != nil {
		return protocol.ScreenshotData{}, err
	}
	return out, nil
}

// EvaluateExpression runs a JavaScript expression in the active tab through
// the controller's debugger attachment. The result shape depends on the
// expression, so it is returned raw.
func (c *Client) EvaluateExpression(ctx context.Context, sessionID, expression string) (json.RawMessage, error) {
	if sessionID == "" {
		return nil, errors.New("sessionId is required")
	}
	if expression == "" {
		return nil, errors.New("expression is required")
	}
	resp, err := c.send(ctx, protocol.TypeEvaluateExpression, protocol.EvaluateExpressionData{
		SessionID:  sessionID,
		Expression: expression,
	}, c.timeout)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) AttachDebugger(ctx context.Context, sessionID string) error {
	_, err := c.send(ctx, protocol.TypeAttachDebugger, sessionPayload(sessionID), c.timeout)
	return err
}

func (c *Client) DetachDebugger(ctx context.Context, sessionID string) error {
	_, err := c.send(ctx, protocol.TypeDetachDebugger, sessionPayload(sessionID), c.timeout)
	return err
}

func (c *Client) SetNetworkCapture(ctx context.Context, sessionID string, enabled bool) error {
	_, err := c.send(ctx, protocol.TypeToggleNetwork, protocol.ToggleCaptureData{SessionID: sessionID, Enabled: enabled}, c.timeout)
	return err
}

func (c *Client) SetConsoleCapture(ctx context.Context, sessionID string, enabled bool) error {
	_, err := c.send(ctx, protocol.TypeToggleConsole, protocol.ToggleCaptureData{SessionID: sessionID, Enabled: enabled}, c.timeout)
	return err
}

func (c *Client) SetWebSocketCapture(ctx context.Context, sessionID string, enabled bool) error {
	_, err := c.send(ctx, protocol.TypeToggleWebSocket, protocol.ToggleCaptureData{SessionID: sessionID, Enabled: enabled}, c.timeout)
	return err
}

func (c *Client) SetRequestInterception(ctx context.Context, sessionID string, enabled bool) error {
	_, err := c.send(ctx, protocol.TypeToggleInterception, protocol.ToggleCaptureData{SessionID: sessionID, Enabled: enabled}, c.timeout)
	return err
}

// NetworkLogsResult is a page of the controller's network capture buffer.
// TotalCaptured counts every entry ever buffered; a caller comparing it
// across reads can detect eviction.
type NetworkLogsResult struct {
	Entries       []capture.NetworkLogEntry `json:"entries"`
	TotalCaptured int64                     `json:"totalCaptured"`
}

type ConsoleLogsResult struct {
	Entries       []capture.ConsoleLogEntry `json:"entries"`
	TotalCaptured int64                     `json:"totalCaptured"`
}

type WebSocketLogsResult struct {
	Entries       []capture.WebSocketFrameEntry `json:"entries"`
	TotalCaptured int64                         `json:"totalCaptured"`
}

func (c *Client) GetNetworkLogs(ctx context.Context, query protocol.GetLogsData) (NetworkLogsResult, error) {
	if query.SessionID == "" {
		return NetworkLogsResult{}, errors.New("sessionId is required")
	}
	resp, err := c.send(ctx, protocol.TypeGetNetworkLogs, query, c.timeout)
	if err != nil {
		return NetworkLogsResult{}, err
	}
	var out NetworkLogsResult
	if err := decodeResponse(resp, &out); err != nil {
		return NetworkLogsResult{}, err
	}
	return out, nil
}

func (c *Client) GetConsoleLogs(ctx context.Context, query protocol.GetLogsData) (ConsoleLogsResult, error) {
	if query.SessionID == "" {
		return ConsoleLogsResult{}, errors.New("sessionId is required")
	}
	resp, err := c.send(ctx, protocol.TypeGetConsoleLogs, query, c.timeout)
	if err != nil {
		return ConsoleLogsResult{}, err
	}
	var out ConsoleLogsResult
	if err := decodeResponse(resp, &out); err != nil {
		return ConsoleLogsResult{}, err
	}
	return out, nil
}

func (c *Client) GetWebSocketLogs(ctx context.Context, query protocol.GetLogsData) (WebSocketLogsResult, error) {
	if query.SessionID == "" {
		return WebSocketLogsResult{}, errors.New("sessionId is required")
	}
	resp, err := c.send(ctx, protocol.TypeGetWebSocketLogs, query, c.timeout)
	if err != nil {
		return WebSocketLogsResult{}, err
	}
	var out WebSocketLogsResult
	if err := decodeResponse(resp, &out); err != nil {
		return WebSocketLogsResult{}, err
	}
	return out, nil
}

// ClearLogs empties one capture buffer, or all of them when buffer is empty
// or "all".
func (c *Client) ClearLogs(ctx context.Context, sessionID, buffer string) error {
	if sessionID == "" {
		return errors.New("sessionId is required")
	}
	switch buffer {
	case "", "all", "network", "console", "websocket":
	default:
		return fmt.Errorf("unknown log buffer %q (want network, console, websocket, or all)", buffer)
	}
	_, err := c.send(ctx, protocol.TypeClearCapturedLogs, protocol.ClearLogsData{SessionID: sessionID, Buffer: buffer}, c.timeout)
	return err
}

// GetPerformanceMetrics returns the controller's performance counter dump for
// the active tab, raw because the counter set tracks the browser version.
func (c *Client) GetPerformanceMetrics(ctx context.Context, sessionID string) (json.RawMessage, error) {
	if sessionID == "" {
		return nil, errors.New("sessionId is required")
	}
	resp, err := c.send(ctx, protocol.TypeGetPerformanceStats, sessionPayload(sessionID), c.timeout)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) send(ctx context.Context, cmdType string, payload any, timeout time.Duration) (protocol.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.commander.SendCommand(ctx, cmdType, payload)
	if err != nil {
		return protocol.Frame{}, err
	}
	if !resp.OK() {
		if resp.Error == "" {
			return protocol.Frame{}, fmt.Errorf("controller rejected %s", cmdType)
		}
		return protocol.Frame{}, errors.New(resp.Error)
	}
	return resp, nil
}

func sessionPayload(sessionID string) any {
	return struct {
		SessionID string `json:"sessionId"`
	}{SessionID: sessionID}
}

func decodeResponse(resp protocol.Frame, out any) error {
	if len(resp.Data) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Data, out)
}
