package controller

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityalohuni/browser-bridge/internal/protocol"
)

// fakeCommander records the last command and plays back a canned frame.
type fakeCommander struct {
	lastType string
	lastData json.RawMessage
	resp     protocol.Frame
	err      error
}

func (f *fakeCommander) SendCommand(_ context.Context, cmdType string, data any) (protocol.Frame, error) {
	f.lastType = cmdType
	f.lastData = protocol.MarshalData(data)
	return f.resp, f.err
}

func okFrame(data string) protocol.Frame {
	return protocol.Frame{
		Type:    protocol.TypeResponse,
		Success: protocol.Bool(true),
		Data:    json.RawMessage(data),
	}
}

func TestCreateSessionDecodesResult(t *testing.T) {
	fc := &fakeCommander{resp: okFrame(`{"sessionId":"session_0a1b2c3d","windowHandle":"w1","activeTabHandle":"t1","reused":true}`)}
	c := NewClient(fc, Options{})

	out, err := c.CreateSession(context.Background(), "session_0a1b2c3d", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeCreateSession, fc.lastType)
	assert.Equal(t, "w1", out.WindowHandle)
	assert.True(t, out.Reused)

	var sent protocol.CreateSessionData
	require.NoError(t, json.Unmarshal(fc.lastData, &sent))
	assert.Equal(t, "https://example.com", sent.URL)
}

func TestCommandFailureSurfacesControllerError(t *testing.T) {
	fc := &fakeCommander{resp: protocol.Frame{
		Type:    protocol.TypeResponse,
		Success: protocol.Bool(false),
		Error:   "cannot close the last tab",
	}}
	c := NewClient(fc, Options{})

	err := c.CloseTab(context.Background(), "session_0a1b2c3d", "t1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot close the last tab")
}

func TestScreenshotQualityClamped(t *testing.T) {
	fc := &fakeCommander{resp: okFrame(`{"format":"jpeg","dataUrl":"data:image/jpeg;base64,xx"}`)}
	c := NewClient(fc, Options{})

	_, err := c.TakeScreenshot(context.Background(), "session_0a1b2c3d", "jpeg", 250)
	require.NoError(t, err)
	var sent protocol.TakeScreenshotData
	require.NoError(t, json.Unmarshal(fc.lastData, &sent))
	assert.Equal(t, 100, sent.Quality)

	_, err = c.TakeScreenshot(context.Background(), "session_0a1b2c3d", "jpeg", -3)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(fc.lastData, &sent))
	assert.Equal(t, 1, sent.Quality)
}

func TestScreenshotPNGIgnoresQuality(t *testing.T) {
	fc := &fakeCommander{resp: okFrame(`{"format":"png","dataUrl":"data:image/png;base64,xx"}`)}
	c := NewClient(fc, Options{})

	_, err := c.TakeScreenshot(context.Background(), "session_0a1b2c3d", "png", 90)
	require.NoError(t, err)
	var sent protocol.TakeScreenshotData
	require.NoError(t, json.Unmarshal(fc.lastData, &sent))
	assert.Equal(t, "png", sent.Format)
	assert.Zero(t, sent.Quality)
}

func TestScreenshotRejectsUnknownFormat(t *testing.T) {
	c := NewClient(&fakeCommander{}, Options{})
	_, err := c.TakeScreenshot(context.Background(), "session_0a1b2c3d", "webp", 80)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webp")
}

func TestValidationShortCircuitsBeforeSending(t *testing.T) {
	fc := &fakeCommander{resp: okFrame(`{}`)}
	c := NewClient(fc, Options{})

	_, err := c.CreateSession(context.Background(), "", "")
	require.Error(t, err)
	require.Error(t, c.Navigate(context.Background(), "session_0a1b2c3d", ""))
	require.Error(t, c.SwitchToTab(context.Background(), "session_0a1b2c3d", ""))
	require.Error(t, c.ClearLogs(context.Background(), "session_0a1b2c3d", "bogus"))
	assert.Empty(t, fc.lastType, "no command may have been sent")
}

func TestGetNetworkLogsPassesQueryThrough(t *testing.T) {
	fc := &fakeCommander{resp: okFrame(`{"entries":[{"requestId":"r1","url":"https://example.com","status":200}],"totalCaptured":7}`)}
	c := NewClient(fc, Options{})

	out, err := c.GetNetworkLogs(context.Background(), protocol.GetLogsData{
		SessionID: "session_0a1b2c3d",
		Filter:    "example.com",
		Limit:     25,
	})
	require.NoError(t, err)
	require.Len(t, out.Entries, 1)
	assert.Equal(t, int64(7), out.TotalCaptured)

	var sent protocol.GetLogsData
	require.NoError(t, json.Unmarshal(fc.lastData, &sent))
	assert.Equal(t, 25, sent.Limit)
	assert.Equal(t, "example.com", sent.Filter)
}

func TestEvaluateExpressionReturnsRawResult(t *testing.T) {
	fc := &fakeCommander{resp: okFrame(`{"result":{"type":"number","value":4}}`)}
	c := NewClient(fc, Options{})

	raw, err := c.EvaluateExpression(context.Background(), "session_0a1b2c3d", "2+2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":{"type":"number","value":4}}`, string(raw))
}
