package wsbridge

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/adityalohuni/browser-bridge/internal/protocol"
)

// dispatch routes one inbound frame. The rules are ordered by priority:
// registration, response correlation, health, controller events, peer-bridge
// command forwarding, session routing, then discard. Frames destined for
// another peer are forwarded verbatim so payloads never round-trip through a
// struct.
func (b *Bridge) dispatch(p *Peer, raw []byte) {
	frameType := gjson.GetBytes(raw, "type").String()
	debugFrame(b.log, "in", frameType, raw)
	b.observeFrame("in", frameType)

	switch frameType {
	case protocol.TypePing:
		if err := p.TrySend(pongFrame); err != nil {
			b.log.Debug("pong dropped", "peer", p.ID, "err", err)
		}
		return
	case protocol.TypePong:
		// readLoop already refreshed lastSeen.
		return
	}

	var f protocol.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		b.log.Warn("malformed ws frame dropped", "peer", p.ID, "err", err)
		return
	}

	if p.Role == "" {
		b.register(p, f)
		return
	}

	switch {
	case f.IsResponse():
		b.handleResponse(f, raw)

	case f.Type == protocol.TypeHealthCheck:
		var hc protocol.HealthCheckData
		if len(f.Data) > 0 {
			_ = json.Unmarshal(f.Data, &hc)
		}
		p.Touch(hc.URL, hc.Title)

	case f.Type == protocol.TypeDialogOpened:
		b.handleDialog(p, f, raw)

	case protocol.IsEventType(f.Type):
		b.handleEvent(p, f, raw)

	case f.IsCommand() && p.Role == RolePeerBridge:
		b.forwardCommand(p, f, raw)

	case f.Type == protocol.TypeRouteToSession:
		b.routeToSession(p, f)

	default:
		b.log.Debug("unroutable frame discarded", "peer", p.ID, "type", f.Type)
	}
}

// register installs a peer from its first frame. Registration is single-shot:
// a socket that wants a different role reconnects. A duplicate controller or
// a duplicate agent for the same session replaces the incumbent, which is
// then treated as disconnected.
func (b *Bridge) register(p *Peer, f protocol.Frame) {
	switch f.Type {
	case protocol.TypeBackgroundReady:
		p.Role = RoleController
		if displaced := b.table.SetController(p); displaced != nil {
			b.rejectDisplaced(displaced, "controller replaced")
		}
		b.broadcastBackgroundStatus(true)
		b.log.Info("controller registered", "peer", p.ID)

	case protocol.TypeBrowserReady:
		if f.SessionID == "" || f.SessionID == protocol.BackgroundSessionID {
			b.log.Warn("page agent registration without session id", "peer", p.ID)
			p.CloseGracefully("browser_ready requires a sessionId")
			return
		}
		var meta protocol.BrowserReadyData
		if len(f.Data) > 0 {
			_ = json.Unmarshal(f.Data, &meta)
		}
		p.Role = RolePageAgent
		p.SessionID = f.SessionID
		p.Touch(meta.URL, meta.Title)
		if displaced := b.table.SetAgent(f.SessionID, p); displaced != nil {
			b.rejectDisplaced(displaced, "page agent replaced")
		}
		b.log.Info("page agent registered", "peer", p.ID, "session_id", f.SessionID, "url", meta.URL)

	case protocol.TypeMCPClientReady:
		var reg protocol.MCPClientReadyData
		if len(f.Data) > 0 {
			_ = json.Unmarshal(f.Data, &reg)
		}
		if reg.InstanceID == "" {
			reg.InstanceID = f.MCPInstanceID
		}
		if reg.InstanceID == "" {
			b.log.Warn("peer bridge registration without instance id", "peer", p.ID)
			p.CloseGracefully("mcp_client_ready requires an instanceId")
			return
		}
		p.Role = RolePeerBridge
		p.InstanceID = reg.InstanceID
		if displaced := b.table.SetBridge(reg.InstanceID, p); displaced != nil {
			b.rejectDisplaced(displaced, "peer bridge replaced")
		}
		_, controllerUp := b.table.Controller()
		ack := protocol.Marshal(protocol.Frame{
			Type: protocol.TypeMCPClientRegistered,
			Data: protocol.MarshalData(protocol.MCPClientRegisteredData{
				InstanceID:          reg.InstanceID,
				BackgroundConnected: controllerUp,
			}),
		})
		if err := p.TrySend(ack); err != nil {
			b.log.Warn("registration ack dropped", "peer", p.ID, "err", err)
		}
		b.log.Info("peer bridge registered", "peer", p.ID, "instance_id", reg.InstanceID)

	default:
		b.log.Warn("first frame did not register a role", "peer", p.ID, "type", f.Type)
		p.CloseGracefully("expected a registration frame")
	}
}

// rejectDisplaced closes a peer that lost its slot to a replacement and
// fails whatever it still owed an answer to.
func (b *Bridge) rejectDisplaced(old *Peer, reason string) {
	old.CloseGracefully(reason)
	var pred func(sid string, target targetKind) bool
	switch old.Role {
	case RoleController:
		pred = func(_ string, target targetKind) bool { return target == targetController }
	case RolePageAgent:
		pred = func(sid string, _ targetKind) bool { return sid == old.SessionID }
	default:
		return
	}
	n := b.correlator.rejectWhere(pred, wrapPeerGone(old, reason))
	b.log.Info("displaced peer torn down", "peer", old.ID, "role", old.Role, "reason", reason, "rejected_pending", n)
}

// handleResponse resolves a local pending, or forwards the frame verbatim
// when it belongs to another bridge instance. Unknown ids are late arrivals
// after a timeout and are dropped silently.
func (b *Bridge) handleResponse(f protocol.Frame, raw []byte) {
	if f.MCPInstanceID != "" && f.MCPInstanceID != b.instanceID {
		bp, ok := b.table.Bridge(f.MCPInstanceID)
		if !ok {
			b.log.Warn("response for unknown bridge instance dropped",
				"instance_id", f.MCPInstanceID, "request_id", f.RequestID)
			return
		}
		if err := bp.TrySend(raw); err != nil {
			b.log.Warn("response forward to peer bridge failed",
				"instance_id", f.MCPInstanceID, "request_id", f.RequestID, "err", err)
		}
		return
	}
	if !b.correlator.resolve(f) {
		b.log.Debug("late response dropped", "request_id", f.RequestID)
	}
}

// handleDialog forwards a dialog event to the driver owning the session and
// re-broadcasts it to peer bridges, whose own drivers this instance cannot
// reach.
func (b *Bridge) handleDialog(from *Peer, f protocol.Frame, raw []byte) {
	b.notifyDriver(f.SessionID, protocol.TypeDialogOpened, f.Data)
	for _, bp := range b.table.Bridges() {
		if bp == from {
			continue
		}
		if err := bp.TrySend(raw); err != nil {
			b.log.Debug("dialog broadcast dropped", "instance_id", bp.InstanceID, "err", err)
		}
	}
}

// handleEvent folds a controller lifecycle event into the session mirror and
// re-broadcasts it to peer bridges. A closed window drops the session and
// releases the driver binding.
func (b *Bridge) handleEvent(from *Peer, f protocol.Frame, raw []byte) {
	if f.Type == protocol.TypeWindowClosed {
		if b.mirror != nil {
			b.mirror.Drop(f.SessionID)
		}
		if b.owners != nil {
			b.owners.Unbind(f.SessionID)
		}
		b.log.Info("window closed, session dropped", "session_id", f.SessionID)
	} else if b.mirror != nil {
		b.mirror.ApplyEvent(f)
	}
	for _, bp := range b.table.Bridges() {
		if bp == from {
			continue
		}
		if err := bp.TrySend(raw); err != nil {
			b.log.Debug("event broadcast dropped", "instance_id", bp.InstanceID, "err", err)
		}
	}
}

// forwardCommand relays a peer bridge's controller command verbatim. The
// controller's response carries the originating mcpInstanceId and returns
// through handleResponse.
func (b *Bridge) forwardCommand(from *Peer, f protocol.Frame, raw []byte) {
	ctrl, ok := b.table.Controller()
	if !ok {
		b.replyError(from, f, ErrNoController.Error())
		return
	}
	if err := ctrl.TrySend(raw); err != nil {
		b.replyError(from, f, err.Error())
	}
}

// routeToSession resolves the page agent for a routed request, restores the
// original envelope type, and forwards. A missing agent synthesizes a failed
// response back to the originator so its correlator settles.
func (b *Bridge) routeToSession(from *Peer, f protocol.Frame) {
	agent, ok := b.table.Agent(f.SessionID)
	if !ok {
		b.replyError(from, f, ErrRouteFailure.Error()+" "+f.SessionID)
		return
	}
	if f.OriginalType == "" {
		b.replyError(from, f, "route_to_session without originalType")
		return
	}
	fwd := f
	fwd.Type = f.OriginalType
	fwd.OriginalType = ""
	if err := agent.TrySend(protocol.Marshal(fwd)); err != nil {
		b.replyError(from, f, err.Error())
	}
}

// replyError synthesizes a success=false response frame; the dispatcher
// itself never fails a request without answering it.
func (b *Bridge) replyError(to *Peer, req protocol.Frame, msg string) {
	raw := protocol.Marshal(protocol.NewErrorResponse(req, msg))
	if err := to.TrySend(raw); err != nil {
		b.log.Warn("error reply dropped", "peer", to.ID, "request_id", req.RequestID, "err", err)
	}
}

func wrapPeerGone(p *Peer, reason string) error {
	return &peerGoneError{role: p.Role, reason: reason}
}

// peerGoneError tags ErrPeerGone with which kind of peer went away.
type peerGoneError struct {
	role   Role
	reason string
}

func (e *peerGoneError) Error() string {
	return string(e.role) + " connection lost: " + e.reason
}

func (e *peerGoneError) Unwrap() error { return ErrPeerGone }
