package wsbridge

import "sync"

// Table tracks every registered peer: at most one controller, at most one
// page agent per session, peer bridges keyed by instance id. Set* return
// the displaced peer so the caller can reject its pendings and close it.
type Table struct {
	mu         sync.RWMutex
	controller *Peer
	agents     map[string]*Peer
	bridges    map[string]*Peer
}

func NewTable() *Table {
	return &Table{
		agents:  make(map[string]*Peer),
		bridges: make(map[string]*Peer),
	}
}

func (t *Table) SetController(p *Peer) (displaced *Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	displaced = t.controller
	t.controller = p
	return displaced
}

func (t *Table) Controller() (*Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.controller, t.controller != nil
}

func (t *Table) SetAgent(sessionID string, p *Peer) (displaced *Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	displaced = t.agents[sessionID]
	t.agents[sessionID] = p
	return displaced
}

func (t *Table) Agent(sessionID string) (*Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.agents[sessionID]
	return p, ok
}

func (t *Table) SetBridge(instanceID string, p *Peer) (displaced *Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	displaced = t.bridges[instanceID]
	t.bridges[instanceID] = p
	return displaced
}

func (t *Table) Bridge(instanceID string) (*Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.bridges[instanceID]
	return p, ok
}

// Bridges snapshots the peer-bridge set for broadcasting.
func (t *Table) Bridges() []*Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Peer, 0, len(t.bridges))
	for _, p := range t.bridges {
		out = append(out, p)
	}
	return out
}

// Remove unregisters p from whatever slot it holds. It returns false when a
// replacement already took the slot, in which case the disconnect work was
// done at replacement time.
func (t *Table) Remove(p *Peer) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch p.Role {
	case RoleController:
		if t.controller != p {
			return false
		}
		t.controller = nil
	case RolePageAgent:
		if t.agents[p.SessionID] != p {
			return false
		}
		delete(t.agents, p.SessionID)
	case RolePeerBridge:
		if t.bridges[p.InstanceID] != p {
			return false
		}
		delete(t.bridges, p.InstanceID)
	default:
		return false
	}
	return true
}

// Counts is the peer census reported by diagnostics.
type Counts struct {
	Controller  bool `json:"controller_connected"`
	PageAgents  int  `json:"page_agents"`
	PeerBridges int  `json:"peer_bridges"`
}

func (t *Table) Counts() Counts {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Counts{
		Controller:  t.controller != nil,
		PageAgents:  len(t.agents),
		PeerBridges: len(t.bridges),
	}
}

// All returns every registered peer for shutdown teardown.
func (t *Table) All() []*Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Peer, 0, 1+len(t.agents)+len(t.bridges))
	if t.controller != nil {
		out = append(out, t.controller)
	}
	for _, p := range t.agents {
		out = append(out, p)
	}
	for _, p := range t.bridges {
		out = append(out, p)
	}
	return out
}

// Snapshot lists every registered peer, controller first.
func (t *Table) Snapshot() []PeerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]PeerInfo, 0, 1+len(t.agents)+len(t.bridges))
	if t.controller != nil {
		out = append(out, t.controller.Info())
	}
	for _, p := range t.agents {
		out = append(out, p.Info())
	}
	for _, p := range t.bridges {
		out = append(out, p.Info())
	}
	return out
}
