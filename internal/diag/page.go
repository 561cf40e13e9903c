package diag

import (
	"html/template"
	"net/http"

	"github.com/adityalohuni/browser-bridge/internal/session"
	"github.com/adityalohuni/browser-bridge/internal/wsbridge"
)

// StatusPage renders a self-contained HTML view of the same data /health
// serves, plus the session and peer tables. No external assets.
func (h *Handlers) StatusPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := statusPageData{
		Health:   h.health(),
		Sessions: h.Store.List(),
		Peers:    h.Bridge.Peers(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = statusTmpl.Execute(w, data)
}

type statusPageData struct {
	Health   Health
	Sessions []session.Session
	Peers    []wsbridge.PeerInfo
}

var statusTmpl = template.Must(template.New("status").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>browser-bridge</title>
<style>
body { font-family: ui-monospace, monospace; margin: 2rem auto; max-width: 64rem; color: #222; }
h1 { font-size: 1.3rem; }
table { border-collapse: collapse; width: 100%; margin-bottom: 1.5rem; }
th, td { border: 1px solid #ccc; padding: 0.3rem 0.6rem; text-align: left; font-size: 0.85rem; }
th { background: #f4f4f4; }
.ok { color: #0a7d32; }
.down { color: #b3261e; }
</style>
</head>
<body>
<h1>browser-bridge <small>({{.Health.Role}})</small></h1>
<table>
<tr><th>Status</th><td id="status" class="{{if .Health.Controller.Connected}}ok{{else}}down{{end}}">{{.Health.Status}}</td></tr>
<tr><th>Instance</th><td>{{.Health.InstanceID}}</td></tr>
<tr><th>Uptime</th><td>{{.Health.Uptime}}</td></tr>
<tr><th>Controller</th><td>{{if .Health.Controller.Connected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Page agents</th><td>{{.Health.Peers.PageAgents}}</td></tr>
<tr><th>Peer bridges</th><td>{{.Health.Peers.PeerBridges}}</td></tr>
<tr><th>Drivers</th><td>{{.Health.Drivers}}</td></tr>
<tr><th>Pending requests</th><td>{{.Health.Pending}}</td></tr>
</table>

<h2>Sessions ({{len .Sessions}})</h2>
<table id="sessions">
<tr><th>ID</th><th>Window</th><th>Active tab</th><th>Tabs</th><th>Updated</th></tr>
{{range .Sessions}}
<tr><td>{{.ID}}</td><td>{{.WindowHandle}}</td><td>{{.ActiveTabHandle}}</td><td>{{len .Tabs}}</td><td>{{.UpdatedAt.Format "15:04:05"}}</td></tr>
{{end}}
</table>

<h2>Peers ({{len .Peers}})</h2>
<table id="peers">
<tr><th>Role</th><th>Session</th><th>Remote</th><th>URL</th><th>Last seen</th></tr>
{{range .Peers}}
<tr><td>{{.Role}}</td><td>{{.SessionID}}</td><td>{{.RemoteAddr}}</td><td>{{.CurrentURL}}</td><td>{{.LastSeen.Format "15:04:05"}}</td></tr>
{{end}}
</table>
</body>
</html>
`))
