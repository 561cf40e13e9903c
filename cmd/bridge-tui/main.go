// bridge-tui is a terminal dashboard over the bridged diagnostics API.
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
	"github.com/spf13/cobra"

	"github.com/adityalohuni/browser-bridge/internal/config"
	"github.com/adityalohuni/browser-bridge/internal/diag"
	"github.com/adityalohuni/browser-bridge/internal/diagclient"
)

type panel int
type uiMode int

const (
	sessionsPanel panel = iota
	peersPanel
)

const (
	dashboardMode uiMode = iota
	settingsMode
)

type loadResultMsg struct {
	state diag.State
	err   error
	at    time.Time
}

type configSavedMsg struct {
	settings config.Settings
	err      error
}

type configReloadedMsg struct {
	settings config.Settings
	err      error
}

type tickMsg time.Time

type settingsForm struct {
	HTTPAddr        string
	WSAddr          string
	SessionGrace    string
	DebugToken      string
	BaseURL         string
	RefreshInterval string
}

type model struct {
	client  *diagclient.Client
	refresh time.Duration

	settings config.Settings
	form     settingsForm

	state diag.State

	mode           uiMode
	focus          panel
	sessionCursor  int
	peerCursor     int
	settingsCursor int
	editingSetting bool

	editor textinput.Model
	spin   spinner.Model

	sessionVP viewport.Model
	peerVP    viewport.Model
	eventVP   viewport.Model

	chartPending  streamlinechart.Model
	chartSessions streamlinechart.Model

	spring      harmonica.Spring
	animPending float64
	animSess    float64
	velPending  float64
	velSess     float64

	status      string
	lastUpdated time.Time
	width       int
	height      int
}

func newModel(client *diagclient.Client, cfg config.Settings) model {
	ed := textinput.New()
	ed.Prompt = "value> "
	ed.CharLimit = 512
	ed.Width = 64

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

	pChart := streamlinechart.New(
		34,
		8,
		streamlinechart.WithYRange(0, 50),
		streamlinechart.WithStyles(runes.ArcLineStyle, lipgloss.NewStyle().Foreground(lipgloss.Color("10"))),
	)
	sChart := streamlinechart.New(
		34,
		8,
		streamlinechart.WithYRange(0, 16),
		streamlinechart.WithStyles(runes.ArcLineStyle, lipgloss.NewStyle().Foreground(lipgloss.Color("14"))),
	)

	return model{
		client:        client,
		refresh:       cfg.TUIRefreshInterval,
		settings:      cfg,
		form:          formFromSettings(cfg),
		mode:          dashboardMode,
		focus:         sessionsPanel,
		status:        "loading...",
		spin:          sp,
		editor:        ed,
		sessionVP:     viewport.New(40, 16),
		peerVP:        viewport.New(40, 16),
		eventVP:       viewport.New(80, 8),
		chartPending:  pChart,
		chartSessions: sChart,
		spring:        harmonica.NewSpring(harmonica.FPS(60), 12.0, 1.0),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchCmd(m.client), tickCmd(m.refresh), m.spin.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.syncLayout()
		m.syncViewportContent()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case loadResultMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.state = msg.state
		sort.Slice(m.state.Sessions, func(i, j int) bool {
			return m.state.Sessions[i].CreatedAt.Before(m.state.Sessions[j].CreatedAt)
		})
		sort.Slice(m.state.Peers, func(i, j int) bool {
			return m.state.Peers[i].ConnectedAt.Before(m.state.Peers[j].ConnectedAt)
		})
		if m.sessionCursor >= len(m.state.Sessions) {
			m.sessionCursor = max(0, len(m.state.Sessions)-1)
		}
		if m.peerCursor >= len(m.state.Peers) {
			m.peerCursor = max(0, len(m.state.Peers)-1)
		}
		m.lastUpdated = msg.at
		m.chartPending.Push(float64(m.state.Pending))
		m.chartSessions.Push(float64(len(m.state.Sessions)))
		m.chartPending.Draw()
		m.chartSessions.Draw()
		m.syncViewportContent()
		m.status = fmt.Sprintf("sessions=%d peers=%d pending=%d", len(m.state.Sessions), len(m.state.Peers), m.state.Pending)
		return m, nil

	case configReloadedMsg:
		if msg.err != nil {
			m.status = "config reload failed: " + msg.err.Error()
			return m, nil
		}
		m.applySettings(msg.settings)
		m.status = "settings reloaded"
		return m, fetchCmd(m.client)

	case configSavedMsg:
		if msg.err != nil {
			m.status = "save failed: " + msg.err.Error()
			return m, nil
		}
		m.applySettings(msg.settings)
		m.status = "settings saved"
		return m, fetchCmd(m.client)

	case tickMsg:
		m.animPending, m.velPending = m.spring.Update(m.animPending, m.velPending, float64(m.state.Pending))
		m.animSess, m.velSess = m.spring.Update(m.animSess, m.velSess, float64(len(m.state.Sessions)))
		return m, tea.Batch(fetchCmd(m.client), tickCmd(m.refresh))

	case tea.MouseMsg:
		if m.mode == dashboardMode && msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			for i, s := range m.state.Sessions {
				if z := zone.Get("session-" + s.ID); z != nil && z.InBounds(msg) {
					m.focus = sessionsPanel
					m.sessionCursor = i
					m.syncViewportContent()
					return m, nil
				}
			}
			for i, p := range m.state.Peers {
				if z := zone.Get("peer-" + p.ID); z != nil && z.InBounds(msg) {
					m.focus = peersPanel
					m.peerCursor = i
					m.syncViewportContent()
					return m, nil
				}
			}
		}

	case tea.KeyMsg:
		if m.mode == settingsMode {
			return updateSettingsMode(m, msg)
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "c":
			m.mode = settingsMode
			m.editingSetting = false
			m.editor.Blur()
			m.status = "settings mode"
			return m, nil
		case "tab":
			if m.focus == sessionsPanel {
				m.focus = peersPanel
			} else {
				m.focus = sessionsPanel
			}
			m.syncViewportContent()
			return m, nil
		case "r":
			return m, fetchCmd(m.client)
		case "up", "k":
			if m.focus == sessionsPanel && m.sessionCursor > 0 {
				m.sessionCursor--
			}
			if m.focus == peersPanel && m.peerCursor > 0 {
				m.peerCursor--
			}
			m.syncViewportContent()
			return m, nil
		case "down", "j":
			if m.focus == sessionsPanel && m.sessionCursor < len(m.state.Sessions)-1 {
				m.sessionCursor++
			}
			if m.focus == peersPanel && m.peerCursor < len(m.state.Peers)-1 {
				m.peerCursor++
			}
			m.syncViewportContent()
			return m, nil
		case "pgup":
			if m.focus == sessionsPanel {
				m.sessionVP.HalfViewUp()
			} else {
				m.peerVP.HalfViewUp()
			}
			return m, nil
		case "pgdown":
			if m.focus == sessionsPanel {
				m.sessionVP.HalfViewDown()
			} else {
				m.peerVP.HalfViewDown()
			}
			return m, nil
		}
	}

	return m, nil
}

func updateSettingsMode(m model, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editingSetting {
		if msg.String() == "enter" {
			m.setSelectedSettingValue(m.editor.Value())
			m.editingSetting = false
			m.editor.Blur()
			m.status = "value updated (press s to save config)"
			return m, nil
		}
		if msg.String() == "esc" {
			m.editingSetting = false
			m.editor.Blur()
			m.status = "edit canceled"
			return m, nil
		}
		var cmd tea.Cmd
		m.editor, cmd = m.editor.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "esc", "c":
		m.mode = dashboardMode
		m.status = "dashboard mode"
		return m, nil
	case "up", "k":
		if m.settingsCursor > 0 {
			m.settingsCursor--
		}
		return m, nil
	case "down", "j":
		if m.settingsCursor < len(settingNames())-1 {
			m.settingsCursor++
		}
		return m, nil
	case "r":
		return m, reloadConfigCmd(m.settings.Path)
	case "s":
		return m, saveConfigCmd(m.settings, m.form)
	case "e", "enter":
		m.editingSetting = true
		m.editor.SetValue(m.selectedSettingValue())
		m.editor.CursorEnd()
		cmd := m.editor.Focus()
		m.status = "editing " + settingNames()[m.settingsCursor]
		return m, cmd
	}
	return m, nil
}

func (m *model) applySettings(s config.Settings) {
	m.settings = s
	m.form = formFromSettings(s)
	m.refresh = s.TUIRefreshInterval
	m.client = diagclient.New(s.TUIBaseURL, s.DebugToken, &http.Client{Timeout: 4 * time.Second})
}

func (m *model) syncLayout() {
	paneH := max(8, m.height-26)
	paneW := max(40, m.width/2-2)
	m.sessionVP.Width = paneW - 2
	m.sessionVP.Height = paneH
	m.peerVP.Width = paneW - 2
	m.peerVP.Height = paneH
	m.eventVP.Width = max(80, m.width-4)
	m.eventVP.Height = 6
}

func (m *model) syncViewportContent() {
	m.sessionVP.SetContent(m.renderSessionRows())
	m.peerVP.SetContent(m.renderPeerRows())
	m.eventVP.SetContent(m.renderEventRows())
	m.ensureCursorVisible()
}

func (m *model) ensureCursorVisible() {
	if m.focus == sessionsPanel {
		m.sessionVP.GotoTop()
		for i := 0; i < m.sessionCursor; i++ {
			m.sessionVP.LineDown(3)
		}
		return
	}
	m.peerVP.GotoTop()
	for i := 0; i < m.peerCursor; i++ {
		m.peerVP.LineDown(2)
	}
}

func (m model) renderSessionRows() string {
	cursorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	normalStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	if len(m.state.Sessions) == 0 {
		return normalStyle.Render("(none)")
	}
	owners := make(map[string]string, len(m.state.Drivers))
	for _, d := range m.state.Drivers {
		if d.BrowserSessionID != "" {
			owners[d.BrowserSessionID] = d.TransportID
		}
	}
	lines := make([]string, 0, len(m.state.Sessions)*3)
	for i, s := range m.state.Sessions {
		pref := "  "
		if i == m.sessionCursor {
			pref = "> "
		}
		row := fmt.Sprintf("%s%s tabs=%d", pref, s.ID, len(s.Tabs))
		if i == m.sessionCursor {
			row = cursorStyle.Render(row)
		}
		row = zone.Mark("session-"+s.ID, row)
		lines = append(lines, row)
		lines = append(lines, fmt.Sprintf("    driver %s  updated %s", shortID(emptyDefault(owners[s.ID], "orphaned")), timeAgo(s.UpdatedAt)))
		for _, tab := range s.Tabs {
			active := " "
			if tab.Handle == s.ActiveTabHandle {
				active = "*"
			}
			title := strings.TrimSpace(tab.Title)
			if title == "" {
				title = tab.URL
			}
			lines = append(lines, fmt.Sprintf("    %s %s %s", active, tab.Handle, trimText(title, 60)))
		}
	}
	return strings.Join(lines, "\n")
}

func (m model) renderPeerRows() string {
	cursorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	normalStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	if len(m.state.Peers) == 0 {
		return normalStyle.Render("(none)")
	}
	lines := make([]string, 0, len(m.state.Peers)*2)
	for i, p := range m.state.Peers {
		pref := "  "
		if i == m.peerCursor {
			pref = "> "
		}
		label := string(p.Role)
		if p.SessionID != "" {
			label += " " + p.SessionID
		}
		if p.InstanceID != "" {
			label += " " + shortID(p.InstanceID)
		}
		row := pref + label
		if i == m.peerCursor {
			row = cursorStyle.Render(row)
		}
		row = zone.Mark("peer-"+p.ID, row)
		lines = append(lines, row)
		lines = append(lines, fmt.Sprintf("    %s  seen %s", p.RemoteAddr, timeAgo(p.LastSeen)))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderEventRows() string {
	normalStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	if len(m.state.Sessions) == 0 || m.sessionCursor >= len(m.state.Sessions) {
		return normalStyle.Render("(no session selected)")
	}
	sel := m.state.Sessions[m.sessionCursor]
	if len(sel.Events) == 0 {
		return normalStyle.Render("(no events)")
	}
	lines := make([]string, 0, len(sel.Events))
	// Newest first.
	for i := len(sel.Events) - 1; i >= 0; i-- {
		ev := sel.Events[i]
		lines = append(lines, fmt.Sprintf("%s  %s  %s", ev.At.Format("15:04:05"), ev.Type, trimText(string(ev.Data), 80)))
	}
	return strings.Join(lines, "\n")
}

func (m model) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	normalStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	if m.mode == settingsMode {
		return zone.Scan(m.settingsView(titleStyle, normalStyle))
	}

	focusStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	downStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	leftTitle := normalStyle.Render("Sessions")
	rightTitle := normalStyle.Render("Fabric Peers")
	if m.focus == sessionsPanel {
		leftTitle = focusStyle.Render("Sessions")
	}
	if m.focus == peersPanel {
		rightTitle = focusStyle.Render("Fabric Peers")
	}

	paneW := max(40, m.width/2-2)
	leftPane := lipgloss.NewStyle().Width(paneW).Border(lipgloss.RoundedBorder()).Padding(0, 1).Render(leftTitle + "\n" + m.sessionVP.View())
	rightPane := lipgloss.NewStyle().Width(paneW).Border(lipgloss.RoundedBorder()).Padding(0, 1).Render(rightTitle + "\n" + m.peerVP.View())

	controller := downStyle.Render("disconnected")
	if m.state.Controller.Connected {
		controller = okStyle.Render("connected")
	}
	statPending := int(math.Round(m.animPending))
	statSess := int(math.Round(m.animSess))
	cards := lipgloss.JoinHorizontal(
		lipgloss.Top,
		lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder()).Render(fmt.Sprintf("Role\n%s", emptyDefault(m.state.Role, "unknown"))),
		lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder()).Render("Controller\n"+controller),
		lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder()).Render(fmt.Sprintf("Uptime\n%s", emptyDefault(m.state.Uptime, "-"))),
		lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder()).Render(fmt.Sprintf("Pending\n%d", statPending)),
		lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder()).Render(fmt.Sprintf("Sessions\n%d", statSess)),
		lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder()).Render(fmt.Sprintf("Updated\n%s", lastUpdatedText(m.lastUpdated))),
	)
	chartPanel := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Render("Pending Trend\n"+m.chartPending.View()),
		lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Render("Sessions Trend\n"+m.chartSessions.View()),
	)
	eventPane := lipgloss.NewStyle().Width(max(80, m.width-4)).Border(lipgloss.RoundedBorder()).Padding(0, 1).Render(normalStyle.Render("Recent Events") + "\n" + m.eventVP.View())

	help := normalStyle.Render("mouse: click row | tab panel | j/k move | pgup/pgdown scroll | r refresh | c settings | q quit")
	status := titleStyle.Render("status: ") + m.status + "  " + m.spin.View()
	row := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)

	return zone.Scan(strings.Join([]string{
		titleStyle.Render("browser-bridge dashboard"),
		cards,
		chartPanel,
		row,
		eventPane,
		status,
		help,
	}, "\n"))
}

func (m model) settingsView(titleStyle, normalStyle lipgloss.Style) string {
	cursorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)

	lines := []string{titleStyle.Render("Settings")}
	for i, name := range settingNames() {
		prefix := "  "
		if i == m.settingsCursor {
			prefix = cursorStyle.Render("> ")
		}
		lines = append(lines, fmt.Sprintf("%s%s = %s", prefix, name, m.settingValueByIndex(i)))
	}

	editLine := normalStyle.Render("select a field, press e or enter to edit")
	if m.editingSetting {
		editLine = keyStyle.Render("editing") + " " + settingNames()[m.settingsCursor] + "\n" + m.editor.View()
	}

	help := normalStyle.Render("j/k move | e/enter edit+apply | s save | r reload | c/esc back")
	status := titleStyle.Render("status: ") + m.status
	box := lipgloss.NewStyle().Width(max(80, m.width-2)).Border(lipgloss.RoundedBorder()).Padding(0, 1).Render(strings.Join(lines, "\n"))
	return strings.Join([]string{box, editLine, status, help}, "\n")
}

func fetchCmd(client *diagclient.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		state, err := client.State(ctx)
		if err != nil {
			return loadResultMsg{err: err}
		}
		return loadResultMsg{state: state, at: time.Now()}
	}
}

func saveConfigCmd(current config.Settings, form settingsForm) tea.Cmd {
	return func() tea.Msg {
		next, err := formToSettings(current, form)
		if err != nil {
			return configSavedMsg{err: err}
		}
		saved, err := config.Save(next)
		if err != nil {
			return configSavedMsg{err: err}
		}
		return configSavedMsg{settings: saved}
	}
}

func reloadConfigCmd(path string) tea.Cmd {
	return func() tea.Msg {
		cfg, err := config.LoadOrCreate(path)
		if err != nil {
			return configReloadedMsg{err: err}
		}
		return configReloadedMsg{settings: cfg}
	}
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func settingNames() []string {
	return []string{"http.addr", "ws.addr", "http.session_grace", "auth.debug_token", "tui.base_url", "tui.refresh_interval"}
}

func formFromSettings(s config.Settings) settingsForm {
	return settingsForm{
		HTTPAddr:        s.HTTPAddr,
		WSAddr:          s.WSAddr,
		SessionGrace:    s.SessionGrace.String(),
		DebugToken:      s.DebugToken,
		BaseURL:         s.TUIBaseURL,
		RefreshInterval: s.TUIRefreshInterval.String(),
	}
}

func formToSettings(base config.Settings, form settingsForm) (config.Settings, error) {
	next := base
	next.HTTPAddr = strings.TrimSpace(form.HTTPAddr)
	next.WSAddr = strings.TrimSpace(form.WSAddr)
	next.DebugToken = strings.TrimSpace(form.DebugToken)
	next.TUIBaseURL = strings.TrimSpace(form.BaseURL)
	if strings.TrimSpace(form.SessionGrace) == "" {
		return config.Settings{}, errors.New("http.session_grace cannot be empty")
	}
	grace, err := time.ParseDuration(strings.TrimSpace(form.SessionGrace))
	if err != nil {
		return config.Settings{}, fmt.Errorf("invalid http.session_grace: %w", err)
	}
	if strings.TrimSpace(form.RefreshInterval) == "" {
		return config.Settings{}, errors.New("tui.refresh_interval cannot be empty")
	}
	refresh, err := time.ParseDuration(strings.TrimSpace(form.RefreshInterval))
	if err != nil {
		return config.Settings{}, fmt.Errorf("invalid tui.refresh_interval: %w", err)
	}
	next.SessionGrace = grace
	next.TUIRefreshInterval = refresh
	return next, nil
}

func (m model) selectedSettingValue() string { return m.settingValueByIndex(m.settingsCursor) }

func (m model) settingValueByIndex(i int) string {
	switch i {
	case 0:
		return m.form.HTTPAddr
	case 1:
		return m.form.WSAddr
	case 2:
		return m.form.SessionGrace
	case 3:
		return m.form.DebugToken
	case 4:
		return m.form.BaseURL
	case 5:
		return m.form.RefreshInterval
	default:
		return ""
	}
}

func (m *model) setSelectedSettingValue(value string) {
	switch m.settingsCursor {
	case 0:
		m.form.HTTPAddr = value
	case 1:
		m.form.WSAddr = value
	case 2:
		m.form.SessionGrace = value
	case 3:
		m.form.DebugToken = value
	case 4:
		m.form.BaseURL = value
	case 5:
		m.form.RefreshInterval = value
	}
}

func shortID(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:12]
}

func emptyDefault(s, d string) string {
	if strings.TrimSpace(s) == "" {
		return d
	}
	return s
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := time.Since(t).Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String() + " ago"
}

func trimText(s string, n int) string {
	if n < 4 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func lastUpdatedText(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("15:04:05")
}

func main() {
	var (
		configPath string
		baseURL    string
		token      string
	)

	root := &cobra.Command{
		Use:          "bridge-tui",
		Short:        "Terminal dashboard for a running browser-bridge daemon",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.LoadOrCreate(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("base-url") {
				settings.TUIBaseURL = baseURL
			}
			if cmd.Flags().Changed("token") {
				settings.DebugToken = token
			}

			zone.NewGlobal()
			client := diagclient.New(settings.TUIBaseURL, settings.DebugToken, &http.Client{Timeout: 4 * time.Second})
			m := newModel(client, settings)
			m.syncLayout()
			m.syncViewportContent()
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion()).Run()
			return err
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "config file path (default ~/.config/browser-bridge/config.toml)")
	root.Flags().StringVar(&baseURL, "base-url", "", "diagnostics base URL (default from config)")
	root.Flags().StringVar(&token, "token", "", "debug token (default from config)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
