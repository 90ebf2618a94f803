package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/applyhook/internal/model"
	"github.com/amishk599/applyhook/internal/poller"
)

// Lines per response item in the list view (name + subtitle + blank separator).
const appItemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39")) // bright blue

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240")) // dim gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	activeHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("39"))

	inactiveHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	appNameStyle = lipgloss.NewStyle().
			Bold(true)

	appSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	selectedAppNameStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")). // bright white
				Background(lipgloss.Color("24"))  // dark blue bg

	selectedAppSubtitleStyle = lipgloss.NewStyle().
					Foreground(lipgloss.Color("252")).
					Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(16)

	detailValueStyle = lipgloss.NewStyle()

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	descDividerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))

	descHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	descBodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
)

// UserLookup fetches a candidate profile for the detail view.
type UserLookup func(ctx context.Context, login string) (model.UserProfile, error)

// profileFetchedMsg is sent when an async profile fetch completes.
type profileFetchedMsg struct {
	login   string
	profile model.UserProfile
	err     error
}

type auditModel struct {
	vacancy        model.Vacancy
	allApps        []model.Application
	newApps        []model.Application
	leftViewport   viewport.Model
	rightViewport  viewport.Model
	activePane     int // 0=left, 1=right
	leftCursor     int
	rightCursor    int
	width          int
	height         int
	profileBaseURL string
	ready          bool

	// Detail view state
	view            viewState
	detailApp       model.Application
	detailLoading   bool
	detailError     string
	detailViewport  viewport.Model
	lookup          UserLookup
	profiles        map[string]model.UserProfile // by login, shared across copies
	showCoverLetter bool

	wantQuit bool
}

func (m auditModel) Init() tea.Cmd {
	return nil
}

func (m auditModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case profileFetchedMsg:
		if msg.login != m.detailApp.Login {
			return m, nil
		}
		m.detailLoading = false
		if msg.err != nil {
			m.detailError = fmt.Sprintf("failed to load profile: %v (no webhook would be sent)", msg.err)
		} else {
			m.detailError = ""
			m.profiles[msg.login] = msg.profile
		}
		m.detailViewport.SetContent(m.renderDetail())
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m auditModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "b":
		m.wantQuit = false
		return m, tea.Quit
	case "tab", "left", "right":
		m.activePane = 1 - m.activePane
		m.recalcContent()
		return m, nil
	case "up", "k":
		m.moveCursor(-1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "enter":
		return m.openDetailView()
	}

	// Forward other keys (pgup/pgdn/home/end) to the active viewport.
	var cmd tea.Cmd
	if m.activePane == 0 {
		m.leftViewport, cmd = m.leftViewport.Update(msg)
	} else {
		m.rightViewport, cmd = m.rightViewport.Update(msg)
	}
	return m, cmd
}

func (m auditModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		if p, ok := m.profiles[m.detailApp.Login]; ok && p.URL != "" {
			openURL(p.URL)
		} else {
			openURL(m.profileBaseURL + m.detailApp.Login)
		}
		return m, nil
	case "r":
		if m.detailApp.CoverLetter != "" {
			m.showCoverLetter = !m.showCoverLetter
			m.detailViewport.SetContent(m.renderDetail())
			m.detailViewport.SetYOffset(0)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

func (m *auditModel) moveCursor(delta int) {
	if m.activePane == 0 {
		m.leftCursor = clamp(m.leftCursor+delta, 0, max(len(m.allApps)-1, 0))
	} else {
		m.rightCursor = clamp(m.rightCursor+delta, 0, max(len(m.newApps)-1, 0))
	}
}

func (m *auditModel) ensureCursorVisible() {
	var vp *viewport.Model
	var cursor int
	if m.activePane == 0 {
		vp = &m.leftViewport
		cursor = m.leftCursor
	} else {
		vp = &m.rightViewport
		cursor = m.rightCursor
	}

	cursorTop := cursor * appItemHeight
	cursorBottom := cursorTop + appItemHeight - 1

	if cursorTop < vp.YOffset {
		vp.SetYOffset(cursorTop)
	} else if cursorBottom >= vp.YOffset+vp.Height {
		vp.SetYOffset(cursorBottom - vp.Height + 1)
	}
}

func (m auditModel) openDetailView() (tea.Model, tea.Cmd) {
	apps := m.activeApps()
	cursor := m.activeCursor()
	if len(apps) == 0 {
		return m, nil
	}

	app := apps[cursor]
	m.view = viewDetail
	m.detailApp = app
	m.detailError = ""
	m.showCoverLetter = false
	m.detailViewport = viewport.New(m.width-4, m.height-4)

	_, cached := m.profiles[app.Login]
	m.detailLoading = m.lookup != nil && !cached
	m.detailViewport.SetContent(m.renderDetail())

	if m.detailLoading {
		return m, m.fetchProfileCmd(app.Login)
	}
	return m, nil
}

func (m auditModel) fetchProfileCmd(login string) tea.Cmd {
	lookup := m.lookup
	return func() tea.Msg {
		profile, err := lookup(context.Background(), login)
		return profileFetchedMsg{login: login, profile: profile, err: err}
	}
}

func (m *auditModel) recalcLayout() {
	// 2 border chars per pane + 1 gap between panes.
	paneWidth := max((m.width-5)/2, 20)

	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.leftViewport = viewport.New(paneWidth, paneHeight)
		m.rightViewport = viewport.New(paneWidth, paneHeight)
		m.ready = true
	} else {
		m.leftViewport.Width = paneWidth
		m.leftViewport.Height = paneHeight
		m.rightViewport.Width = paneWidth
		m.rightViewport.Height = paneHeight
	}

	m.recalcContent()
}

func (m *auditModel) recalcContent() {
	m.leftViewport.SetContent(renderApplications(m.allApps, m.leftCursor, m.activePane == 0))
	m.rightViewport.SetContent(renderApplications(m.newApps, m.rightCursor, m.activePane == 1))
}

func (m auditModel) activeApps() []model.Application {
	if m.activePane == 0 {
		return m.allApps
	}
	return m.newApps
}

func (m auditModel) activeCursor() int {
	if m.activePane == 0 {
		return m.leftCursor
	}
	return m.rightCursor
}

func (m auditModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.view == viewDetail {
		return m.viewDetail()
	}

	return m.viewList()
}

func (m auditModel) viewList() string {
	paneWidth := m.leftViewport.Width

	leftHeader := fmt.Sprintf(" All Responses (%d)", len(m.allApps))
	rightHeader := fmt.Sprintf(" New, Not Cached (%d)", len(m.newApps))

	var leftHeaderRendered, rightHeaderRendered string
	var leftBorder, rightBorder lipgloss.Style

	if m.activePane == 0 {
		leftHeaderRendered = activeHeaderStyle.Render(leftHeader)
		rightHeaderRendered = inactiveHeaderStyle.Render(rightHeader)
		leftBorder = activeBorderStyle.Width(paneWidth)
		rightBorder = inactiveBorderStyle.Width(paneWidth)
	} else {
		leftHeaderRendered = inactiveHeaderStyle.Render(leftHeader)
		rightHeaderRendered = activeHeaderStyle.Render(rightHeader)
		leftBorder = inactiveBorderStyle.Width(paneWidth)
		rightBorder = activeBorderStyle.Width(paneWidth)
	}

	leftPane := leftBorder.Render(m.leftViewport.View())
	rightPane := rightBorder.Render(m.rightViewport.View())

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(paneWidth+2).Render(leftHeaderRendered),
		" ",
		lipgloss.NewStyle().Width(paneWidth+2).Render(rightHeaderRendered),
	)

	panes := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, " ", rightPane)

	cachedCount := len(m.allApps) - len(m.newApps)
	statusText := fmt.Sprintf(" %s | %d total | %d new | %d cached    ←/→/Tab switch  ↑/↓ cursor  Enter detail  Esc back  q quit",
		vacancyLabel(m.vacancy), len(m.allApps), len(m.newApps), cachedCount)
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return headerRow + "\n" + panes + "\n" + statusBar
}

func (m auditModel) viewDetail() string {
	title := detailTitleStyle.Render("Response Details")
	if m.detailLoading {
		title += "  (loading profile...)"
	}

	border := activeBorderStyle.Width(m.width - 2)
	content := border.Render(m.detailViewport.View())

	statusText := " o open profile  esc/backspace back  ↑/↓ scroll  q quit"
	if m.detailApp.CoverLetter != "" {
		statusText = " o open profile  r cover letter  esc/backspace back  ↑/↓ scroll  q quit"
	}
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return title + "\n" + content + "\n" + statusBar
}

func (m auditModel) renderDetail() string {
	a := m.detailApp
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(detailValueStyle.Render(value))
		b.WriteByte('\n')
	}

	addField("Name", a.Name)
	addField("Login", a.Login)
	addField("Apply ID", a.ID)
	addField("Vacancy", fmt.Sprintf("%s (#%s)", vacancyLabel(m.vacancy), a.VacancyID))
	addField("Experience", fmt.Sprintf("%d months → %d half-years", a.ExperienceMonths, poller.NormalizeExperience(a.ExperienceMonths)))

	if m.detailError != "" {
		b.WriteByte('\n')
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("⚠ "+m.detailError) + "\n")
	}

	wrapWidth := max(m.width-8, 20)
	divider := func(label string) string {
		fill := strings.Repeat("─", max(wrapWidth-len(label), 3))
		return descDividerStyle.Render(label + fill)
	}

	if profile, ok := m.profiles[a.Login]; ok {
		b.WriteByte('\n')
		b.WriteString(divider("── Webhook Payload ") + "\n\n")
		b.WriteString(descBodyStyle.Render(payloadPreview(a, m.vacancy.Title, profile, m.profileBaseURL)) + "\n")
	} else if m.detailLoading {
		b.WriteByte('\n')
		b.WriteString(descHintStyle.Render("  fetching candidate profile...") + "\n")
	}

	if a.CoverLetter != "" {
		b.WriteByte('\n')
		if m.showCoverLetter {
			b.WriteString(divider("── Cover Letter ") + "\n\n")
			b.WriteString(descBodyStyle.Render(wordWrap(a.CoverLetter, wrapWidth)) + "\n")
		} else {
			b.WriteString(descHintStyle.Render("  press r to read the cover letter") + "\n")
		}
	}

	return b.String()
}

// payloadPreview renders the JSON body the webhook would receive.
func payloadPreview(app model.Application, vacancyTitle string, profile model.UserProfile, profileBaseURL string) string {
	if vacancyTitle == "" {
		vacancyTitle = poller.UnknownTitle
	}
	p := poller.BuildPayload(app, vacancyTitle, profile, profileBaseURL)
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Sprintf("(cannot render payload: %v)", err)
	}
	return string(data)
}

func renderApplications(apps []model.Application, cursor int, isActive bool) string {
	if len(apps) == 0 {
		return "  (no responses)"
	}

	var b strings.Builder
	for i, a := range apps {
		isSelected := isActive && i == cursor

		nameSt := appNameStyle
		subtitleSt := appSubtitleStyle
		prefix := "  "
		if isSelected {
			nameSt = selectedAppNameStyle
			subtitleSt = selectedAppSubtitleStyle
			prefix = "> "
		}

		name := a.Name
		if name == "" {
			name = a.Login
		}
		b.WriteString(prefix)
		b.WriteString(nameSt.Render(name))
		b.WriteByte('\n')

		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(fmt.Sprintf("@%s · #%s · %d mo", a.Login, a.ID, a.ExperienceMonths)))
		b.WriteByte('\n')

		if i < len(apps)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// RunAuditTUI launches the interactive split-pane audit TUI for one vacancy.
// lookup may be nil, in which case no payload preview is shown.
// Returns wantQuit=true if the user pressed q/ctrl+c, false if they pressed esc to return to the picker.
func RunAuditTUI(vacancy model.Vacancy, allApps, newApps []model.Application, lookup UserLookup, profileBaseURL string) (bool, error) {
	m := auditModel{
		vacancy:        vacancy,
		allApps:        allApps,
		newApps:        newApps,
		lookup:         lookup,
		profiles:       make(map[string]model.UserProfile),
		profileBaseURL: profileBaseURL,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return false, err
	}
	final := result.(auditModel)
	return final.wantQuit, nil
}
