package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"

	"valorbot/pkg/bus"
)

type mode int

const (
	modeInteractive mode = iota
	modeOneShot
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
	roleImage     = "image"
	roleError     = "error"

	channelName  = "console"
	imageCommand = "/image"
	wheelLines   = 3
)

// HandleFunc processes one simulated inbound message.
type HandleFunc func(ctx context.Context, msg bus.InboundMessage) error

// Session describes the simulated chat and the person typing.
type Session struct {
	ChatID    int64
	ChatType  string
	ChatTitle string
	Sender    bus.Sender
}

// RuntimeInfo is shown in the header.
type RuntimeInfo struct {
	Provider string
	Model    string
	Bot      string
}

type chatMessage struct {
	role      string
	id        int64
	replyTo   int64
	content   string
	reactions []string
}

type handledMsg struct {
	id  int64
	err error
}

type bootTickMsg struct{}

type model struct {
	ctx          context.Context
	handle       HandleFunc
	session      Session
	mode         mode
	oneShotInput string

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	messages  []chatMessage
	width     int
	height    int
	isReady   bool
	isLoading bool
	isTyping  bool
	lastErr   string
	booting   bool
	bootStep  int
	followLog bool
	runtime   RuntimeInfo
	nextID    int64

	renderer      *glamour.TermRenderer
	rendererWidth int
}

func newModel(ctx context.Context, handle HandleFunc, runMode mode, prompt string, session Session, info RuntimeInfo) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Say something to the bot..."
	in.Focus()
	in.CharLimit = 0

	vp := viewport.New(80, 12)

	if session.ChatType == "" {
		session.ChatType = bus.ChatTypePrivate
	}

	return &model{
		ctx:          ctx,
		handle:       handle,
		session:      session,
		mode:         runMode,
		oneShotInput: strings.TrimSpace(prompt),
		theme:        defaultTheme(),
		spinner:      spin,
		input:        in,
		viewport:     vp,
		width:        100,
		height:       28,
		booting:      runMode == modeInteractive,
		followLog:    true,
		runtime:      info,
	}
}

func (m *model) Init() tea.Cmd {
	if m.mode == modeOneShot && m.oneShotInput != "" {
		return tea.Batch(m.spinner.Tick, m.submit(m.oneShotInput))
	}

	return bootTickCmd()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case bootTickMsg:
		if !m.booting {
			return m, nil
		}

		m.bootStep++
		if m.bootStep < len(bootScriptLines())+1 {
			return m, bootTickCmd()
		}

		m.booting = false
		return m, textinput.Blink
	case tea.MouseMsg:
		if m.mode == modeInteractive && m.handleViewportMouse(typed) {
			return m, nil
		}
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}

		if m.booting || m.mode == modeOneShot {
			return m, nil
		}

		if handled := m.handleViewportKey(typed); handled {
			return m, nil
		}

		if typed.String() == "enter" {
			if m.isLoading {
				return m, nil
			}

			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			if isExitCommand(text) {
				return m, tea.Quit
			}

			m.lastErr = ""
			m.input.SetValue("")
			m.followLog = true
			return m, tea.Batch(m.spinner.Tick, m.submit(text))
		}
	case reactionMsg:
		m.applyReaction(typed)
		m.refreshViewport(false)
		return m, nil
	case replyMsg:
		m.messages = append(m.messages, chatMessage{role: roleAssistant, replyTo: typed.replyTo, content: typed.text})
		m.refreshViewport(false)
		return m, nil
	case imageMsg:
		m.messages = append(m.messages, chatMessage{role: roleImage, replyTo: typed.replyTo, content: formatImage(typed)})
		m.refreshViewport(false)
		return m, nil
	case typingMsg:
		m.isTyping = typed.active
		return m, nil
	case handledMsg:
		m.isLoading = false
		m.isTyping = false
		if typed.err != nil {
			m.lastErr = typed.err.Error()
			m.messages = append(m.messages, chatMessage{role: roleError, replyTo: typed.id, content: typed.err.Error()})
		}
		m.refreshViewport(false)
		if m.mode == modeOneShot {
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		if !m.isLoading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	}

	if m.mode == modeInteractive {
		m.input, cmd = m.input.Update(msg)
	}

	return m, cmd
}

// submit records text as a user message and hands it to the pipeline.
func (m *model) submit(text string) tea.Cmd {
	inbound := m.inbound(text)
	m.messages = append(m.messages, chatMessage{role: roleUser, id: inbound.MessageID, content: text})
	m.isLoading = true
	m.refreshViewport(true)

	ctx, handle := m.ctx, m.handle
	return func() tea.Msg {
		if handle == nil {
			return handledMsg{id: inbound.MessageID}
		}
		return handledMsg{id: inbound.MessageID, err: handle(ctx, inbound)}
	}
}

// inbound builds the simulated chat message. A leading /image marks the
// message as a photo whose caption is the remaining text.
func (m *model) inbound(text string) bus.InboundMessage {
	m.nextID++

	msg := bus.InboundMessage{
		Channel:    channelName,
		ChatID:     m.session.ChatID,
		ChatType:   m.session.ChatType,
		ChatTitle:  m.session.ChatTitle,
		MessageID:  m.nextID,
		Sender:     m.session.Sender,
		Text:       text,
		ReceivedAt: time.Now().UTC(),
	}

	if rest, ok := strings.CutPrefix(text, imageCommand); ok && (rest == "" || rest[0] == ' ') {
		msg.Text = ""
		msg.Caption = strings.TrimSpace(rest)
		msg.HasImage = true
	}

	return msg
}

func (m *model) applyReaction(reaction reactionMsg) {
	for i := range m.messages {
		if m.messages[i].role == roleUser && m.messages[i].id == reaction.messageID {
			m.messages[i].reactions = reaction.symbols
			return
		}
	}
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}
	if m.mode == modeOneShot {
		return m.oneShotView()
	}
	if m.booting {
		return m.bootView()
	}

	header := m.theme.header.Width(m.width - 2).Render("📟 Valor Chat Simulator")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"bot:%s · chat:%s %d · provider:%s · model:%s · turns:%d",
		displayOrNA(m.runtime.Bot),
		m.session.ChatType,
		m.session.ChatID,
		displayOrNA(m.runtime.Provider),
		displayOrNA(m.runtime.Model),
		conversationTurns(m.messages),
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	status := m.theme.status.Render("💡 Enter send  ·  /image <caption> photo  ·  PgUp/PgDn scroll  ·  🛑 Ctrl+C/Esc quit")
	switch {
	case m.isTyping:
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s ✍ typing...", m.spinner.View()))
	case m.isLoading:
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s ⚡ processing...", m.spinner.View()))
	case m.lastErr != "":
		status = m.theme.statusErr.Render("🚨 last message failed to deliver")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render("👨🏻 "+senderName(m.session.Sender))+" "+m.theme.hint.Render("(type /exit, quit, or :q)"),
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) resizeComponents() {
	w := m.width - 6
	if w < 50 {
		w = 50
	}
	h := m.height - 10
	if m.mode == modeOneShot {
		h = m.height - 6
	}
	if h < 8 {
		h = 8
	}

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	sections := m.renderMessages(m.viewport.Width)

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if previousOffset > maxOffset {
		previousOffset = maxOffset
	}
	m.viewport.SetYOffset(previousOffset)
}

func (m *model) renderMessages(width int) []string {
	sections := make([]string, 0, len(m.messages))
	for _, item := range m.messages {
		switch item.role {
		case roleUser:
			body := strings.TrimSpace(item.content)
			if len(item.reactions) > 0 {
				body += "\n" + m.theme.reactions.Render(strings.Join(item.reactions, " "))
			}
			sections = append(sections, m.renderCard(
				m.theme.userTitle.Render(fmt.Sprintf("▛▚ [ 👨🏻 #%d ] ▞▜", item.id)),
				m.theme.userBox.Width(width).Render(body),
			))
		case roleAssistant:
			sections = append(sections, m.renderCard(
				m.theme.assistantTitle.Render(fmt.Sprintf("▛▚ [ 🤖 ↩ #%d ] ▞▜", item.replyTo)),
				m.theme.assistantBox.Width(width).Render(m.renderMarkdown(item.content, width)),
			))
		case roleImage:
			sections = append(sections, m.renderCard(
				m.theme.imageTitle.Render(fmt.Sprintf("▛▚ [ 🎨 ↩ #%d ] ▞▜", item.replyTo)),
				m.theme.imageBox.Width(width).Render(strings.TrimSpace(item.content)),
			))
		case roleError:
			sections = append(sections, m.renderCard(
				m.theme.errorTitle.Render("▛▚ [ERROR] ▞▜"),
				m.theme.errorBox.Width(width).Render(strings.TrimSpace(item.content)),
			))
		}
	}
	return sections
}

// renderMarkdown formats a bot reply for the terminal. Plain text is used when
// the renderer is unavailable.
func (m *model) renderMarkdown(text string, width int) string {
	text = strings.TrimSpace(text)
	if m.renderer == nil || m.rendererWidth != width {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(styles.DarkStyle),
			glamour.WithWordWrap(max(20, width-4)),
		)
		if err != nil {
			return text
		}
		m.renderer = renderer
		m.rendererWidth = width
	}

	rendered, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(rendered, "\n")
}

func (m *model) renderCard(title string, body string) string {
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

func (m *model) oneShotView() string {
	contentWidth := max(40, m.width-6)
	parts := m.renderMessages(contentWidth)

	if m.isLoading {
		parts = append(parts, m.theme.statusBusy.Render(fmt.Sprintf("%s ⚡ waiting for the bot...", m.spinner.View())))
		return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n\n"
}

func (m *model) bootView() string {
	header := m.theme.header.Width(m.width - 2).Render("📟 Valor Chat Simulator")
	meta := m.theme.headerMeta.Render("boot sequence")
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	script := bootScriptLines()
	count := min(m.bootStep, len(script))
	visible := make([]string, 0, count+1)
	for i := 0; i < count; i++ {
		visible = append(visible, m.theme.bootLine.Render(script[i]))
	}
	if m.bootStep > len(script) {
		visible = append(visible, m.theme.bootDone.Render("✅ chat online"))
	}

	body := m.theme.viewport.Width(m.width - 2).Render(strings.Join(visible, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, meta, line, body)
}

func bootTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(_ time.Time) tea.Msg {
		return bootTickMsg{}
	})
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.ScrollUp(wheelLines)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.ScrollDown(wheelLines)
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	default:
		return false
	}
}

func bootScriptLines() []string {
	return []string{
		"[BOOT] loading persona",
		"[BOOT] warming intent classifier",
		"[BOOT] wiring reaction sequencer",
		"[BOOT] opening simulated chat",
	}
}

func formatImage(msg imageMsg) string {
	if caption := strings.TrimSpace(msg.caption); caption != "" {
		return caption + "\n\n🖼 " + msg.path
	}
	return "🖼 " + msg.path
}

func senderName(sender bus.Sender) string {
	if sender.Username != "" {
		return "@" + sender.Username
	}
	if sender.FirstName != "" {
		return sender.FirstName
	}
	return "You"
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}

func conversationTurns(messages []chatMessage) int {
	count := 0
	for _, message := range messages {
		if message.role == roleUser {
			count++
		}
	}

	return count
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
