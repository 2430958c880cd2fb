// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app is the Bubble Tea root model of the Arkiv terminal UI.
//
// The model routes between four screens. Loading shows while the persisted
// session is restored, Auth while nobody is signed in (or a password reset
// is running), Chat once a user is signed in and Settings on request. Core
// callbacks reach the model through a coalescing notification channel;
// long-running calls run as commands and report back as messages.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/jeranaias/arkiv-tui/internal/api"
	"github.com/jeranaias/arkiv-tui/internal/authflow"
	"github.com/jeranaias/arkiv-tui/internal/chat"
	"github.com/jeranaias/arkiv-tui/internal/config"
	"github.com/jeranaias/arkiv-tui/internal/dropzone"
	"github.com/jeranaias/arkiv-tui/internal/history"
	"github.com/jeranaias/arkiv-tui/internal/keys"
	"github.com/jeranaias/arkiv-tui/internal/localstore"
	"github.com/jeranaias/arkiv-tui/internal/session"
	"github.com/jeranaias/arkiv-tui/internal/ui/components"
	"github.com/jeranaias/arkiv-tui/internal/ui/styles"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Deps are the core services the UI drives.
type Deps struct {
	Config  *config.Config
	Session *session.Provider
	Keys    *keys.Manager
	Stats   *chat.StatsTracker
	Backend chat.Backend
	Store   localstore.Store
	Variant authflow.Variant
	Version string
	Log     zerolog.Logger

	// Clipboard writes text to the system clipboard.
	Clipboard func(text string) error
}

// =============================================================================
// MODEL
// =============================================================================

// Screen is the view currently routed to.
type Screen int

const (
	ScreenLoading Screen = iota
	ScreenAuth
	ScreenChat
	ScreenSettings
)

func (s Screen) String() string {
	switch s {
	case ScreenLoading:
		return "loading"
	case ScreenAuth:
		return "auth"
	case ScreenChat:
		return "chat"
	case ScreenSettings:
		return "settings"
	default:
		return "unknown"
	}
}

// workspace is the per-user state opened on sign-in.
type workspace struct {
	userID  string
	store   *chat.Store
	watcher *dropzone.Watcher
	unsub   func()
}

// Model is the root Bubble Tea model.
type Model struct {
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger

	theme   *styles.Theme
	notify  *notifier
	toasts  *components.ToastManager
	spinner spinner.Model

	screen        Screen
	width, height int
	statsStarted  bool
	unsubs        []func()

	ws       *workspace
	auth     *authScreen
	chat     *chatScreen
	settings *settingsScreen
}

// New creates the root model. ctx bounds every request the UI starts.
func New(ctx context.Context, deps Deps) *Model {
	ctx, cancel := context.WithCancel(ctx)
	if deps.Config == nil {
		deps.Config = config.Default()
	}
	theme := styles.NewTheme(deps.Config.UI.Theme)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	m := &Model{
		deps:    deps,
		ctx:     ctx,
		cancel:  cancel,
		log:     deps.Log,
		theme:   theme,
		notify:  newNotifier(),
		toasts:  components.NewToastManager(),
		spinner: sp,
		screen:  ScreenLoading,
		width:   80,
		height:  24,
	}
	m.auth = newAuthScreen(theme, authflow.New(deps.Session, deps.Variant))
	m.chat = newChatScreen(theme, deps.Config)
	m.settings = newSettingsScreen(theme)
	return m
}

// Screen returns the routed screen.
func (m *Model) Screen() Screen { return m.screen }

// =============================================================================
// MESSAGES
// =============================================================================

// initDoneMsg reports the persisted session restore.
type initDoneMsg struct{ err error }

// resultMsg reports a finished command. A nil err shows ok as a success
// toast when it is set.
type resultMsg struct {
	op  string
	ok  string
	err error
}

func result(op, ok string, err error) tea.Msg {
	return resultMsg{op: op, ok: ok, err: err}
}

// =============================================================================
// BUBBLE TEA
// =============================================================================

// Init subscribes to the core and restores the session.
func (m *Model) Init() tea.Cmd {
	s := m.deps.Session
	m.unsubs = append(m.unsubs, s.Subscribe(func(session.Event) { m.notify.post(changeSession) }))
	if m.deps.Keys != nil {
		m.unsubs = append(m.unsubs, m.deps.Keys.Subscribe(func(keys.Change) { m.notify.post(changeKeys) }))
	}
	if m.deps.Stats != nil {
		m.unsubs = append(m.unsubs, m.deps.Stats.Subscribe(func(chat.UsageStats) { m.notify.post(changeStats) }))
	}

	ctx := m.ctx
	return tea.Batch(
		m.notify.wait(),
		m.spinner.Tick,
		components.ToastTickCmd(),
		func() tea.Msg { return initDoneMsg{err: s.Init(ctx)} },
	)
}

// Update handles a message.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.layout()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.shutdown()
			return m, tea.Quit
		}
		return m, m.handleKey(msg)

	case initDoneMsg:
		if msg.err != nil {
			m.log.Warn().Err(msg.err).Msg("restore session")
			m.toasts.Error("Could not restore your session: " + api.Detail(msg.err, "network error"))
		}
		return m, m.route()

	case changedMsg:
		cmds := []tea.Cmd{m.notify.wait()}
		if msg.has(changeSession) {
			cmds = append(cmds, m.route())
		}
		if msg.has(changeChat) {
			m.refreshChat()
		}
		if msg.has(changeKeys) {
			cmds = append(cmds, m.refreshKeys())
		}
		if msg.has(changeStats) && m.deps.Stats != nil {
			m.settings.stats = m.deps.Stats.Current()
		}
		if len(msg.dropped) > 0 {
			m.toasts.Status(dropToast(msg.dropped))
		}
		return m, tea.Batch(cmds...)

	case keysLoadedMsg:
		m.applyKeys(msg)
		return m, nil

	case authDoneMsg:
		if msg.err != nil {
			m.log.Debug().Err(msg.err).Msg("auth step failed")
		}
		if m.auth.machine.Mode() != msg.from {
			m.auth.clearSecrets()
		}
		return m, m.route()

	case resultMsg:
		m.handleResult(msg)
		return m, m.route()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.screen == ScreenChat && m.chat.snap.Loading {
			m.renderConversation()
		}
		return m, cmd

	case components.ToastTickMsg:
		m.toasts.Tick()
		m.layout()
		return m, components.ToastTickCmd()

	case components.SnowTickMsg:
		if !m.chat.header.Snow {
			return m, nil
		}
		m.chat.snow.Step()
		return m, components.SnowTickCmd()
	}
	return m, m.forward(msg)
}

// forward hands other messages (cursor blink and the like) to the focused
// inputs.
func (m *Model) forward(msg tea.Msg) tea.Cmd {
	switch m.screen {
	case ScreenAuth:
		return m.auth.update(msg)
	case ScreenChat:
		return m.chat.updateInput(msg)
	case ScreenSettings:
		return m.settings.updateInput(msg)
	}
	return nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch m.screen {
	case ScreenAuth:
		return m.authKey(msg)
	case ScreenChat:
		return m.chatKey(msg)
	case ScreenSettings:
		return m.settingsKey(msg)
	}
	return nil
}

func (m *Model) handleResult(msg resultMsg) {
	m.settings.finish(msg.op, msg.err == nil)
	if msg.err != nil {
		if errors.Is(msg.err, context.Canceled) && m.ctx.Err() != nil {
			return
		}
		m.log.Debug().Str("op", msg.op).Err(msg.err).Msg("operation failed")
		m.toasts.Error(api.Detail(msg.err, msg.err.Error()))
		return
	}
	if msg.ok != "" {
		m.toasts.Success(msg.ok)
	}
}

// =============================================================================
// ROUTING
// =============================================================================

// route picks the screen from the session state and opens or closes the
// user's workspace.
func (m *Model) route() tea.Cmd {
	s := m.deps.Session
	if s.Loading() {
		m.screen = ScreenLoading
		return nil
	}
	user := s.User()
	if user == nil || s.PasswordResetInProgress() {
		m.closeWorkspace()
		m.screen = ScreenAuth
		return m.auth.focus()
	}

	var cmds []tea.Cmd
	if m.ws == nil || m.ws.userID != user.ID {
		m.closeWorkspace()
		if err := m.openWorkspace(user.ID); err != nil {
			m.log.Error().Err(err).Msg("open workspace")
			m.toasts.Error("Could not load your chats: " + err.Error())
		}
		cmds = append(cmds, m.refreshKeys())
		if m.chat.header.Snow {
			cmds = append(cmds, components.SnowTickCmd())
		}
	}
	m.chat.sidebar.UserName = user.DisplayName()
	m.chat.sidebar.Email = user.Email
	m.settings.setUser(*user)

	if m.screen != ScreenSettings {
		m.screen = ScreenChat
		cmds = append(cmds, m.chat.focusInput())
	}
	m.layout()
	return tea.Batch(cmds...)
}

func (m *Model) openWorkspace(userID string) error {
	index := history.New(m.deps.Store, userID, history.WithLogger(m.log))
	var opts []chat.Option
	if m.deps.Stats != nil {
		opts = append(opts, chat.WithStats(m.deps.Stats))
	}
	opts = append(opts, chat.WithLogger(m.log))
	store, err := chat.NewStore(m.ctx, m.deps.Backend, index, m.deps.Store, opts...)
	if err != nil {
		return err
	}
	ws := &workspace{userID: userID, store: store}
	ws.unsub = store.Subscribe(func(chat.Snapshot) { m.notify.post(changeChat) })

	if dir, err := m.deps.Config.DropDir(); err == nil {
		w, err := dropzone.New(dir, store,
			dropzone.WithDebounce(m.deps.Config.Debounce()),
			dropzone.WithLogger(m.log),
			dropzone.WithNotify(func(files []chat.StagedFile) {
				names := make([]string, len(files))
				for i, f := range files {
					names[i] = f.Name
				}
				m.notify.postDropped(names)
			}),
		)
		if err != nil {
			m.log.Warn().Err(err).Str("dir", dir).Msg("drop folder unavailable")
		} else {
			w.Start(m.ctx)
			ws.watcher = w
			m.chat.sidebar.DropDir = dir
		}
	}

	if m.deps.Stats != nil {
		if !m.statsStarted {
			m.deps.Stats.Start(m.ctx)
			m.statsStarted = true
		} else {
			m.deps.Stats.Refresh()
		}
	}

	m.ws = ws
	m.refreshChat()
	m.log.Info().Str("user", userID).Msg("workspace opened")
	return nil
}

func (m *Model) closeWorkspace() {
	if m.ws == nil {
		return
	}
	m.ws.unsub()
	if m.ws.watcher != nil {
		if err := m.ws.watcher.Close(); err != nil {
			m.log.Debug().Err(err).Msg("close drop folder")
		}
	}
	m.ws.store.Close()
	m.ws = nil
	m.chat.reset()
	if m.screen == ScreenSettings {
		m.screen = ScreenAuth
	}
}

// shutdown cancels in-flight work and releases subscriptions.
func (m *Model) shutdown() {
	m.cancel()
	m.closeWorkspace()
	for _, u := range m.unsubs {
		u()
	}
	m.unsubs = nil
	m.notify.close()
}

// Close releases everything the model holds. Safe to call after quitting.
func (m *Model) Close() { m.shutdown() }

// =============================================================================
// VIEW
// =============================================================================

// View renders the routed screen with the toast stack at the bottom.
func (m *Model) View() string {
	var body string
	switch m.screen {
	case ScreenLoading:
		body = lipgloss.Place(m.width, m.height-m.toastHeight(), lipgloss.Center, lipgloss.Center,
			m.spinner.View()+" "+m.theme.ThinkingText.Render("Loading..."))
	case ScreenAuth:
		body = m.auth.view(m.width, m.height-m.toastHeight(), m.spinner.View())
	case ScreenChat:
		body = m.chatView()
	case ScreenSettings:
		body = m.settingsView()
	}
	if stack := components.RenderToastStack(m.toasts.Toasts(), m.width); stack != "" {
		return body + "\n" + stack
	}
	return body
}

func (m *Model) toastHeight() int {
	stack := components.RenderToastStack(m.toasts.Toasts(), m.width)
	if stack == "" {
		return 0
	}
	return lipgloss.Height(stack) + 1
}

func (m *Model) layout() {
	m.chat.resize(m.width, m.height-m.toastHeight())
	m.renderConversation()
}

// requestTimeout bounds one-off settings calls.
const requestTimeout = 30 * time.Second

// run wraps a blocking call as a command reporting a resultMsg.
func (m *Model) run(op, ok string, fn func(ctx context.Context) error) tea.Cmd {
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, requestTimeout)
		defer cancel()
		return result(op, ok, fn(ctx))
	}
}
