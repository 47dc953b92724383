// Package view runs one client's component tree: session, credential form, message feed
// and composer, rendered through a fault boundary. All state changes are applied on the
// view's own goroutine.
package view

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"cio-chat/backend/internal/backend"
	"cio-chat/backend/internal/composer"
	"cio-chat/backend/internal/credential"
	"cio-chat/backend/internal/docstore"
	"cio-chat/backend/internal/feed"
	"cio-chat/backend/internal/identity"
	"cio-chat/backend/internal/session"
	"cio-chat/backend/internal/shell"
	"cio-chat/backend/pkg/logger"
	"cio-chat/backend/shared/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Action types accepted from the client
const (
	ActionMode     = "mode"
	ActionLogin    = "login"
	ActionRegister = "register"
	ActionLogout   = "logout"
	ActionDraft    = "draft"
	ActionSend     = "send"
	ActionReload   = "reload"
)

// Action is a client event
type Action struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

type credentialsContent struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type modeContent struct {
	Mode string `json:"mode"`
}

type textContent struct {
	Text *string `json:"text"`
}

// Events from background work carry the mount generation they belong to; a reload
// bumps it and stale events are dropped.
type sessionChanged struct {
	gen   int
	state session.State
}
type messagesChanged struct {
	gen      int
	messages []docstore.Message
}
type submitDone struct {
	gen  int
	mode credential.Mode
	err  error
}
type sendDone struct {
	gen int
	err error
}

// Options configures a View
type Options struct {
	ID            string
	Backend       backend.Backend
	Token         string
	MessageWindow int
	AuthTimeout   time.Duration
	SendTimeout   time.Duration
	Publish       func(Frame)
	Metrics       observability.Recorder
	Log           *logger.Logger
}

// View is one client's component tree
type View struct {
	id      string
	backend backend.Backend
	opts    Options
	log     *logger.Logger
	metrics observability.Recorder
	inbox   *inbox

	// Owned by the Run goroutine
	ctx         context.Context
	gen         int
	auth        *identity.Auth
	store       docstore.Store
	sessions    *session.Manager
	boundary    *shell.Boundary
	form        *credential.Form
	composer    *composer.Composer
	feed        *feed.Feed
	stopSession func()
	state       session.State
	messages    []docstore.Message
	submitting  bool
	sending     bool
	alert       string
	token       string
	renderHook  func()
}

// New creates a view. Nothing happens until Run is called.
func New(opts Options) *View {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Log == nil {
		opts.Log = logger.GetGlobal()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.Nop{}
	}
	if opts.Publish == nil {
		opts.Publish = func(Frame) {}
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 10 * time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}

	v := &View{
		id:      opts.ID,
		backend: opts.Backend,
		opts:    opts,
		log:     opts.Log.WithComponent("view").WithFields("view_id", opts.ID),
		metrics: opts.Metrics,
		inbox:   newInbox(),
		token:   opts.Token,
	}
	if conn, ok := opts.Backend.(*backend.Connected); ok {
		v.store = conn.Store
	}
	return v
}

// ID returns the view id
func (v *View) ID() string {
	return v.id
}

// Dispatch queues a client action. It never blocks.
func (v *View) Dispatch(a Action) {
	v.inbox.push(a)
}

// Run mounts the tree and processes events until ctx ends. All subscriptions are
// released before it returns.
func (v *View) Run(ctx context.Context) {
	v.ctx = ctx
	v.metrics.ViewOpened()
	defer v.metrics.ViewClosed()
	defer v.inbox.close()
	defer v.unmount()

	v.mount()
	v.render()

	for {
		select {
		case <-ctx.Done():
			return
		case <-v.inbox.signal:
			for _, e := range v.inbox.drain() {
				v.handle(e)
			}
			v.render()
		}
	}
}

func (v *View) post(e any) {
	v.inbox.push(e)
}

func (v *View) mount() {
	v.gen++
	gen := v.gen
	v.boundary = shell.NewBoundary(v.id, v.log)
	v.sessions = session.NewManager(v.log)
	v.state = session.Initial
	v.messages = nil
	v.submitting = false
	v.sending = false
	v.alert = ""

	v.auth = nil
	if conn, ok := v.backend.(*backend.Connected); ok {
		v.auth = identity.NewAuth(conn.Identity, v.log)
	}
	v.form = credential.NewForm(v.auth, v.log)

	v.stopSession = v.sessions.Observe(v.auth, func(s session.State) {
		v.post(sessionChanged{gen: gen, state: s})
	})

	if v.auth != nil {
		auth, token := v.auth, v.token
		go auth.Restore(v.ctx, token)
	}
}

func (v *View) unmount() {
	v.unmountRoom()
	if v.stopSession != nil {
		v.stopSession()
		v.stopSession = nil
	}
}

func (v *View) mountRoom() {
	if v.feed != nil || v.store == nil {
		return
	}
	gen := v.gen
	v.composer = composer.New(v.log)
	v.feed = feed.New(v.opts.MessageWindow, func(msgs []docstore.Message) {
		v.post(messagesChanged{gen: gen, messages: msgs})
	}, v.log)
	v.feed.Start(v.store)
}

func (v *View) unmountRoom() {
	if v.feed != nil {
		v.feed.Stop()
		v.feed = nil
	}
	v.composer = nil
	v.messages = nil
	v.sending = false
	v.alert = ""
}

func (v *View) handle(e any) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Error("Event handler panicked",
				"error", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	switch ev := e.(type) {
	case sessionChanged:
		if ev.gen == v.gen {
			v.onSession(ev.state)
		}
	case messagesChanged:
		if ev.gen == v.gen && v.feed != nil {
			v.messages = ev.messages
		}
	case submitDone:
		v.metrics.AuthSubmitted(string(ev.mode), ev.err)
		if ev.gen == v.gen {
			v.submitting = false
		}
	case sendDone:
		v.metrics.MessageSent(ev.err)
		if ev.gen != v.gen {
			return
		}
		v.sending = false
		var sendErr *composer.SendError
		if errors.As(ev.err, &sendErr) {
			v.alert = sendErr.Alert()
		}
	case Action:
		v.onAction(ev)
	}
}

func (v *View) onSession(s session.State) {
	v.state = s
	if s.Session != nil && v.boundary.State() == shell.Healthy {
		v.mountRoom()
	} else {
		v.unmountRoom()
	}

	if v.auth != nil {
		v.token = v.auth.Token()
		info := SessionInfo{Token: v.token}
		if s.Session != nil {
			info.UID = s.Session.UID
		}
		v.opts.Publish(Frame{Type: FrameSession, Content: info})
	}
}

func (v *View) onAction(a Action) {
	if v.boundary.State() == shell.Faulted && a.Type != ActionReload {
		return
	}

	switch a.Type {
	case ActionMode:
		var c modeContent
		if err := decode(a.Content, &c); err != nil {
			v.log.Warn("Malformed mode action", "error", err.Error())
			return
		}
		if mode, ok := credential.ParseMode(c.Mode); ok {
			v.form.SetMode(mode)
		}

	case ActionLogin, ActionRegister:
		var c credentialsContent
		if err := decode(a.Content, &c); err != nil {
			v.log.Warn("Malformed credential action", "error", err.Error())
			return
		}
		v.submit(credential.Mode(a.Type), c)

	case ActionLogout:
		if v.auth != nil {
			v.auth.SignOut()
		}

	case ActionDraft:
		var c textContent
		if err := decode(a.Content, &c); err != nil || c.Text == nil {
			return
		}
		if v.composer != nil {
			v.composer.SetDraft(*c.Text)
		}

	case ActionSend:
		var c textContent
		_ = decode(a.Content, &c)
		if v.composer != nil && c.Text != nil {
			v.composer.SetDraft(*c.Text)
		}
		v.send()

	case ActionReload:
		v.reload()

	default:
		v.log.Warn("Unknown action type", "type", a.Type)
	}
}

func (v *View) submit(mode credential.Mode, c credentialsContent) {
	if v.submitting {
		return
	}
	v.submitting = true

	form, gen := v.form, v.gen
	ctx, cancel := context.WithTimeout(v.ctx, v.opts.AuthTimeout)
	go func() {
		defer cancel()
		ctx, span := otel.Tracer(observability.TracerName).Start(ctx, "credential.submit",
			trace.WithAttributes(attribute.String("mode", string(mode)), attribute.String("view.id", v.id)))
		defer span.End()

		err := form.Submit(ctx, mode, c.Email, c.Password, c.DisplayName)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		v.post(submitDone{gen: gen, mode: mode, err: err})
	}()
}

func (v *View) send() {
	if v.sending || v.composer == nil || v.state.Session == nil {
		return
	}
	text := v.composer.Draft()
	if strings.TrimSpace(text) == "" {
		return
	}
	v.sending = true
	v.alert = ""

	comp, store, s, gen := v.composer, v.store, v.state.Session, v.gen
	ctx, cancel := context.WithTimeout(v.ctx, v.opts.SendTimeout)
	go func() {
		defer cancel()
		ctx, span := otel.Tracer(observability.TracerName).Start(ctx, "composer.send",
			trace.WithAttributes(attribute.String("view.id", v.id), attribute.String("uid", s.UID)))
		defer span.End()

		err := comp.Send(ctx, store, s, text)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		v.post(sendDone{gen: gen, err: err})
	}()
}

// reload tears the tree down and mounts a fresh one, keeping the stored token the way a
// browser reload keeps its persisted sign-in
func (v *View) reload() {
	if v.auth != nil {
		v.token = v.auth.Token()
	}
	v.unmount()
	v.mount()
	v.log.Info("View reloaded")
}

func (v *View) render() {
	wasHealthy := v.boundary.State() == shell.Healthy
	out, err := v.boundary.Render(func() (any, error) {
		if v.renderHook != nil {
			v.renderHook()
		}
		return v.screen(), nil
	})
	if err != nil {
		v.log.LogError(err, "Render failed")
		return
	}
	if wasHealthy && v.boundary.State() == shell.Faulted {
		v.metrics.ViewFaulted()
		v.unmountRoom()
	}

	v.opts.Publish(Frame{Type: FrameScreen, Content: out})
	v.alert = ""
}

func (v *View) screen() any {
	if v.state.Loading {
		return LoadingScreen{Screen: "loading", Message: LoadingMessage}
	}

	if v.state.Session == nil {
		login := LoginScreen{
			Screen:  "login",
			Mode:    string(v.form.Mode()),
			Error:   v.form.Error(),
			Loading: v.submitting || v.form.Loading(),
		}
		if d, ok := v.backend.(backend.Disconnected); ok {
			login.Backend = &BackendNotice{
				Connected:   false,
				MissingKeys: d.MissingKeys(),
				Reason:      d.Reason(),
			}
		}
		return login
	}

	room := RoomScreen{
		Screen:   "room",
		Title:    RoomTitle,
		Subtitle: RoomSubtitle,
		User:     v.state.Session,
		Messages: renderMessages(v.messages, v.state.Session),
		Sending:  v.sending,
		Alert:    v.alert,
	}
	if v.composer != nil {
		room.Draft = v.composer.Draft()
	}
	room.CanSend = !room.Sending && strings.TrimSpace(room.Draft) != ""
	if len(room.Messages) == 0 {
		room.Empty = EmptyRoom
	} else {
		room.Scroll.Anchor = room.Messages[len(room.Messages)-1].ID
	}
	return room
}

func decode(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, into)
}
