package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/chat-panels/chat"
	"github.com/onnwee/chat-panels/telemetry"
	"github.com/onnwee/chat-panels/twitchapi"
	"github.com/onnwee/chat-panels/view"
)

type avatarResult struct {
	login string
	url   string
	err   error
}

// session is one connection to one channel. Everything reachable from its
// pipeline and model is touched only by loop.
type session struct {
	id        string
	params    Params
	startedAt time.Time
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	events  chan chat.Event
	results chan avatarResult
	cmds    chan func()
	done    chan struct{} // loop exited
	runDone chan struct{} // transport Run returned

	avatarTimeout time.Duration
	users         UserLookup
	hub           *Hub
	fetches       sync.WaitGroup

	// loop-owned
	pipeline    *chat.Pipeline
	model       *view.Model
	channelInfo ChannelInfo
	runErr      error
}

type sessionDeps struct {
	transport     chat.Transport
	users         UserLookup
	hub           *Hub
	logger        *slog.Logger
	window        time.Duration
	avatarTimeout time.Duration
	mode          view.Mode
	style         view.Style
}

func startSession(parent context.Context, p Params, d sessionDeps) *session {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.NewString()
	s := &session{
		id:            id,
		params:        p,
		startedAt:     time.Now().UTC(),
		logger:        d.logger.With(slog.String("session_id", id), slog.String("channel", p.Channel)),
		ctx:           ctx,
		cancel:        cancel,
		events:        make(chan chat.Event, 256),
		results:       make(chan avatarResult, 16),
		cmds:          make(chan func()),
		done:          make(chan struct{}),
		runDone:       make(chan struct{}),
		avatarTimeout: d.avatarTimeout,
		users:         d.users,
		hub:           d.hub,
		model:         view.NewModel(d.mode, d.style),
	}
	s.pipeline = chat.NewPipeline(chat.PipelineOptions{
		Recency:  chat.NewRecencyCache(d.window),
		Fetcher:  s,
		Renderer: s,
		Logger:   s.logger,
	})

	go s.loop()
	go func() {
		defer close(s.runDone)
		err := d.transport.Run(ctx, s.deliver)
		if err != nil && ctx.Err() == nil {
			s.logger.Error("chat transport stopped", slog.Any("err", err), slog.String("component", "session"))
			_ = s.call(context.Background(), func() { s.runErr = err })
		}
	}()
	return s
}

// deliver is the transport callback. It runs on the transport's goroutine.
func (s *session) deliver(ev chat.Event) {
	if ev.Self {
		telemetry.IncEventsReceived()
		telemetry.IncDropped(chat.SelfOriginated.String())
		return
	}
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			s.pipeline.OnChatEvent(ev)
		case r := <-s.results:
			if r.err != nil {
				s.logger.Debug("avatar lookup failed", slog.String("username", r.login), slog.Any("err", r.err), slog.String("component", "session"))
				s.pipeline.Avatars().Fail(r.login)
				continue
			}
			s.pipeline.Avatars().Resolve(r.login, r.url)
		case fn := <-s.cmds:
			fn()
		}
	}
}

// call runs fn on the loop and waits for it.
func (s *session) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.cmds <- wrapped:
	case <-s.done:
		return ErrNoSession
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RenderIncremental implements chat.Renderer; called on the loop.
func (s *session) RenderIncremental(msg chat.ChatMessage) {
	s.model.RenderIncremental(msg)
	telemetry.SetPanels(s.model.PanelCount())
	m := msg
	s.hub.Publish(Update{Kind: UpdateMessage, SessionID: s.id, Version: s.model.Version(), Message: &m})
}

// RequestAvatar implements chat.AvatarFetcher; called on the loop, never blocks it.
func (s *session) RequestAvatar(login string) {
	if s.users == nil {
		s.pipeline.Avatars().Fail(login)
		return
	}
	s.fetches.Add(1)
	go func() {
		defer s.fetches.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.avatarTimeout)
		defer cancel()
		ctx, span := telemetry.StartSpan(ctx, "session", "avatar.lookup", telemetry.ChatUserAttr(login))
		defer span.End()

		start := time.Now()
		var url string
		u, err := s.users.GetUser(ctx, login)
		if err == nil {
			url = u.ProfileImageURL
			telemetry.SetSpanSuccess(span)
		} else {
			telemetry.RecordError(span, err)
		}
		telemetry.ObserveAvatarLookup(err == nil, time.Since(start))

		select {
		case s.results <- avatarResult{login: login, url: url, err: err}:
		case <-s.ctx.Done():
		}
	}()
}

// fetchChannelInfo resolves the channel's display name and logo once per session.
func (s *session) fetchChannelInfo(onResolved func(ChannelInfo)) {
	if s.users == nil {
		return
	}
	s.fetches.Add(1)
	go func() {
		defer s.fetches.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.avatarTimeout)
		defer cancel()
		u, err := s.users.GetUser(ctx, s.params.Channel)
		if err != nil {
			s.logger.Warn("channel lookup failed", slog.Any("err", err), slog.String("component", "session"))
			return
		}
		info := channelInfoFromUser(u)
		if err := s.call(s.ctx, func() { s.channelInfo = info }); err != nil {
			return
		}
		if onResolved != nil {
			onResolved(info)
		}
		s.hub.Publish(Update{Kind: UpdateView, SessionID: s.id})
	}()
}

func channelInfoFromUser(u *twitchapi.User) ChannelInfo {
	return ChannelInfo{Login: u.Login, DisplayName: u.DisplayName, LogoURL: u.ProfileImageURL}
}

// stop tears the session down: the transport has returned and the loop and
// every lookup goroutine have exited when stop returns.
func (s *session) stop() {
	s.cancel()
	<-s.runDone
	<-s.done
	s.fetches.Wait()
}

func (s *session) status() Status {
	st := Status{
		Active:      true,
		ID:          s.id,
		Username:    s.params.Username,
		Channel:     s.params.Channel,
		ChannelInfo: s.channelInfo,
		StartedAt:   s.startedAt,
		Messages:    s.pipeline.Store().Len(),
		Panels:      s.model.PanelCount(),
	}
	if s.runErr != nil {
		st.Error = s.runErr.Error()
	}
	return st
}
