package chat

import (
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/chat-panels/telemetry"
)

// Outcome is the result of feeding one event into the pipeline.
type Outcome int

const (
	Accepted Outcome = iota
	Duplicate
	Malformed
	SelfOriginated
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	case Malformed:
		return "malformed"
	case SelfOriginated:
		return "self"
	default:
		return "unknown"
	}
}

// Renderer receives every accepted message, one at a time.
type Renderer interface {
	RenderIncremental(msg ChatMessage)
}

// AvatarFetcher starts an asynchronous profile-image lookup. It must not block.
type AvatarFetcher interface {
	RequestAvatar(login string)
}

// PipelineOptions wires a Pipeline. Nil Recency/Store/Avatars get fresh defaults.
type PipelineOptions struct {
	Recency  *RecencyCache
	Store    *Store
	Avatars  *AvatarCache
	Fetcher  AvatarFetcher
	Renderer Renderer
	Logger   *slog.Logger
	Now      func() time.Time
}

// Pipeline turns raw events into stored, rendered messages.
type Pipeline struct {
	recency  *RecencyCache
	store    *Store
	avatars  *AvatarCache
	fetcher  AvatarFetcher
	renderer Renderer
	logger   *slog.Logger
	now      func() time.Time
}

// NewPipeline builds a pipeline from opts.
func NewPipeline(opts PipelineOptions) *Pipeline {
	p := &Pipeline{
		recency:  opts.Recency,
		store:    opts.Store,
		avatars:  opts.Avatars,
		fetcher:  opts.Fetcher,
		renderer: opts.Renderer,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if p.recency == nil {
		p.recency = NewRecencyCache(DuplicateWindow)
	}
	if p.store == nil {
		p.store = NewStore()
	}
	if p.avatars == nil {
		p.avatars = NewAvatarCache()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Store exposes the backing message store.
func (p *Pipeline) Store() *Store { return p.store }

// Avatars exposes the backing avatar cache.
func (p *Pipeline) Avatars() *AvatarCache { return p.avatars }

// OnChatEvent ingests one event. Rejections (self, malformed, duplicate) have no
// observable effect besides metrics and debug logs.
func (p *Pipeline) OnChatEvent(ev Event) Outcome {
	telemetry.IncEventsReceived()
	if ev.Self {
		telemetry.IncDropped(SelfOriginated.String())
		return SelfOriginated
	}

	login := strings.ToLower(strings.TrimSpace(ev.Username))
	if login == "" || strings.TrimSpace(ev.Text) == "" {
		p.logger.Debug("dropping malformed chat event",
			slog.String("username", ev.Username),
			slog.Int("text_len", len(ev.Text)),
			slog.String("component", "chat_pipeline"))
		telemetry.IncDropped(Malformed.String())
		return Malformed
	}

	now := ev.ReceivedAt
	if now.IsZero() {
		now = p.now()
	}
	if !p.recency.ShouldAccept(login, ev.Text, now) {
		p.logger.Debug("dropping duplicate chat message",
			slog.String("username", login),
			slog.String("component", "chat_pipeline"))
		telemetry.IncDropped(Duplicate.String())
		return Duplicate
	}

	url, needsFetch := p.avatars.Lookup(login)
	if needsFetch && p.fetcher != nil {
		p.fetcher.RequestAvatar(login)
	}

	p.recency.Record(login, ev.Text, now)
	msg := ChatMessage{
		Seq:             p.store.Len() + 1,
		Username:        login,
		DisplayName:     displayIdentity(ev),
		Text:            ev.Text,
		Badges:          copyBadges(ev.Badges),
		Color:           ev.Color,
		ProfileImageURL: url,
		ReceivedAt:      now,
	}
	p.store.Append(msg)
	telemetry.IncAccepted()
	telemetry.SetStoreMessages(p.store.Len())

	if p.renderer != nil {
		p.renderer.RenderIncremental(msg)
	}
	return Accepted
}
