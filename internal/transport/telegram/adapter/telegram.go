package adapter

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "memewrangler/internal/runtime/supervisor"
	kit "memewrangler/internal/transport"
	logx "memewrangler/pkg/logx"
)

// Config configures the Telegram bot connection.
type Config struct {
	Token       string
	PollTimeout time.Duration
}

var (
	_ kit.Adapter            = (*Adapter)(nil)
	_ kit.MediaClient        = (*Adapter)(nil)
	_ kit.CommandMenuUpdater = (*Adapter)(nil)
)

// Adapter is the Telegram side of the bot: it long-polls updates for the
// router and sends text, media and documents.
type Adapter struct {
	log logx.Logger
	bot *tele.Bot

	out atomic.Pointer[chan<- kit.Update]

	runMu sync.Mutex
	sup   *rtsup.Supervisor

	// dropped counts updates lost to a full router queue, reported in batches.
	dropped atomic.Uint64

	menuMu   sync.Mutex
	menuHash uint64
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		if m := c.Message(); m != nil {
			a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: convertMessage(m)})
		}
		return nil
	})

	media := func(c tele.Context) error {
		if m := c.Message(); m != nil {
			a.sendUpdate(kit.Update{Kind: kit.UpdateMedia, Message: convertMessage(m)})
		}
		return nil
	}
	for _, ev := range []string{tele.OnPhoto, tele.OnVideo, tele.OnAnimation, tele.OnDocument} {
		a.bot.Handle(ev, media)
	}
}

func convertMessage(m *tele.Message) *kit.Message {
	out := &kit.Message{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		Text:      m.Text,
		Caption:   m.Caption,
		IsPrivate: m.Private(),
	}
	if m.Chat != nil {
		out.ChatID = m.Chat.ID
	}
	if m.Sender != nil {
		out.FromID = m.Sender.ID
		out.FromUsername = m.Sender.Username
	}
	switch {
	case m.Photo != nil:
		out.Media = kit.MediaPhoto
		out.FileID = m.Photo.FileID
	case m.Animation != nil:
		// Telegram also sets Document for animations; the animation wins.
		out.Media = kit.MediaAnimation
		out.FileID = m.Animation.FileID
		out.MediaMime = m.Animation.MIME
		if m.Animation.Thumbnail != nil {
			out.ThumbID = m.Animation.Thumbnail.FileID
		}
	case m.Video != nil:
		out.Media = kit.MediaVideo
		out.FileID = m.Video.FileID
		out.MediaMime = m.Video.MIME
		if m.Video.Thumbnail != nil {
			out.ThumbID = m.Video.Thumbnail.FileID
		}
	case m.Document != nil:
		out.Media = kit.MediaDocument
		out.FileID = m.Document.FileID
		out.MediaMime = m.Document.MIME
	}
	if r := m.ReplyTo; r != nil && r.Document != nil {
		out.ReplyDocumentID = r.Document.FileID
		out.ReplyFileName = r.Document.FileName
	}
	return out
}

// New connects to the Bot API (getMe) and registers the update handlers.
func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: poll},
		OnError: func(err error, _ tele.Context) {
			log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{log: log.With(logx.String("comp", "telegram.adapter")), bot: b}
	a.registerHandlers()
	return a, nil
}

