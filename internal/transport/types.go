package transport

import (
	"context"
	"strconv"
	"strings"
)

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
	UpdateMedia   UpdateKind = "media"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

// MediaKind tells which attachment a message carries.
type MediaKind string

const (
	MediaNone      MediaKind = ""
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaAnimation MediaKind = "animation"
	MediaDocument  MediaKind = "document"
)

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsPrivate    bool

	// Media fields are set for photo, video, animation and document messages.
	Media     MediaKind
	FileID    string
	ThumbID   string
	Caption   string
	MediaMime string

	// ReplyDocumentID is the document file id of the replied-to message.
	ReplyDocumentID string
	ReplyFileName   string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Destination addresses a chat by numeric id or by public @username.
type Destination struct {
	ChatID   int64
	Username string
}

// ParseDestination accepts "-100123", "123" or "@channel".
func ParseDestination(raw string) (Destination, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Destination{}, false
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id != 0 {
		return Destination{ChatID: id}, true
	}
	name := strings.TrimPrefix(raw, "@")
	if name == "" || strings.ContainsAny(name, " /") {
		return Destination{}, false
	}
	return Destination{Username: "@" + name}, true
}

func ChatDestination(chatID int64) Destination { return Destination{ChatID: chatID} }

func (d Destination) IsZero() bool { return d.ChatID == 0 && d.Username == "" }

func (d Destination) String() string {
	if d.Username != "" {
		return d.Username
	}
	return strconv.FormatInt(d.ChatID, 10)
}

// Media is either a platform file reference or raw bytes to upload.
type Media struct {
	Ref      string
	Data     []byte
	FileName string
}

func (m Media) IsUpload() bool { return len(m.Data) > 0 }

// MediaClient is the channel-side API used by the poster and the backup
// command.
type MediaClient interface {
	SendPhoto(ctx context.Context, to Destination, m Media, caption string) error
	SendVideo(ctx context.Context, to Destination, m Media, caption string) error
	SendDocument(ctx context.Context, to Destination, m Media, caption string) error
	// FetchFile downloads the bytes behind a file reference.
	FetchFile(ctx context.Context, ref string) ([]byte, error)
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
