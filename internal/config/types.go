package config

// Config is the bot's file configuration. Durations are Go duration strings
// ("30s", "2m"). Unknown keys are rejected on load.
type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Logging     LoggingConfig     `json:"logging"`
	Storage     StorageConfig     `json:"storage"`
	Schedule    ScheduleConfig    `json:"schedule"`
	Backup      BackupConfig      `json:"backup"`
	Diagnostics DiagnosticsConfig `json:"diagnostics"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// Channel is "@username" or a numeric chat id such as "-100123".
	Channel string `json:"channel"`
	// LogChat receives warnings when logging.telegram is enabled.
	LogChat     int64  `json:"log_chat,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig selects the record store.
//
//	"storage": { "driver": "sqlite", "path": "./memes.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://u:p@db/memes" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type ScheduleConfig struct {
	Timezone string `json:"timezone,omitempty"`
	// Slots are daily "HH:MM" boundaries in Timezone.
	Slots        []string `json:"slots,omitempty"`
	PostInterval string   `json:"post_interval,omitempty"`
	PostTimeout  string   `json:"post_timeout,omitempty"`
	RatePerSec   float64  `json:"rate_per_sec,omitempty"`
	LogSize      int      `json:"log_size,omitempty"`
}

type BackupConfig struct {
	Dir string `json:"dir,omitempty"`
	// PasswordHash is the sha256 hex of the /backup and /restore password.
	PasswordHash string `json:"password_hash,omitempty"`
	// Schedule is an optional periodic backup ("cron:0 3 * * *", "every:6h").
	Schedule string `json:"schedule,omitempty"`
	OnIntake bool   `json:"on_intake,omitempty"`
}

// DiagnosticsConfig controls the health and metrics HTTP server.
// Bind to loopback, or set a token, or explicitly allow_insecure.
type DiagnosticsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
