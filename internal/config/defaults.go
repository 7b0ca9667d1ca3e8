package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"memewrangler/internal/meme"
	"memewrangler/internal/task/scheduler"
	"memewrangler/internal/transport"
)

const (
	DefaultPostInterval = 30 * time.Second
	DefaultPostTimeout  = 60 * time.Second
	DefaultLogSize      = 100
	DefaultDiagAddr     = "127.0.0.1:9090"
)

// ApplyDefaults fills unset fields in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if !c.Logging.Console && !c.Logging.File.Enabled {
		c.Logging.Console = true
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Driver == "sqlite" && strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = "./memes.db"
	}
	if strings.TrimSpace(c.Schedule.Timezone) == "" {
		c.Schedule.Timezone = meme.DefaultTimezone
	}
	if c.Schedule.LogSize <= 0 {
		c.Schedule.LogSize = DefaultLogSize
	}
	if c.Schedule.RatePerSec <= 0 {
		c.Schedule.RatePerSec = 1
	}
	if strings.TrimSpace(c.Backup.Dir) == "" {
		c.Backup.Dir = "backups"
	}
	if strings.TrimSpace(c.Diagnostics.Addr) == "" {
		c.Diagnostics.Addr = DefaultDiagAddr
	}
}

// Validate checks the fields the bot cannot start without. It expects
// ApplyDefaults to have run.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required (or TELEGRAM_BOT_TOKEN)"))
	}
	if len(c.Telegram.OwnerUserIDs) == 0 {
		errs = append(errs, errors.New("telegram.owner_user_ids is required (or OWNER_ID)"))
	}
	if _, err := c.ChannelDestination(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unsupported %q (sqlite|postgres)", c.Storage.Driver))
	}
	if c.Storage.Driver == "postgres" && strings.TrimSpace(c.Storage.DSN) == "" {
		errs = append(errs, errors.New("storage.dsn is required for postgres (or DATABASE_URL)"))
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.SlotClock(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("schedule.post_interval", c.Schedule.PostInterval); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("schedule.post_timeout", c.Schedule.PostTimeout); err != nil {
		errs = append(errs, err)
	}
	if c.Schedule.LogSize > DefaultLogSize {
		errs = append(errs, fmt.Errorf("schedule.log_size: %d exceeds %d", c.Schedule.LogSize, DefaultLogSize))
	}
	if s := strings.TrimSpace(c.Backup.Schedule); s != "" {
		if _, err := scheduler.ParseSchedule(s); err != nil {
			errs = append(errs, fmt.Errorf("backup.schedule: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Location loads schedule.timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Schedule.Timezone))
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}
	return loc, nil
}

// SlotClock builds the daily slot clock from schedule.timezone and slots.
func (c *Config) SlotClock() (*meme.SlotClock, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	slots, err := meme.ParseSlots(c.Schedule.Slots)
	if err != nil {
		return nil, fmt.Errorf("schedule.slots: %w", err)
	}
	return meme.NewSlotClock(loc, slots...)
}

// ChannelDestination parses telegram.channel.
func (c *Config) ChannelDestination() (transport.Destination, error) {
	d, ok := transport.ParseDestination(c.Telegram.Channel)
	if !ok {
		return transport.Destination{}, fmt.Errorf("telegram.channel: invalid or missing %q (or CHANNEL_ID)", c.Telegram.Channel)
	}
	return d, nil
}

func (c *Config) PostInterval() time.Duration {
	d, _ := ParseDurationOrDefault("schedule.post_interval", c.Schedule.PostInterval, DefaultPostInterval)
	return d
}

func (c *Config) PostTimeout() time.Duration {
	d, _ := ParseDurationOrDefault("schedule.post_timeout", c.Schedule.PostTimeout, DefaultPostTimeout)
	return d
}
