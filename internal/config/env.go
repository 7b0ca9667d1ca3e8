package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
)

// Environment variables understood by ApplyEnv. Set values override the file.
const (
	EnvToken          = "TELEGRAM_BOT_TOKEN"
	EnvOwnerID        = "OWNER_ID"
	EnvChannelID      = "CHANNEL_ID"
	EnvDatabaseURL    = "DATABASE_URL"
	EnvMemebotDB      = "MEMEBOT_DB"
	EnvBackupDir      = "MEMEBOT_BACKUP_DIR"
	EnvBackupPassHash = "MEMEBOT_BACKUP_PASSWORD_HASH"
	EnvPGUser         = "POSTGRES_USER"
	EnvPGPassword     = "POSTGRES_PASSWORD"
	EnvPGDB           = "POSTGRES_DB"
	EnvPGHost         = "POSTGRES_HOST"
	EnvPGPort         = "POSTGRES_PORT"
)

// ApplyEnv overlays the process environment onto c.
func (c *Config) ApplyEnv() error { return c.applyEnv(os.Getenv) }

func (c *Config) applyEnv(getenv func(string) string) error {
	env := func(k string) string { return strings.TrimSpace(getenv(k)) }

	if v := env(EnvToken); v != "" {
		c.Telegram.Token = v
	}
	if v := env(EnvOwnerID); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id == 0 {
			return fmt.Errorf("%s: invalid user id %q", EnvOwnerID, v)
		}
		if !slices.Contains(c.Telegram.OwnerUserIDs, id) {
			c.Telegram.OwnerUserIDs = append([]int64{id}, c.Telegram.OwnerUserIDs...)
		}
	}
	if v := env(EnvChannelID); v != "" {
		c.Telegram.Channel = v
	}
	if v := env(EnvBackupDir); v != "" {
		c.Backup.Dir = v
	}
	if v := env(EnvBackupPassHash); v != "" {
		c.Backup.PasswordHash = v
	}
	if dsn := databaseURL(env); dsn != "" {
		c.Storage.Driver = "postgres"
		c.Storage.DSN = dsn
		c.Storage.Path = ""
	}
	return nil
}

// databaseURL derives a postgres URL from DATABASE_URL, MEMEBOT_DB or the
// POSTGRES_* parts, then applies the POSTGRES_HOST override.
func databaseURL(env func(string) string) string {
	raw := env(EnvDatabaseURL)
	if raw == "" {
		raw = env(EnvMemebotDB)
	}
	if raw == "" {
		user, pass, db := env(EnvPGUser), env(EnvPGPassword), env(EnvPGDB)
		if user == "" || pass == "" || db == "" {
			return ""
		}
		host := env(EnvPGHost)
		if host == "" {
			host = "localhost"
		}
		port := env(EnvPGPort)
		if port == "" {
			port = "5432"
		}
		u := url.URL{
			Scheme: "postgresql",
			User:   url.UserPassword(user, pass),
			Host:   net.JoinHostPort(host, port),
			Path:   "/" + db,
		}
		raw = u.String()
	}
	return overrideLocalHost(raw, env(EnvPGHost), env(EnvPGPort))
}

func isLocalHost(h string) bool {
	switch h {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// overrideLocalHost points a loopback URL at host, for container setups where
// the database runs beside the bot. Non-loopback URLs are left alone.
func overrideLocalHost(raw, host, port string) string {
	if host == "" || isLocalHost(host) {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || !isLocalHost(u.Hostname()) {
		return raw
	}
	if p := u.Port(); p != "" {
		port = p
	}
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	return u.String()
}
