package config

import (
	"reflect"
	"sort"

	logx "memewrangler/pkg/logx"
)

// Change summarizes a reload for logging and for deciding what to re-apply.
type Change struct {
	// Sections lists changed top-level keys, sorted.
	Sections []string
	// RestartRequired lists changed keys that only take effect after a restart.
	RestartRequired []string
	// Fields are safe to log. Tokens and hashes are never included.
	Fields []logx.Field
}

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// Diff compares two configs.
func Diff(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if !reflect.DeepEqual(ot, nt) {
		ch.Sections = append(ch.Sections, "telegram")
		ch.Fields = append(ch.Fields,
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.String("telegram.channel", nt.Channel),
			logx.Bool("telegram.log_chat_set", nt.LogChat != 0),
		)
		if ot.Token != nt.Token {
			ch.RestartRequired = append(ch.RestartRequired, "telegram.token")
		}
		if ot.PollTimeout != nt.PollTimeout {
			ch.RestartRequired = append(ch.RestartRequired, "telegram.poll_timeout")
		}
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		nl := newCfg.Logging
		ch.Sections = append(ch.Sections, "logging")
		ch.Fields = append(ch.Fields,
			logx.String("logging.level", nl.Level),
			logx.Bool("logging.console", nl.Console),
			logx.Bool("logging.file", nl.File.Enabled),
			logx.Bool("logging.telegram", nl.Telegram.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		ch.Sections = append(ch.Sections, "storage")
		ch.RestartRequired = append(ch.RestartRequired, "storage")
		ch.Fields = append(ch.Fields, logx.String("storage.driver", newCfg.Storage.Driver))
	}

	prevS, ns := oldCfg.Schedule, newCfg.Schedule
	if !reflect.DeepEqual(prevS, ns) {
		ch.Sections = append(ch.Sections, "schedule")
		ch.Fields = append(ch.Fields,
			logx.String("schedule.timezone", ns.Timezone),
			logx.Any("schedule.slots", ns.Slots),
			logx.String("schedule.post_interval", ns.PostInterval),
		)
		if prevS.Timezone != ns.Timezone || !reflect.DeepEqual(prevS.Slots, ns.Slots) {
			ch.RestartRequired = append(ch.RestartRequired, "schedule.timezone/slots")
		}
		if prevS.RatePerSec != ns.RatePerSec || prevS.PostTimeout != ns.PostTimeout || prevS.LogSize != ns.LogSize {
			ch.RestartRequired = append(ch.RestartRequired, "schedule.delivery")
		}
	}

	ob, nb := oldCfg.Backup, newCfg.Backup
	if !reflect.DeepEqual(ob, nb) {
		ch.Sections = append(ch.Sections, "backup")
		ch.Fields = append(ch.Fields,
			logx.String("backup.schedule", nb.Schedule),
			logx.Bool("backup.on_intake", nb.OnIntake),
			logx.Bool("backup.password_changed", ob.PasswordHash != nb.PasswordHash),
		)
		if ob.Dir != nb.Dir || ob.OnIntake != nb.OnIntake {
			ch.RestartRequired = append(ch.RestartRequired, "backup.dir/on_intake")
		}
	}

	od, nd := oldCfg.Diagnostics, newCfg.Diagnostics
	if !reflect.DeepEqual(od, nd) {
		ch.Sections = append(ch.Sections, "diagnostics")
		ch.Fields = append(ch.Fields,
			logx.Bool("diagnostics.enabled", nd.Enabled),
			logx.String("diagnostics.addr", nd.Addr),
			logx.Bool("diagnostics.token_set", nd.Token != ""),
			logx.Bool("diagnostics.pprof", nd.Pprof),
		)
	}

	sort.Strings(ch.Sections)
	return ch
}
