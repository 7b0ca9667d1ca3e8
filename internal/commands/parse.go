package commands

import (
	"regexp"
	"strconv"
	"strings"

	"memewrangler/internal/meme"
)

const (
	usageUnschedule = "Usage: /unschedule <id1> <id2> ..."
	usageScheduleAt = "Usage: /scheduleat id: <id> <HH:MM> or /scheduleat ids: <start>-<end> <YYYY-MM-DD>"
)

var (
	reScheduleOne   = regexp.MustCompile(`(?i)^id:\s*(\d+)\s+(\d{2}):(\d{2})$`)
	reScheduleRange = regexp.MustCompile(`(?i)^ids:\s*(\d+)-(\d+)\s+(\d{4}-\d{2}-\d{2})$`)
)

// parseIDs reads positive integer ids from args.
func parseIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, meme.Validation("parse ids", "no ids given")
	}
	out := make([]int64, 0, len(args))
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, meme.Validation("parse ids", "invalid id %q", part)
			}
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, meme.Validation("parse ids", "no ids given")
	}
	return out, nil
}

func parseID(args []string) (int64, bool) {
	if len(args) != 1 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	return id, err == nil && id > 0
}

type scheduleAtKind int

const (
	scheduleAtNone scheduleAtKind = iota
	scheduleAtOne
	scheduleAtRange
)

// scheduleAtArgs is the parsed form of /scheduleat. Hour and minute are not
// range checked here.
type scheduleAtArgs struct {
	kind         scheduleAtKind
	id           int64
	hour, minute int
	start, end   int64
	date         string
}

func parseScheduleAt(line string) scheduleAtArgs {
	line = strings.TrimSpace(line)
	if m := reScheduleOne.FindStringSubmatch(line); m != nil {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return scheduleAtArgs{}
		}
		hh, _ := strconv.Atoi(m[2])
		mm, _ := strconv.Atoi(m[3])
		return scheduleAtArgs{kind: scheduleAtOne, id: id, hour: hh, minute: mm}
	}
	if m := reScheduleRange.FindStringSubmatch(line); m != nil {
		start, err1 := strconv.ParseInt(m[1], 10, 64)
		end, err2 := strconv.ParseInt(m[2], 10, 64)
		if err1 != nil || err2 != nil {
			return scheduleAtArgs{}
		}
		return scheduleAtArgs{kind: scheduleAtRange, start: start, end: end, date: m[3]}
	}
	return scheduleAtArgs{}
}
