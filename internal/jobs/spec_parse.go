package jobs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind is the normalized form of a schedule string.
type Kind int

const (
	KindCron Kind = iota
	KindInterval
)

func (k Kind) String() string {
	if k == KindInterval {
		return "interval"
	}
	return "cron"
}

// Spec is a parsed schedule.
//
// Accepted forms:
//   - cron: "*/5 * * * *", "0 9 * * 1-5", "@hourly", "@every 5m"
//   - Go duration interval: "55m", "2h30m"
//   - HH:MM interval: "00:50" (50 minutes), "02:30"
//
// The prefixes "cron:", "interval:" and "every:" force a form.
type Spec struct {
	Kind   Kind
	Cron   string
	Every  time.Duration
	Source string // cron | duration | hhmm
}

// CronSpec renders s as an expression the cron parser accepts.
func (s Spec) CronSpec() string {
	if s.Kind == KindInterval {
		return "@every " + s.Every.String()
	}
	return s.Cron
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule normalizes raw into a cron expression or a fixed interval.
func ParseSchedule(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	if strings.HasPrefix(low, "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return Spec{}, fmt.Errorf("cron expression required after 'cron:'")
		}
		return Spec{Kind: KindCron, Cron: expr, Source: "cron"}, nil
	}
	for _, p := range []string{"interval:", "every:"} {
		if strings.HasPrefix(low, p) {
			d, src, err := parseInterval(s[len(p):])
			if err != nil {
				return Spec{}, err
			}
			return Spec{Kind: KindInterval, Every: d, Source: src}, nil
		}
	}

	if strings.ContainsAny(s, " \t\r\n") || strings.HasPrefix(s, "@") {
		return Spec{Kind: KindCron, Cron: s, Source: "cron"}, nil
	}
	if d, src, err := parseInterval(s); err == nil {
		return Spec{Kind: KindInterval, Every: d, Source: src}, nil
	} else if reHHMM.MatchString(s) {
		return Spec{}, err
	}
	return Spec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', or a duration like '55m')",
		raw,
	)
}

func parseInterval(v string) (time.Duration, string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, "", fmt.Errorf("interval required")
	}
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, "", fmt.Errorf("invalid minutes in %q", v)
		}
		d := time.Duration(h)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return 0, "", fmt.Errorf("interval must be > 0")
		}
		return d, "hhmm", nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, "", fmt.Errorf("invalid interval %q (use HH:MM or a Go duration like '55m')", v)
	}
	if d <= 0 {
		return 0, "", fmt.Errorf("interval must be > 0")
	}
	return d, "duration", nil
}
