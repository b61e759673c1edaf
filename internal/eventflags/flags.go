// Package eventflags reads the global live/event switches that modify draws.
//
// The flags live in one Redis hash:
//
//	is_live          "true" | "false"
//	luck_multiplier  positive float
//	event:<name>     RFC3339 end time
package eventflags

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jensholdgaard/gachabot/internal/config"
)

const (
	fieldLive   = "is_live"
	fieldLuck   = "luck_multiplier"
	eventPrefix = "event:"
)

// Flags is a snapshot of the global switches.
type Flags struct {
	Live           bool
	LuckMultiplier float64
	Events         map[string]time.Time
}

// Defaults returns the flags used when nothing is configured.
func Defaults() Flags {
	return Flags{LuckMultiplier: 1}
}

// EventActive reports whether the named event runs at now.
func (f Flags) EventActive(name string, now time.Time) bool {
	until, ok := f.Events[name]
	return ok && now.Before(until)
}

// ActiveEvents returns the names of events running at now, sorted.
func (f Flags) ActiveEvents(now time.Time) []string {
	var out []string
	for name := range f.Events {
		if f.EventActive(name, now) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Source provides the current flags.
type Source interface {
	Flags(ctx context.Context) (Flags, error)
}

// Parse decodes the fields of the flag hash. Unknown fields are ignored.
func Parse(fields map[string]string) (Flags, error) {
	f := Defaults()
	var errs []string

	if v, ok := fields[fieldLive]; ok {
		live, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q", fieldLive, v))
		}
		f.Live = live
	}
	if v, ok := fields[fieldLuck]; ok {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil || m <= 0 {
			errs = append(errs, fmt.Sprintf("%s: %q", fieldLuck, v))
		} else {
			f.LuckMultiplier = m
		}
	}
	for k, v := range fields {
		name, ok := strings.CutPrefix(k, eventPrefix)
		if !ok {
			continue
		}
		until, err := time.Parse(time.RFC3339, v)
		if err != nil || name == "" {
			errs = append(errs, fmt.Sprintf("%s: %q", k, v))
			continue
		}
		if f.Events == nil {
			f.Events = make(map[string]time.Time)
		}
		f.Events[name] = until
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return f, fmt.Errorf("invalid flag fields: %s", strings.Join(errs, "; "))
	}
	return f, nil
}

// Static serves flags fixed at startup.
type Static struct {
	flags Flags
}

// NewStatic returns a Static source from configuration.
func NewStatic(cfg config.StaticFlagsConfig) *Static {
	f := Defaults()
	f.Live = cfg.Live
	if cfg.LuckMultiplier > 0 {
		f.LuckMultiplier = cfg.LuckMultiplier
	}
	if len(cfg.Events) > 0 {
		f.Events = make(map[string]time.Time, len(cfg.Events))
		for k, v := range cfg.Events {
			f.Events[k] = v
		}
	}
	return &Static{flags: f}
}

// Flags implements Source.
func (s *Static) Flags(context.Context) (Flags, error) {
	return s.flags, nil
}
