// Package ratelimit caps how often a user or address may perform an action.
// Each action has a burst window (short, generous) and a sustained window
// (long, strict); both are counted per user and per IP.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/apperr"
)

var ErrRateLimited = apperr.Validation("rate_limited", "too many requests, slow down")

// Window is a fixed counting window.
type Window struct {
	Limit  int64         `yaml:"limit"`
	Period time.Duration `yaml:"period"`
}

func (w Window) enabled() bool { return w.Limit > 0 && w.Period > 0 }

// Rule limits one action.
type Rule struct {
	Burst     Window `yaml:"burst"`
	Sustained Window `yaml:"sustained"`
}

// DefaultRule applies to actions without a rule of their own.
var DefaultRule = Rule{
	Burst:     Window{Limit: 20, Period: time.Second},
	Sustained: Window{Limit: 300, Period: time.Minute},
}

// Decision is the outcome of Allow.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Window     string
}

// Limiter checks actions against their rules. Store failures let the action
// through.
type Limiter struct {
	store    Store
	clk      clockwork.Clock
	rules    map[string]Rule
	fallback Rule
}

// New creates a limiter. Actions missing from rules use DefaultRule.
func New(store Store, clk clockwork.Clock, rules map[string]Rule) *Limiter {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if rules == nil {
		rules = map[string]Rule{}
	}
	return &Limiter{store: store, clk: clk, rules: rules, fallback: DefaultRule}
}

func (l *Limiter) rule(action string) Rule {
	if r, ok := l.rules[action]; ok {
		return r
	}
	return l.fallback
}

// Allow counts one hit of action for userID and ip. Either may be empty.
func (l *Limiter) Allow(ctx context.Context, action, userID, ip string) Decision {
	r := l.rule(action)
	now := l.clk.Now()

	var subjects []string
	if userID != "" {
		subjects = append(subjects, "user:"+userID)
	}
	if ip != "" {
		subjects = append(subjects, "ip:"+ip)
	}

	for _, named := range []struct {
		name string
		w    Window
	}{{"burst", r.Burst}, {"sustained", r.Sustained}} {
		if !named.w.enabled() {
			continue
		}
		slot := now.UnixNano() / int64(named.w.Period)
		for _, subject := range subjects {
			key := fmt.Sprintf("%s:%s:%s:%d", action, subject, named.name, slot)
			count, err := l.store.Incr(ctx, key, named.w.Period)
			if err != nil {
				log.Warn().Err(err).Str("action", action).Msg("rate limit store unavailable, allowing")
				return Decision{Allowed: true}
			}
			if count > named.w.Limit {
				next := time.Unix(0, (slot+1)*int64(named.w.Period))
				log.Debug().
					Str("action", action).
					Str("subject", subject).
					Str("window", named.name).
					Int64("count", count).
					Msg("rate limited")
				return Decision{Allowed: false, RetryAfter: next.Sub(now), Window: named.name}
			}
		}
	}
	return Decision{Allowed: true}
}
