// Package featureflags evaluates the rollout switches configured through
// FEATURE_FLAGS, for example "top_posts_cache=on,realtime_events=25%".
package featureflags

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// Flag names a switch the application reads.
type Flag string

const (
	// TopPostsCache caches ranked post IDs in Redis.
	TopPostsCache Flag = "top_posts_cache"
	// RealtimeEvents pushes notification events to websocket clients.
	RealtimeEvents Flag = "realtime_events"
)

// Rule is the share of users a flag is on for. 0 is off and 100 is on for everyone.
type Rule struct {
	Percent int
}

var (
	Off = Rule{Percent: 0}
	On  = Rule{Percent: 100}
)

// Defaults apply to known flags that FEATURE_FLAGS leaves out.
var Defaults = map[Flag]Rule{
	TopPostsCache:  Off,
	RealtimeEvents: On,
}

func (r Rule) String() string {
	switch {
	case r.Percent <= 0:
		return "off"
	case r.Percent >= 100:
		return "on"
	default:
		return fmt.Sprintf("%d%%", r.Percent)
	}
}

// ParseRule accepts on/true/1, off/false/0 and N% with N in 0..100.
func ParseRule(value string) (Rule, error) {
	value = normalize(value)
	switch value {
	case "on", "true", "1":
		return On, nil
	case "off", "false", "0":
		return Off, nil
	}
	pct, ok := strings.CutSuffix(value, "%")
	if !ok {
		return Rule{}, fmt.Errorf("unknown flag value %q", value)
	}
	n, err := strconv.Atoi(strings.TrimSpace(pct))
	if err != nil || n < 0 || n > 100 {
		return Rule{}, fmt.Errorf("rollout %q is not a percentage from 0 to 100", value)
	}
	return Rule{Percent: n}, nil
}

// Manager holds the effective rule of every flag.
type Manager struct {
	rules map[Flag]Rule
}

// NewManager layers the comma-separated config over Defaults. Malformed
// entries are logged and skipped.
func NewManager(raw string) *Manager {
	rules := make(map[Flag]Rule, len(Defaults))
	for flag, rule := range Defaults {
		rules[flag] = rule
	}

	for _, pair := range strings.Split(raw, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		name = normalize(name)
		if !ok || name == "" {
			slog.Warn("ignoring feature flag entry", slog.String("entry", pair))
			continue
		}
		rule, err := ParseRule(value)
		if err != nil {
			slog.Warn("ignoring feature flag", slog.String("flag", name), slog.String("error", err.Error()))
			continue
		}
		rules[Flag(name)] = rule
	}

	return &Manager{rules: rules}
}

func (m *Manager) rule(flag Flag) (Rule, bool) {
	if m == nil {
		rule, ok := Defaults[flag]
		return rule, ok
	}
	rule, ok := m.rules[flag]
	return rule, ok
}

// Enabled reports whether flag is on for userID. Partial rollouts are
// deterministic per user and stay off for anonymous callers. A nil Manager
// evaluates Defaults.
func (m *Manager) Enabled(flag Flag, userID uint) bool {
	rule, ok := m.rule(flag)
	if !ok {
		return false
	}
	switch {
	case rule.Percent <= 0:
		return false
	case rule.Percent >= 100:
		return true
	case userID == 0:
		return false
	}
	return rolloutBucket(flag, userID) < rule.Percent
}

// Flags lists every flag with a rule, sorted by name.
func (m *Manager) Flags() []Flag {
	source := Defaults
	if m != nil {
		source = m.rules
	}
	flags := make([]Flag, 0, len(source))
	for flag := range source {
		flags = append(flags, flag)
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i] < flags[j] })
	return flags
}

// Rules renders the effective rules in config syntax.
func (m *Manager) Rules() map[string]string {
	flags := m.Flags()
	out := make(map[string]string, len(flags))
	for _, flag := range flags {
		rule, _ := m.rule(flag)
		out[string(flag)] = rule.String()
	}
	return out
}

// Snapshot evaluates every flag for one user.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	flags := m.Flags()
	out := make(map[string]bool, len(flags))
	for _, flag := range flags {
		out[string(flag)] = m.Enabled(flag, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(flag Flag, userID uint) int {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%s:%d", flag, userID)
	return int(h.Sum32() % 100)
}
