// Package featureflags evaluates runtime switches for optional lifecycle rules.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

// Flags read by the lifecycle engine.
const (
	// RequireApprovedPhoto makes in_progress -> done wait for at least one approved proof photo.
	RequireApprovedPhoto = "require_approved_photo"
	// ClaimReaper lets the background reaper cancel claims that were never started.
	ClaimReaper = "claim_reaper"
)

// Known lists the flags the service reads, with their value when unset.
var Known = map[string]bool{
	RequireApprovedPhoto: false,
	ClaimReaper:          true,
}

// Manager evaluates feature flags defined in a simple key=value list.
// Example: "require_approved_photo=on,claim_reaper=off"
type Manager struct {
	flags map[string]string
}

// NewManager creates a feature-flag manager from a comma-separated config string.
func NewManager(raw string) *Manager {
	out := make(map[string]string)

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := normalize(parts[0])
		value := normalize(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}

	return &Manager{flags: out}
}

// Enabled returns whether a flag is enabled for a given user. Unset flags fall
// back to their entry in Known.
// Supported values:
// - on/true/1
// - off/false/0
// - N% (deterministic user rollout, e.g. 25%)
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return Known[normalize(name)]
	}

	value, ok := m.flags[normalize(name)]
	if !ok {
		return Known[normalize(name)]
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	if strings.HasSuffix(value, "%") {
		pctRaw := strings.TrimSuffix(value, "%")
		pct, err := strconv.Atoi(pctRaw)
		if err != nil {
			return false
		}
		if pct <= 0 {
			return false
		}
		if pct >= 100 {
			return true
		}
		if userID == 0 {
			return false
		}
		return rolloutBucket(name, userID) < pct
	}

	return false
}

// Raw returns a copy of configured flags.
func (m *Manager) Raw() map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m.flags))
	for k, v := range m.flags {
		out[k] = v
	}
	return out
}

// Snapshot returns evaluated flag status for one user, including unset known flags.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool, len(m.flags)+len(Known))
	for name := range Known {
		out[name] = m.Enabled(name, userID)
	}
	if m == nil {
		return out
	}
	for name := range m.flags {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

// Global reports a flag that is not evaluated per user. Percentage rollouts
// count as off.
func (m *Manager) Global(name string) bool {
	return m.Enabled(name, 0)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fmt.Sprintf("%s:%d", normalize(name), userID)))
	return int(h.Sum32() % 100)
}
