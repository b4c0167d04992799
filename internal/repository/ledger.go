package repository

import (
	"strings"

	"messbook/internal/models"
)

// entry is the last status a notification was accepted for.
type entry struct {
	status   models.Status
	terminal bool
}

// accept decides whether a new status may be notified after prev.
// Repeats are rejected, and nothing follows a terminal status.
func accept(prev entry, had bool, next models.Status) bool {
	if !had {
		return true
	}
	if prev.status == next {
		return false
	}
	return !prev.terminal
}

// encode/decode хранят статус как "t:confirmed" или "p:pending"
func encode(e entry) string {
	if e.terminal {
		return "t:" + string(e.status)
	}
	return "p:" + string(e.status)
}

func decode(raw string) (entry, bool) {
	prefix, status, ok := strings.Cut(raw, ":")
	if !ok || status == "" {
		return entry{}, false
	}
	switch prefix {
	case "t":
		return entry{status: models.Status(status), terminal: true}, true
	case "p":
		return entry{status: models.Status(status)}, true
	default:
		return entry{}, false
	}
}
