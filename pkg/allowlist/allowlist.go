// Package allowlist gates which upstream control-panel actions the gateway may trigger.
package allowlist

import (
	"sort"
	"strings"
)

// DefaultActions are the WHM actions enabled when configuration does not name any.
var DefaultActions = []string{"listaccts", "accountsummary", "createacct", "suspendacct"}

// List is an immutable set of permitted action names.
type List struct {
	actions map[string]struct{}
}

// New builds a List. Names are trimmed and lowercased; empty names are ignored.
func New(actions ...string) *List {
	l := &List{actions: make(map[string]struct{}, len(actions))}
	for _, a := range actions {
		if a = normalize(a); a != "" {
			l.actions[a] = struct{}{}
		}
	}
	return l
}

// IsAllowed reports whether action may be forwarded upstream.
func (l *List) IsAllowed(action string) bool {
	if l == nil {
		return false
	}
	_, ok := l.actions[normalize(action)]
	return ok
}

// Actions returns the permitted actions in sorted order.
func (l *List) Actions() []string {
	out := make([]string, 0, len(l.actions))
	for a := range l.actions {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func normalize(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}
