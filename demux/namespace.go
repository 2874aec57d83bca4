package demux

import (
	"strings"

	"github.com/hupe1980/captain/core"
)

// Attribution is the outcome of classifying a raw item's namespace.
type Attribution struct {
	// SubAgent is true when the item is attributed to a sub-agent.
	SubAgent bool
	// Key is the correlation key ("task:<id>") found in the namespace, if any.
	Key string
	// Name is the tracked sub-agent name. Empty for root items.
	Name string
}

// Root reports whether the item belongs to the root agent.
func (a Attribution) Root() bool { return !a.SubAgent }

// CorrelationKey returns the first namespace segment shaped "task:<id>".
func CorrelationKey(ns []string) (string, bool) {
	for _, seg := range ns {
		if strings.HasPrefix(seg, core.TaskSegmentPrefix) && len(seg) > len(core.TaskSegmentPrefix) {
			return seg, true
		}
	}
	return "", false
}

// Classify attributes a namespace to the root agent or to a sub-agent.
//
// An empty namespace is always root. Otherwise the first "task:<id>" segment
// wins and is resolved through the tracker; when no segment matches or the
// key is unknown, the currently active sub-agent is used. Only when no
// sub-agent context exists at all does the item degrade to root. With two
// sibling delegations active at once the fallback attributes to whichever
// started last.
func Classify(ns []string, tracker *Tracker) Attribution {
	if len(ns) == 0 {
		return Attribution{}
	}
	key, ok := CorrelationKey(ns)
	if ok {
		if name, found := tracker.Lookup(key); found {
			return Attribution{SubAgent: true, Key: key, Name: name}
		}
	}
	if active, found := tracker.Active(); found {
		return Attribution{SubAgent: true, Key: key, Name: active}
	}
	return Attribution{Key: key}
}
