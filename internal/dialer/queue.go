// Package dialer runs a power-dialer queue: one lead-first call at a time, advanced by
// call-session changes from the live feed.
package dialer

import (
	"strings"

	"voice-orchestrator/internal/calls"
)

// Lead is a dialable contact as exported from the CRM.
type Lead struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Phone string `yaml:"phone" json:"phone"`
	State string `yaml:"state" json:"state"`
	Stage string `yaml:"stage" json:"stage"`
}

type ItemStatus string

const (
	ItemQueued    ItemStatus = "queued"
	ItemDialing   ItemStatus = "dialing"
	ItemRinging   ItemStatus = "ringing"
	ItemAnswered  ItemStatus = "answered"
	ItemBridged   ItemStatus = "bridged"
	ItemCompleted ItemStatus = "completed"
	ItemFailed    ItemStatus = "failed"
)

func (s ItemStatus) Terminal() bool {
	return s == ItemCompleted || s == ItemFailed
}

// itemStatusOf maps a session status onto the queue item's status.
func itemStatusOf(s calls.Status) (ItemStatus, bool) {
	switch s {
	case calls.StatusRinging:
		return ItemRinging, true
	case calls.StatusAnswered:
		return ItemAnswered, true
	case calls.StatusBridged:
		return ItemBridged, true
	case calls.StatusCompleted:
		return ItemCompleted, true
	case calls.StatusFailed:
		return ItemFailed, true
	}
	return "", false
}

// Item is one lead in the queue.
type Item struct {
	LeadID    string     `json:"lead_id"`
	Name      string     `json:"name,omitempty"`
	Phone     string     `json:"phone"`
	Attempts  int        `json:"attempts"`
	Status    ItemStatus `json:"status"`
	LegID     string     `json:"leg_id,omitempty"`
	LastError string     `json:"last_error,omitempty"`

	// Unconfirmed marks a failed start whose request may still have reached the
	// provider. The operator decides whether to call the lead again.
	Unconfirmed bool `json:"unconfirmed,omitempty"`
}

// BuildQueue keeps leads with a phone whose state and stage are in the given sets.
// An empty set matches everything. Comparison ignores case.
func BuildQueue(leads []Lead, states, stages []string) []Item {
	stateSet := toSet(states)
	stageSet := toSet(stages)

	items := make([]Item, 0, len(leads))
	for _, l := range leads {
		phone := strings.TrimSpace(l.Phone)
		if phone == "" {
			continue
		}
		if !inSet(stateSet, l.State) || !inSet(stageSet, l.Stage) {
			continue
		}
		items = append(items, Item{
			LeadID: l.ID,
			Name:   l.Name,
			Phone:  phone,
			Status: ItemQueued,
		})
	}
	return items
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func inSet(set map[string]struct{}, v string) bool {
	if len(set) == 0 {
		return true
	}
	_, ok := set[strings.ToLower(strings.TrimSpace(v))]
	return ok
}
