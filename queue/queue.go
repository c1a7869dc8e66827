// Package queue derives queue positions and occupancy from snapshots of the membership collection and
// implements joining and leaving a queue.
package queue

import (
	"time"

	"queueserver/collections"
)

// DefaultQueueType is selected when a membership view starts, and is assumed for records
// written without a queue type.
const DefaultQueueType = "tech-support"

// Definition describes one of the fixed queues.
type Definition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Item is a queue definition together with its derived occupancy.
type Item struct {
	Definition
	UserCount int `json:"userCount"`
}

var definitions = []Definition{
	{ID: "tech-support", Name: "Technical Support", Description: "Get help with technical issues"},
	{ID: "customer-service", Name: "Customer Service", Description: "General customer service inquiries"},
	{ID: "sales", Name: "Sales Department", Description: "Speak with our sales team"},
	{ID: "returns", Name: "Returns and Refunds", Description: "Process returns or refunds"},
}

// Definitions returns the configured queues in display order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Lookup returns the definition for id.
func Lookup(id string) (Definition, bool) {
	for _, d := range definitions {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// Member is a membership record with its derived position.
type Member struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	UserEmail string    `json:"userEmail"`
	JoinedAt  time.Time `json:"joinedAt"`
	QueueType string    `json:"queueType"`
	Position  int       `json:"position"`
}

// View is the state derived from one snapshot of the membership collection.
type View struct {
	members []Member
	counts  map[string]int
}

// BuildView folds a snapshot, ordered by join time ascending, into a View. Each record's position is
// one more than the number of records of the same queue type before it.
func BuildView(entries []collections.QueueEntry) View {
	v := View{
		members: make([]Member, 0, len(entries)),
		counts:  make(map[string]int),
	}
	for _, e := range entries {
		queueType := e.QueueType
		if queueType == "" {
			queueType = DefaultQueueType
		}
		v.counts[queueType]++
		v.members = append(v.members, Member{
			ID:        e.ID,
			UserID:    e.UserID,
			UserName:  e.UserName,
			UserEmail: e.UserEmail,
			JoinedAt:  e.JoinedAt,
			QueueType: queueType,
			Position:  v.counts[queueType],
		})
	}
	return v
}

// loaded reports whether v was built from a snapshot.
func (v View) loaded() bool {
	return v.counts != nil
}

// Members returns every positioned record in snapshot order.
func (v View) Members() []Member {
	out := make([]Member, len(v.members))
	copy(out, v.members)
	return out
}

// Roster returns the members of one queue in position order.
func (v View) Roster(queueType string) []Member {
	out := []Member{}
	for _, m := range v.members {
		if m.QueueType == queueType {
			out = append(out, m)
		}
	}
	return out
}

// Find returns the record of userID in queueType.
func (v View) Find(userID, queueType string) (Member, bool) {
	for _, m := range v.members {
		if m.UserID == userID && m.QueueType == queueType {
			return m, true
		}
	}
	return Member{}, false
}

// Position gives the 1-based position of userID in queueType, or 0 when the user isn't in it.
func (v View) Position(userID, queueType string) int {
	m, ok := v.Find(userID, queueType)
	if !ok {
		return 0
	}
	return m.Position
}

// Length gives the number of members in queueType.
func (v View) Length(queueType string) int {
	return v.counts[queueType]
}

// Items returns the configured queues with their current occupancy.
func (v View) Items() []Item {
	items := make([]Item, 0, len(definitions))
	for _, d := range definitions {
		items = append(items, Item{Definition: d, UserCount: v.counts[d.ID]})
	}
	return items
}
