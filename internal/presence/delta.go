package presence

import (
	"sync"
	"time"

	"example.com/fieldpresence/internal/domain"
)

// changeSet remembers the last sample time forwarded per agent so external
// sinks only receive records that moved forward.
type changeSet struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newChangeSet() *changeSet {
	return &changeSet{seen: make(map[string]time.Time)}
}

func (c *changeSet) pending(snap Snapshot) []domain.PresenceRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []domain.PresenceRecord
	for _, rec := range snap.Records {
		if last, ok := c.seen[rec.AgentID]; ok && !rec.LastSeenAt.After(last) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (c *changeSet) commit(records []domain.PresenceRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range records {
		c.seen[rec.AgentID] = rec.LastSeenAt
	}
}
