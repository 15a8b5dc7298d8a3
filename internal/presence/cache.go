// Package presence polls the collector for agents' last known locations and
// republishes them to live-map subscribers.
package presence

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"example.com/fieldpresence/internal/domain"
)

// DefaultMaxAgents bounds the presence cache when no size is configured.
const DefaultMaxAgents = 1000

// Snapshot is an immutable view of the presence cache, sorted by agent id.
type Snapshot struct {
	Records     []domain.PresenceRecord `json:"agents"`
	RefreshedAt time.Time               `json:"refreshed_at"`
}

// Get returns the record for agentID, if cached.
func (s Snapshot) Get(agentID string) (domain.PresenceRecord, bool) {
	i := sort.Search(len(s.Records), func(i int) bool { return s.Records[i].AgentID >= agentID })
	if i < len(s.Records) && s.Records[i].AgentID == agentID {
		return s.Records[i], true
	}
	return domain.PresenceRecord{}, false
}

// Len returns the number of cached agents.
func (s Snapshot) Len() int {
	return len(s.Records)
}

// Cache holds at most one PresenceRecord per agent. Writers build a new
// snapshot and swap it in; readers never observe a partial update.
type Cache struct {
	maxAgents int
	mu        sync.Mutex
	current   atomic.Pointer[Snapshot]
}

// NewCache constructs a Cache holding at most maxAgents records.
func NewCache(maxAgents int) *Cache {
	if maxAgents <= 0 {
		maxAgents = DefaultMaxAgents
	}
	c := &Cache{maxAgents: maxAgents}
	c.current.Store(&Snapshot{})
	return c
}

// Snapshot returns the current view.
func (c *Cache) Snapshot() Snapshot {
	return *c.current.Load()
}

// ReplaceAll discards every cached record and installs records.
func (c *Cache) ReplaceAll(records []domain.PresenceRecord, at time.Time) Snapshot {
	byAgent := make(map[string]domain.PresenceRecord, len(records))
	for _, rec := range records {
		if rec.AgentID == "" {
			continue
		}
		if prev, ok := byAgent[rec.AgentID]; ok && prev.LastSeenAt.After(rec.LastSeenAt) {
			continue
		}
		byAgent[rec.AgentID] = rec
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storeLocked(byAgent, at)
}

// Put replaces the record for one agent.
func (c *Cache) Put(rec domain.PresenceRecord, at time.Time) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.current.Load()
	byAgent := make(map[string]domain.PresenceRecord, len(prev.Records)+1)
	for _, r := range prev.Records {
		byAgent[r.AgentID] = r
	}
	byAgent[rec.AgentID] = rec
	return c.storeLocked(byAgent, at)
}

// PutIfNewer replaces the record for one agent unless the cached record is
// more recent. It reports whether the cache changed.
func (c *Cache) PutIfNewer(rec domain.PresenceRecord, at time.Time) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.current.Load()
	if cached, ok := prev.Get(rec.AgentID); ok && !rec.LastSeenAt.After(cached.LastSeenAt) {
		return *prev, false
	}
	byAgent := make(map[string]domain.PresenceRecord, len(prev.Records)+1)
	for _, r := range prev.Records {
		byAgent[r.AgentID] = r
	}
	byAgent[rec.AgentID] = rec
	return c.storeLocked(byAgent, at), true
}

func (c *Cache) storeLocked(byAgent map[string]domain.PresenceRecord, at time.Time) Snapshot {
	records := make([]domain.PresenceRecord, 0, len(byAgent))
	for _, r := range byAgent {
		records = append(records, r)
	}

	if len(records) > c.maxAgents {
		// Evict the stalest agents first.
		sort.Slice(records, func(i, j int) bool {
			if records[i].LastSeenAt.Equal(records[j].LastSeenAt) {
				return records[i].AgentID < records[j].AgentID
			}
			return records[i].LastSeenAt.After(records[j].LastSeenAt)
		})
		evictedCounter.Add(float64(len(records) - c.maxAgents))
		records = records[:c.maxAgents]
	}

	sort.Slice(records, func(i, j int) bool { return records[i].AgentID < records[j].AgentID })
	snap := &Snapshot{Records: records, RefreshedAt: at.UTC()}
	c.current.Store(snap)
	cacheSizeGauge.Set(float64(len(records)))
	return *snap
}
