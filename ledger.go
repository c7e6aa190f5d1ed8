package actionsync

import (
	"sync"
	"time"
)

// ledgerEntry is the table of pair-key stamps held for one token.
type ledgerEntry struct {
	stamps  map[pairKey]int64
	touched time.Time
}

// ledger maps scoped tokens to the freshness stamps this process has learned.
// It is shared by broadcasters, pollers and the inbound loop; a single mutex
// guards the whole table and is never held across a publish or a sleep.
//
// A token whose wait has finished is retired: writes to it are ignored until
// a new wait seeds it again or the sweep forgets the retirement. Peers keep
// gossiping for a while after we stop listening, and that traffic must not
// recreate the entry.
type ledger struct {
	mu      sync.Mutex
	entries map[string]*ledgerEntry
	retired map[string]time.Time
	now     func() time.Time
}

func newLedger(now func() time.Time) *ledger {
	return &ledger{
		entries: make(map[string]*ledgerEntry),
		retired: make(map[string]time.Time),
		now:     now,
	}
}

func (l *ledger) entryLocked(token string) *ledgerEntry {
	e, ok := l.entries[token]
	if !ok {
		e = &ledgerEntry{stamps: make(map[pairKey]int64)}
		l.entries[token] = e
	}
	e.touched = l.now()
	return e
}

// upsert stores ts for key, replacing whatever was there. The source is
// authoritative for that key, so an older value still wins; readers judge
// freshness against the clock, not against previous writes.
func (l *ledger) upsert(token string, key pairKey, ts int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.retired[token]; ok {
		return
	}
	l.entryLocked(token).stamps[key] = ts
}

// merge stores ts for key only if it is newer than the stored value. It
// returns whether the ledger changed.
func (l *ledger) merge(token string, key pairKey, ts int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.retired[token]; ok {
		return false
	}
	e := l.entryLocked(token)
	if cur, ok := e.stamps[key]; ok && cur >= ts {
		return false
	}
	e.stamps[key] = ts
	return true
}

// seed creates the entry for token with the self_self placeholder so that a
// freshly started wait never sees its own token as absent. It lifts a
// retirement.
func (l *ledger) seed(token, self string, ts int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.retired, token)
	e := l.entryLocked(token)
	if _, ok := e.stamps[pairKey{self, self}]; !ok {
		e.stamps[pairKey{self, self}] = ts
	}
}

// snapshot returns a copy of the stamps for token, and false if the token has
// no entry.
func (l *ledger) snapshot(token string) (map[pairKey]int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[token]
	if !ok {
		return nil, false
	}
	out := make(map[pairKey]int64, len(e.stamps))
	for k, v := range e.stamps {
		out[k] = v
	}
	return out, true
}

// erase removes the entry for token, retires the token, and reports whether
// an entry existed.
func (l *ledger) erase(token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[token]
	delete(l.entries, token)
	l.retired[token] = l.now()
	return ok
}

// sweep erases entries untouched since cutoff for which keep returns false,
// and returns the erased tokens. Retirements older than cutoff are forgotten.
func (l *ledger) sweep(cutoff time.Time, keep func(token string) bool) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	for token, at := range l.retired {
		if at.Before(cutoff) {
			delete(l.retired, token)
		}
	}
	var erased []string
	for token, e := range l.entries {
		if e.touched.Before(cutoff) && !keep(token) {
			delete(l.entries, token)
			erased = append(erased, token)
		}
	}
	return erased
}

func (l *ledger) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
