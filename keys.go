package actionsync

import "time"

// pairKey records that observer has learned observed's freshness timestamp,
// either directly or through gossip. A_B and B_A are different keys.
type pairKey struct {
	observer string
	observed string
}

func (k pairKey) String() string {
	return k.observer + "_" + k.observed
}

type keySet map[pairKey]struct{}

// requiredKeys returns every key that must be fresh in the ledger before self
// may consider the group {self, others...} in agreement: self_o for each
// other, o_self for each other, and o_p for each ordered pair of distinct
// others. For n distinct others that is 2n + n(n-1) keys.
// Duplicates and self are ignored in others.
func requiredKeys(self string, others []string) keySet {
	peers := distinctPeers(self, others)
	keys := make(keySet, 2*len(peers)+len(peers)*(len(peers)-1))
	for _, o := range peers {
		keys[pairKey{self, o}] = struct{}{}
		keys[pairKey{o, self}] = struct{}{}
		for _, p := range peers {
			if p != o {
				keys[pairKey{o, p}] = struct{}{}
			}
		}
	}
	return keys
}

// ackKeys returns the keys showing that each recipient acknowledged to self.
func ackKeys(self string, recipients []string) keySet {
	peers := distinctPeers(self, recipients)
	keys := make(keySet, len(peers))
	for _, r := range peers {
		keys[pairKey{self, r}] = struct{}{}
	}
	return keys
}

func distinctPeers(self string, actors []string) []string {
	seen := make(map[string]struct{}, len(actors))
	peers := make([]string, 0, len(actors))
	for _, a := range actors {
		if a == "" || a == self {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		peers = append(peers, a)
	}
	return peers
}

// complete reports whether every required key is present in stamps and was
// refreshed less than timeout before now. A key that has gone stale counts
// the same as a missing one.
func complete(stamps map[pairKey]int64, required keySet, nowMs int64, timeout time.Duration) bool {
	window := timeout.Milliseconds()
	for k := range required {
		ts, ok := stamps[k]
		if !ok || nowMs-ts >= window {
			return false
		}
	}
	return true
}

// missingKeys lists the required keys that complete would reject.
func missingKeys(stamps map[pairKey]int64, required keySet, nowMs int64, timeout time.Duration) []pairKey {
	window := timeout.Milliseconds()
	var missing []pairKey
	for k := range required {
		if ts, ok := stamps[k]; !ok || nowMs-ts >= window {
			missing = append(missing, k)
		}
	}
	return missing
}
