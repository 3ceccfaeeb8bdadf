package agent

import (
	"fmt"
	"sync"
)

// Verdict is the guard's decision for a proposed tool call.
type Verdict int

const (
	// VerdictAllow permits the call to reach the executor.
	VerdictAllow Verdict = iota

	// VerdictBlock rejects the call as a duplicate; the caller replays a
	// prior result instead of executing.
	VerdictBlock
)

// Guard tracks tool calls within a single turn scope and blocks exact
// repeats. Identity is (name, canonical arguments); a repeated capability
// with different arguments is not a duplicate. Capabilities registered as
// idempotent are never blocked.
//
// A Guard is created fresh for each turn scope and discarded when the turn
// completes. It is safe for concurrent use.
type Guard struct {
	mu       sync.Mutex
	seen     map[string]int            // call key -> occurrences
	byName   map[string]int            // capability name -> total occurrences
	distinct map[string]map[string]int // capability name -> canonical keys seen
	last     map[string]string         // call key -> most recent result content
	exempt   func(name string) bool
}

// NewGuard creates a turn-scoped guard. exempt reports whether a
// capability is idempotent; nil means no exemptions.
func NewGuard(exempt func(name string) bool) *Guard {
	if exempt == nil {
		exempt = func(string) bool { return false }
	}
	return &Guard{
		seen:     make(map[string]int),
		byName:   make(map[string]int),
		distinct: make(map[string]map[string]int),
		last:     make(map[string]string),
		exempt:   exempt,
	}
}

// Check records the proposed call and returns the verdict. The first
// occurrence of a key is allowed; later occurrences are blocked unless the
// capability is exempt.
func (g *Guard) Check(name string, key string) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.exempt(name) {
		return VerdictAllow
	}

	g.byName[name]++
	if g.distinct[name] == nil {
		g.distinct[name] = make(map[string]int)
	}
	g.distinct[name][key]++
	g.seen[key]++
	if g.seen[key] > 1 {
		return VerdictBlock
	}
	return VerdictAllow
}

// Record stores the result content for a key so later duplicates can
// replay it.
func (g *Guard) Record(key, content string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last[key] = content
}

// Replay returns the most recent result recorded for the key, if any.
func (g *Guard) Replay(key string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	content, ok := g.last[key]
	return content, ok
}

// RepeatedCapability reports whether any single capability shows runaway
// repetition in this turn scope. The turn loop uses this as its structural
// loop signal. Two triggers: the same capability requested with two or
// more distinct argument sets (the guard's exact-match check cannot catch
// trivially reworded requests), or three or more total requests for one
// capability. An exact duplicate pair alone does not trigger; it is
// resolved by blocking and replaying the prior result.
func (g *Guard) RepeatedCapability() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for name, n := range g.byName {
		if len(g.distinct[name]) > 1 || n > 2 {
			return name, true
		}
	}
	return "", false
}

// RedirectContent is the replacement result for a blocked duplicate with
// no prior result to replay.
func RedirectContent(name string) string {
	return fmt.Sprintf("The %s results were already retrieved this turn. Use the information above instead of calling %s again.", name, name)
}
