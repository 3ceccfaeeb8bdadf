package agent

import (
	"encoding/json"
	"strings"
	"testing"
)

func guardKey(name, args string) string {
	return CallKey(name, json.RawMessage(args))
}

func TestGuard_FirstOccurrenceAllowed(t *testing.T) {
	g := NewGuard(nil)
	if v := g.Check("search", guardKey("search", `{"q":"x"}`)); v != VerdictAllow {
		t.Errorf("first occurrence = %v, want allow", v)
	}
}

func TestGuard_ExactDuplicateBlocked(t *testing.T) {
	g := NewGuard(nil)
	key := guardKey("search", `{"q":"x"}`)
	g.Check("search", key)
	if v := g.Check("search", key); v != VerdictBlock {
		t.Errorf("second occurrence = %v, want block", v)
	}
}

func TestGuard_EquivalentArgsBlocked(t *testing.T) {
	g := NewGuard(nil)
	g.Check("search", guardKey("search", `{"a":1,"b":2}`))
	if v := g.Check("search", guardKey("search", `{ "b": 2, "a": 1 }`)); v != VerdictBlock {
		t.Errorf("reordered duplicate = %v, want block", v)
	}
}

func TestGuard_DifferentArgsAllowed(t *testing.T) {
	g := NewGuard(nil)
	g.Check("search", guardKey("search", `{"q":"x"}`))
	if v := g.Check("search", guardKey("search", `{"q":"y"}`)); v != VerdictAllow {
		t.Errorf("different arguments = %v, want allow", v)
	}
}

func TestGuard_ExemptNeverBlocked(t *testing.T) {
	g := NewGuard(func(name string) bool { return name == "format_output" })
	key := guardKey("format_output", `{"data":"x"}`)
	for i := 0; i < 5; i++ {
		if v := g.Check("format_output", key); v != VerdictAllow {
			t.Fatalf("exempt call %d = %v, want allow", i, v)
		}
	}
	if name, repeated := g.RepeatedCapability(); repeated {
		t.Errorf("exempt capability %q should not feed the loop signal", name)
	}
}

func TestGuard_LoopSignalOnDistinctArgs(t *testing.T) {
	g := NewGuard(nil)
	g.Check("search", guardKey("search", `{"q":"cats"}`))
	g.Check("search", guardKey("search", `{"q":"felines"}`))
	name, repeated := g.RepeatedCapability()
	if !repeated || name != "search" {
		t.Errorf("two distinct-arg requests: got (%q, %t), want (search, true)", name, repeated)
	}
}

func TestGuard_NoSignalOnSingleDuplicatePair(t *testing.T) {
	g := NewGuard(nil)
	key := guardKey("search", `{"q":"x"}`)
	g.Check("search", key)
	g.Check("search", key)
	if _, repeated := g.RepeatedCapability(); repeated {
		t.Error("an exact duplicate pair alone should block and replay, not signal")
	}
}

func TestGuard_SignalOnThirdIdenticalRequest(t *testing.T) {
	g := NewGuard(nil)
	key := guardKey("search", `{"q":"x"}`)
	g.Check("search", key)
	g.Check("search", key)
	g.Check("search", key)
	if _, repeated := g.RepeatedCapability(); !repeated {
		t.Error("three identical requests should trigger the loop signal")
	}
}

func TestGuard_ReplayRoundTrip(t *testing.T) {
	g := NewGuard(nil)
	key := guardKey("search", `{"q":"x"}`)

	if _, ok := g.Replay(key); ok {
		t.Error("replay before any record should report nothing")
	}
	g.Record(key, "first result")
	g.Record(key, "second result")
	content, ok := g.Replay(key)
	if !ok || content != "second result" {
		t.Errorf("replay = (%q, %t), want most recent record", content, ok)
	}
}

func TestGuard_IndependentCapabilities(t *testing.T) {
	g := NewGuard(nil)
	g.Check("search", guardKey("search", `{"q":"x"}`))
	if v := g.Check("life_event", guardKey("life_event", `{"q":"x"}`)); v != VerdictAllow {
		t.Errorf("same args under a different capability = %v, want allow", v)
	}
}

func TestRedirectContent(t *testing.T) {
	content := RedirectContent("web_search")
	if !strings.Contains(content, "web_search") {
		t.Errorf("redirect should name the capability: %q", content)
	}
	if !strings.Contains(content, "already retrieved") {
		t.Errorf("redirect should say results were already retrieved: %q", content)
	}
}
