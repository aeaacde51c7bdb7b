package trigger

import "testing"

func TestTerminationWithoutSession(t *testing.T) {
	tr := NewTermination()
	res := tr.Evaluate(Input{Time: 1, Neighbors: []Neighbor{neighbor(1, 10, false, false)}}, TerminationState{Signals: map[int]bool{1: true}}, true)
	if res.Send || res.State != nil {
		t.Fatalf("expected nothing without a session, got %+v", res)
	}
}

func TestTerminationFallingEdge(t *testing.T) {
	tr := NewTermination()
	store := NewStore()
	k := Key{StationID: 100, Kind: tr.Kind()}
	eval := func(now float64, ns ...Neighbor) Result {
		prev, ok := store.Get(k)
		res := tr.Evaluate(Input{Time: now, Neighbors: ns, Session: []int{1, 2}}, prev, ok)
		if res.State != nil {
			store.Put(k, res.State)
		}
		return res
	}
	if eval(1, neighbor(1, 10, true, false), neighbor(2, 10, false, false)).Send {
		t.Fatalf("no falling edge yet")
	}
	if eval(1.1, neighbor(1, 10, true, false), neighbor(2, 10, false, false)).Send {
		t.Fatalf("signal still on")
	}
	res := eval(1.2, neighbor(1, 10, false, false), neighbor(2, 10, false, false))
	if !res.Send || res.Completed != 1 {
		t.Fatalf("expected termination by 1, got %+v", res)
	}
	sig := res.State.(TerminationState).Signals
	if sig[1] || sig[2] {
		t.Fatalf("history must reflect current signals: %v", sig)
	}
}

func TestTerminationIgnoresNonMembers(t *testing.T) {
	tr := NewTermination()
	prev := TerminationState{Signals: map[int]bool{5: true}}
	res := tr.Evaluate(Input{Time: 2, Neighbors: []Neighbor{neighbor(5, 10, false, false)}, Session: []int{1}}, prev, true)
	if res.Send {
		t.Fatalf("vehicle 5 is not a session member")
	}
	if _, ok := res.State.(TerminationState).Signals[5]; !ok {
		t.Fatalf("non-members are still tracked")
	}
}

func TestPeriodic(t *testing.T) {
	p := NewPeriodic("cam", 1.0)
	res := p.Evaluate(Input{Time: 0.1}, nil, false)
	if !res.Send {
		t.Fatalf("first broadcast must go out")
	}
	if p.Evaluate(Input{Time: 0.6}, res.State, true).Send {
		t.Fatalf("interval not elapsed")
	}
	if !p.Evaluate(Input{Time: 1.1}, res.State, true).Send {
		t.Fatalf("interval elapsed")
	}
}

func TestStoreDropStation(t *testing.T) {
	s := NewStore()
	s.Put(Key{StationID: 1, Kind: "cam"}, CAMState{})
	s.Put(Key{StationID: 1, Kind: "mcm_request"}, ConflictState{})
	s.Put(Key{StationID: 2, Kind: "cam"}, CAMState{})
	if n := s.DropStation(1); n != 2 {
		t.Fatalf("expected 2 dropped, got %d", n)
	}
	if _, ok := s.Get(Key{StationID: 1, Kind: "cam"}); ok {
		t.Fatalf("state must be gone")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 remaining, got %d", s.Len())
	}
}
