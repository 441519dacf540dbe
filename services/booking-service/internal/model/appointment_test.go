package model

import "testing"

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusScheduled, StatusCompleted, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusScheduled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusScheduled, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusCancelled, StatusCompleted, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestStatusBlocks(t *testing.T) {
	if StatusCancelled.Blocks() {
		t.Fatal("cancelled appointments must not block")
	}
	if !StatusScheduled.Blocks() || !StatusCompleted.Blocks() {
		t.Fatal("scheduled and completed appointments block")
	}
	if Status("pending").Valid() {
		t.Fatal("unexpected valid status")
	}
}
