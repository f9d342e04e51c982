package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type outcomeTally map[Outcome]int

func (t outcomeTally) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		if evt.Stage == StageCandidateDone {
			t[evt.Outcome]++
		}
	}
	return nil
}

func (outcomeTally) Close(context.Context) error { return nil }

// ExampleHub_Emit tallies candidate outcomes and flushes them on Close.
func ExampleHub_Emit() {
	tally := outcomeTally{}
	hub := NewHub(Config{MaxBatchWait: time.Second}, tally)

	run := UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	for _, outcome := range []Outcome{OutcomeClassified, OutcomeFailed, OutcomeClassified} {
		hub.Emit(Event{RunID: run, TS: time.Unix(0, 0), Stage: StageCandidateDone, Outcome: outcome})
	}
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("classified=%d failed=%d\n", tally[OutcomeClassified], tally[OutcomeFailed])
	// Output:
	// classified=2 failed=1
}
