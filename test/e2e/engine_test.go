package e2e_test

import (
	"flag"
	"math/rand"
	"testing"
	"time"

	"github.com/mvarner/replog/test/e2e"
	"github.com/mvarner/replog/test/syncharness"
)

// CLI flags for randomized run configuration.
var (
	e2eSeed    = flag.Int64("e2e.seed", 0, "PRNG seed (0 = time-based)")
	e2eActions = flag.Int("e2e.actions", 150, "total actions to perform")
	e2eDevices = flag.Int("e2e.devices", 3, "number of simulated devices (2-6)")
	e2eVerbose = flag.Bool("e2e.verbose", false, "detailed per-action output")
)

func clientNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = "client-" + string(rune('A'+i))
	}
	return names
}

// drain syncs each client until its queue is empty. Events stranded at
// syncing by a crash push are recovered on the next attempt.
func drain(t *testing.T, h *syncharness.Harness, clients []string) {
	t.Helper()
	for _, id := range clients {
		for attempt := 0; attempt < 3 && h.QueueStats(id).Total > 0; attempt++ {
			if _, err := h.Sync(id); err != nil {
				t.Fatalf("drain %s: %v", id, err)
			}
		}
		if stats := h.QueueStats(id); stats.Total != 0 {
			t.Fatalf("client %s still holds %d events after drain", id, stats.Total)
		}
	}
}

func verifyAll(t *testing.T, h *syncharness.Harness, eng *e2e.ChaosEngine, userID string, clients []string) {
	t.Helper()
	v := e2e.NewVerifier(h)
	v.VerifyQueuesDrained(clients...)
	v.VerifyLogComplete(eng, userID)
	v.VerifyProjections(eng, userID)
	v.VerifyRebuildStable(userID)

	t.Log(eng.Summary())
	t.Log(v.Summary())

	for _, r := range v.FailedResults() {
		t.Errorf("verification failed: %s: %s", r.Name, r.Details)
	}
	if eng.Stats.UnexpectedFailures > 0 {
		t.Errorf("%d unexpected action failures", eng.Stats.UnexpectedFailures)
	}
}

// TestSmoke runs a quick two-device run suitable for CI.
func TestSmoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	seed := time.Now().UnixNano()
	t.Logf("seed: %d (use -e2e.seed=%d to reproduce)", seed, seed)

	clients := clientNames(2)
	h := syncharness.NewHarness(t, 2)
	userID := h.MintIdentity(clients...)
	h.Provision(clients...)

	eng := e2e.NewChaosEngine(h, seed, clients)
	eng.RunN(30)

	drain(t, h, clients)
	verifyAll(t, h, eng, userID, clients)
}

// TestRandomizedSync is the main randomized run, configurable via flags.
func TestRandomizedSync(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	seed := *e2eSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	t.Logf("seed: %d (use -e2e.seed=%d to reproduce)", seed, seed)

	numDevices := *e2eDevices
	if numDevices < 2 {
		numDevices = 2
	}
	if numDevices > 6 {
		numDevices = 6
	}
	t.Logf("config: actions=%d devices=%d", *e2eActions, numDevices)

	clients := clientNames(numDevices)
	h := syncharness.NewHarness(t, numDevices)
	userID := h.MintIdentity(clients...)
	h.Provision(clients...)

	eng := e2e.NewChaosEngine(h, seed, clients)

	for done := 0; done < *e2eActions; {
		r := eng.RunAction()
		done++

		if *e2eVerbose {
			status := "ok"
			switch {
			case r.Skipped:
				status = "skip"
			case !r.OK:
				status = "FAIL: " + r.Output
			}
			t.Logf("[%3d] %-8s %-16s %-12s %s", done, r.Client, r.Action, r.Target, status)
		}
		if done%25 == 0 {
			t.Logf("progress: %d / %d actions", done, *e2eActions)
		}
	}

	t.Log("final convergence sync")
	drain(t, h, clients)
	verifyAll(t, h, eng, userID, clients)
}

// TestWeightedSelection checks the action weights without a harness:
// no panics, the heavy actions dominate, the light ones still appear.
func TestWeightedSelection(t *testing.T) {
	rng := rand.New(rand.NewSource(123))
	counts := make(map[string]int)
	for i := 0; i < 10000; i++ {
		counts[e2e.SelectAction(rng).Name]++
	}

	if counts["log_set"] < counts["crash_push"] {
		t.Errorf("log_set (%d) selected less often than crash_push (%d)",
			counts["log_set"], counts["crash_push"])
	}
	if counts["log_set"] < 1500 {
		t.Errorf("log_set selected only %d/10000 times (expected ~3125)", counts["log_set"])
	}
	if counts["crash_push"] == 0 || counts["cancel_workout"] == 0 {
		t.Error("low-weight actions never selected in 10000 rolls")
	}

	t.Logf("weight distribution (10000 samples): log_set=%d sync=%d start_workout=%d crash_push=%d",
		counts["log_set"], counts["sync"], counts["start_workout"], counts["crash_push"])
}
