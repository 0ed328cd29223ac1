// Package e2e drives randomized multi-device histories through the
// whole sync stack and checks that the server's event log and
// projections converge on what a model of the domain predicts. Every
// device is a real local queue from internal/db and every push crosses
// the HTTP boundary via the syncharness.
package e2e

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/mvarner/replog/internal/events"
	"github.com/mvarner/replog/test/syncharness"
)

// ActionResult records the outcome of one chaos action.
type ActionResult struct {
	Action  string
	Client  string
	Target  string // workout or set id, when the action has one
	OK      bool
	Skipped bool // no suitable target on this device
	Output  string
}

// ActionStats tracks per-action-type outcomes.
type ActionStats struct {
	OK      int
	Skipped int
	Failed  int
}

// ChaosStats aggregates counters across all actions.
type ChaosStats struct {
	ActionCount        int
	SyncCount          int
	CrashPushes        int
	Skipped            int
	UnexpectedFailures int
	PerAction          map[string]*ActionStats
}

// DeviceState is the engine's view of one simulated device: which
// workout is open, which sets it created and still owns, and how many
// queue records it has enqueued so far.
type DeviceState struct {
	ClientID    string
	DeviceID    string
	OpenWorkout string
	sets        []string
	exercises   map[string]map[string]bool // workout id -> exercise slugs logged
	records     int
}

// logged is one journal entry: the payload a device enqueued, in
// enqueue order. The journal is the engine's model of the event log.
type logged struct {
	device  string
	typ     events.Type
	payload any
}

// ChaosEngine drives weighted random actions against a Harness while
// keeping a journal of everything the devices enqueued. The journal
// feeds the Verifier's model fold after the run.
type ChaosEngine struct {
	H     *syncharness.Harness
	Rng   *rand.Rand
	Clock time.Time

	clients []string
	devices map[string]*DeviceState
	journal []logged

	Stats ChaosStats
}

// NewChaosEngine creates an engine over the named harness clients with
// a deterministic seed. The clock starts on a Monday morning so weekly
// buckets line up with whole test weeks.
func NewChaosEngine(h *syncharness.Harness, seed int64, clientIDs []string) *ChaosEngine {
	e := &ChaosEngine{
		H:       h,
		Rng:     rand.New(rand.NewSource(seed)),
		Clock:   time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC),
		clients: append([]string(nil), clientIDs...),
		devices: make(map[string]*DeviceState),
		Stats:   ChaosStats{PerAction: make(map[string]*ActionStats)},
	}
	for _, id := range clientIDs {
		e.devices[id] = &DeviceState{
			ClientID:  id,
			DeviceID:  h.Clients[id].DeviceID,
			exercises: make(map[string]map[string]bool),
		}
	}
	return e
}

// randClient picks a random device.
func (e *ChaosEngine) randClient() string {
	return e.clients[e.Rng.Intn(len(e.clients))]
}

// tick advances the virtual clock by a few minutes. A small fraction
// of ticks jump a day or more so long runs spread across several
// weekly buckets.
func (e *ChaosEngine) tick() time.Time {
	step := time.Duration(2+e.Rng.Intn(28)) * time.Minute
	if e.Rng.Intn(100) < 5 {
		step += time.Duration(1+e.Rng.Intn(3)) * 24 * time.Hour
	}
	e.Clock = e.Clock.Add(step)
	return e.Clock
}

// logEvent appends one enqueued payload to the journal and counts the
// queue record against the device.
func (e *ChaosEngine) logEvent(d *DeviceState, typ events.Type, payload any) {
	d.records++
	e.journal = append(e.journal, logged{device: d.DeviceID, typ: typ, payload: payload})
}

// TotalRecords is the number of queue records enqueued across all
// devices, which is exactly what the server log must hold after a
// full drain.
func (e *ChaosEngine) TotalRecords() int {
	total := 0
	for _, d := range e.devices {
		total += d.records
	}
	return total
}

// Device returns the engine's state for one client.
func (e *ChaosEngine) Device(clientID string) *DeviceState {
	return e.devices[clientID]
}

// recordResult updates stats from an action result.
func (e *ChaosEngine) recordResult(r ActionResult) {
	e.Stats.ActionCount++
	pa, ok := e.Stats.PerAction[r.Action]
	if !ok {
		pa = &ActionStats{}
		e.Stats.PerAction[r.Action] = pa
	}
	switch {
	case r.Skipped:
		pa.Skipped++
		e.Stats.Skipped++
	case r.OK:
		pa.OK++
	default:
		pa.Failed++
		e.Stats.UnexpectedFailures++
	}
}

// RunAction executes one weighted random action on a random device.
func (e *ChaosEngine) RunAction() ActionResult {
	clientID := e.randClient()
	def := SelectAction(e.Rng)
	r := def.Exec(e, clientID)
	r.Action = def.Name
	r.Client = clientID
	e.recordResult(r)
	return r
}

// RunN executes n random actions and returns all results.
func (e *ChaosEngine) RunN(n int) []ActionResult {
	results := make([]ActionResult, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, e.RunAction())
	}
	return results
}

// Summary returns a human-readable stats summary.
func (e *ChaosEngine) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Actions: %d | Syncs: %d | CrashPushes: %d | Skipped: %d | UnexpFail: %d\n",
		e.Stats.ActionCount, e.Stats.SyncCount, e.Stats.CrashPushes,
		e.Stats.Skipped, e.Stats.UnexpectedFailures)

	names := make([]string, 0, len(e.Stats.PerAction))
	for name := range e.Stats.PerAction {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pa := e.Stats.PerAction[name]
		fmt.Fprintf(&b, "  %-16s ok=%-4d skip=%-4d fail=%d\n", name, pa.OK, pa.Skipped, pa.Failed)
	}
	return b.String()
}
