package session

import "time"

// timerKind discriminates the session's delayed tasks.
type timerKind int

const (
	timerTypingSilence timerKind = iota // local silence window before typing-stop
	timerTypingExpire                   // TTL on a remote typing entry
	timerMarkRead                       // dwell before mark-read is sent
)

// timerKey addresses one cancellable delayed task.
type timerKey struct {
	kind timerKind
	room string
	user string
}

// timerSet owns the session's delayed tasks as cancellable timers keyed by
// room (and user for TTL entries). The map is touched only by the session
// loop; a firing timer merely posts back onto the loop's queue, carrying a
// generation so fires racing a cancellation are recognized as stale.
type timerSet struct {
	gens   map[timerKey]uint64
	timers map[timerKey]*time.Timer
	post   func(timerKey, uint64)
}

func newTimerSet(post func(timerKey, uint64)) *timerSet {
	return &timerSet{
		gens:   make(map[timerKey]uint64),
		timers: make(map[timerKey]*time.Timer),
		post:   post,
	}
}

// arm schedules (or reschedules) the task after d.
func (ts *timerSet) arm(key timerKey, d time.Duration) {
	if t, ok := ts.timers[key]; ok {
		t.Stop()
	}
	gen := ts.gens[key] + 1
	ts.gens[key] = gen
	ts.timers[key] = time.AfterFunc(d, func() {
		ts.post(key, gen)
	})
}

// cancel stops the task if scheduled.
func (ts *timerSet) cancel(key timerKey) {
	if t, ok := ts.timers[key]; ok {
		t.Stop()
		delete(ts.timers, key)
	}
	ts.gens[key]++
}

// cancelRoom stops every task tied to the given room.
func (ts *timerSet) cancelRoom(roomID string) {
	for key := range ts.timers {
		if key.room == roomID {
			ts.cancel(key)
		}
	}
}

// cancelAll stops everything; used on logout.
func (ts *timerSet) cancelAll() {
	for key := range ts.timers {
		ts.cancel(key)
	}
}

// current reports whether a fired (key, gen) pair is still the live
// scheduling of that task.
func (ts *timerSet) current(key timerKey, gen uint64) bool {
	if _, ok := ts.timers[key]; !ok {
		return false
	}
	return ts.gens[key] == gen
}

// fired clears bookkeeping for a task that has been consumed.
func (ts *timerSet) fired(key timerKey) {
	delete(ts.timers, key)
}
