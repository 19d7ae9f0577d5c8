package engine

import (
	"sync"

	"github.com/seantiz/savina/internal/harness"
)

// Event kinds published on a run feed.
const (
	EventStart      = "start"
	EventRepetition = "repetition"
	EventSummary    = "summary"
	EventAbort      = "abort"
)

// Event is one step of a run. Line is the progress line kept in the run's
// history; Data is the structured payload streamed to subscribers.
type Event struct {
	Kind string
	Line string
	Data any
}

// StartData describes a run as it begins measuring.
type StartData struct {
	Benchmark   string `json:"benchmark"`
	Name        string `json:"name"`
	Paradigm    string `json:"paradigm"`
	Cores       int    `json:"cores"`
	Repetitions int    `json:"repetitions"`
	Scale       bool   `json:"scale"`
}

// AbortData describes a run that stopped before its summary.
type AbortData struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func startEvent(line string, d StartData) Event {
	return Event{Kind: EventStart, Line: line, Data: d}
}

func repetitionEvent(line string, s harness.Sample) Event {
	return Event{Kind: EventRepetition, Line: line, Data: s}
}

func summaryEvent(line string, st harness.Stats) Event {
	return Event{Kind: EventSummary, Line: line, Data: st}
}

func abortEvent(line, status, errMsg string) Event {
	return Event{Kind: EventAbort, Line: line, Data: AbortData{Status: status, Error: errMsg}}
}

// feedBuffer is the number of live events a subscriber may lag behind.
const feedBuffer = 64

// Feed fans out the events of each run to its subscribers. A subscriber that
// joins mid-run first receives every event the run has published so far.
// Once a run is closed only a closed marker is kept, and subscribing to it
// yields a closed channel.
type Feed struct {
	mu   sync.Mutex
	runs map[string]*runFeed
}

type runFeed struct {
	backlog []Event
	subs    map[chan Event]struct{}
	closed  bool
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{runs: make(map[string]*runFeed)}
}

func (f *Feed) run(runID string) *runFeed {
	rf, ok := f.runs[runID]
	if !ok {
		rf = &runFeed{subs: make(map[chan Event]struct{})}
		f.runs[runID] = rf
	}
	return rf
}

// Subscribe returns a channel receiving the events of runID, starting with
// the backlog, and a function that cancels the subscription.
func (f *Feed) Subscribe(runID string) (<-chan Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rf := f.run(runID)
	ch := make(chan Event, len(rf.backlog)+feedBuffer)
	if rf.closed {
		close(ch)
		return ch, func() {}
	}
	for _, ev := range rf.backlog {
		ch <- ev
	}
	rf.subs[ch] = struct{}{}

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(rf.subs, ch)
	}
}

// Publish appends ev to the backlog of runID and delivers it to every
// subscriber. A subscriber whose buffer is full misses the event.
func (f *Feed) Publish(runID string, ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rf := f.run(runID)
	if rf.closed {
		return
	}
	rf.backlog = append(rf.backlog, ev)
	for ch := range rf.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close ends the feed of runID, drops its backlog and closes every
// subscriber channel.
func (f *Feed) Close(runID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rf := f.run(runID)
	rf.closed = true
	rf.backlog = nil
	for ch := range rf.subs {
		close(ch)
		delete(rf.subs, ch)
	}
}
