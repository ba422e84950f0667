package sim

import (
	"errors"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/rsa-sim/rsa-sim/sim/topology"
	"github.com/rsa-sim/rsa-sim/sim/trace"
)

var (
	// ErrNotReset is returned by Step and BeginPhase before the first Reset.
	ErrNotReset = errors.New("environment not reset")
	// ErrPhaseDone is returned by Step once the current phase budget is exhausted.
	ErrPhaseDone = errors.New("phase request budget exhausted")
	// ErrOutOfOrder is returned when the request source breaks arrival or ID ordering.
	ErrOutOfOrder = errors.New("request source out of order")
)

// Block reasons recorded on blocked outcomes.
const (
	ReasonRejected    = "rejected"
	ReasonInvalidPath = "invalid-path"
	ReasonBadWidth    = "invalid-width"
	ReasonOutOfRange  = "out-of-range"
	ReasonOccupied    = "occupied"
)

type envState int

const (
	stateIdle envState = iota
	stateStepping
	stateDone
)

// StepResult is the outcome of one Step.
type StepResult struct {
	Observation Observation   // next pending request (nil Request when Done)
	Outcome     trace.Outcome // decision record for the request just stepped
	Reward      float64
	Done        bool
}

// Environment is the per-replica RSA state machine: one topology's spectrum
// occupancy plus the set of active connections, advanced one request at a time.
//
// States: Idle → Stepping → (Stepping | Done). Reset moves to Stepping;
// BeginPhase sets a request budget; Step moves to Done when it runs out.
//
// Thread-safety: NOT thread-safe. Each replica owns its Environment.
type Environment struct {
	topo       *topology.Topology
	source     RequestSource
	config     EnvConfig
	spectrum   *Spectrum
	active     map[int64]*Connection
	departures *departureHeap

	clock     float64
	pending   *Request
	lastID    int64
	state     envState
	remaining int // requests left in the current phase; -1 = unbounded
	consumed  int64
}

// NewEnvironment creates an Environment over topo fed by source.
func NewEnvironment(topo *topology.Topology, source RequestSource, config EnvConfig) (*Environment, error) {
	if topo == nil {
		return nil, fmt.Errorf("%w: nil topology", ErrInvalidConfig)
	}
	if source == nil {
		return nil, fmt.Errorf("%w: nil request source", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.RewardScheme == "" {
		config.RewardScheme = RewardUnit
	}
	return &Environment{
		topo:       topo,
		source:     source,
		config:     config,
		spectrum:   newSpectrum(topo),
		active:     make(map[int64]*Connection),
		departures: newDepartureHeap(),
		remaining:  -1,
	}, nil
}

// Reset clears all connections and occupancy, reseeds the request source,
// rewinds the clock to 0 and returns the first pending request.
// The phase budget is unbounded until BeginPhase is called.
func (e *Environment) Reset(seed int64) (Observation, error) {
	e.spectrum.clear()
	clear(e.active)
	e.departures.reset()
	e.clock = 0
	e.pending = nil
	e.lastID = -1
	e.consumed = 0
	e.remaining = -1
	e.source.Reseed(seed)
	e.state = stateStepping
	if err := e.pull(); err != nil {
		return Observation{}, err
	}
	logrus.Debugf("environment reset: seed=%d topology=%s links=%d slots=%d",
		seed, e.topo.Name(), e.topo.LinkCount(), e.spectrum.TotalSlots())
	return e.observe(), nil
}

// BeginPhase starts a phase of n requests on top of the current state.
// n == 0 finishes the phase immediately. A pending request is pulled only
// when the phase needs one, so back-to-back phases consume exactly the sum
// of their budgets from the request source.
func (e *Environment) BeginPhase(n int) (Observation, error) {
	if e.state == stateIdle {
		return Observation{}, ErrNotReset
	}
	if n < 0 {
		return Observation{}, fmt.Errorf("%w: phase budget must be >= 0, got %d", ErrInvalidConfig, n)
	}
	e.remaining = n
	if n == 0 {
		e.state = stateDone
		return e.observe(), nil
	}
	e.state = stateStepping
	if e.pending == nil {
		if err := e.pull(); err != nil {
			return Observation{}, err
		}
	}
	return e.observe(), nil
}

// Step applies action to the pending request, updates occupancy, and
// advances to the next request, releasing every connection that departs
// at or before its arrival time.
//
// Infeasible actions are never an error: they block the request.
// Errors are returned only for driver misuse (ErrNotReset, ErrPhaseDone)
// or a misbehaving request source (ErrOutOfOrder).
func (e *Environment) Step(action Action) (StepResult, error) {
	switch {
	case e.state == stateIdle:
		return StepResult{}, ErrNotReset
	case e.state == stateDone || e.pending == nil:
		return StepResult{}, ErrPhaseDone
	}

	req := e.pending
	e.pending = nil
	e.consumed++

	outcome := trace.Outcome{
		RequestID:   req.ID,
		ArrivalTime: req.ArrivalTime,
		Src:         req.Src,
		Dst:         req.Dst,
		SlotWidth:   req.SlotWidth,
		SlotStart:   -1,
	}
	if reason := e.infeasible(req, action); reason != "" {
		outcome.Reward = e.config.BlockReward
		outcome.Reason = reason
	} else {
		e.admit(req, action)
		outcome.Accepted = true
		outcome.Path = slices.Clone(action.Links)
		outcome.SlotStart = action.SlotStart
		outcome.Reward = e.config.acceptReward(req)
	}
	outcome.Utilization = e.spectrum.Utilization()

	if e.remaining > 0 {
		e.remaining--
		if e.remaining == 0 {
			e.state = stateDone
		}
	}
	if e.state != stateDone {
		if err := e.pull(); err != nil {
			return StepResult{}, err
		}
	}

	return StepResult{
		Observation: e.observe(),
		Outcome:     outcome,
		Reward:      outcome.Reward,
		Done:        e.state == stateDone,
	}, nil
}

// infeasible returns the block reason for action on req, or "" if it can be admitted.
func (e *Environment) infeasible(req *Request, action Action) string {
	if action.Reject {
		return ReasonRejected
	}
	if req.SlotWidth < 1 {
		return ReasonBadWidth
	}
	if !e.topo.ValidPath(req.Src, req.Dst, action.Links) {
		return ReasonInvalidPath
	}
	if action.SlotStart < 0 {
		return ReasonOutOfRange
	}
	for _, l := range action.Links {
		if action.SlotStart+req.SlotWidth > e.spectrum.Capacity(l) {
			return ReasonOutOfRange
		}
	}
	if !e.spectrum.IsFree(action.Links, action.SlotStart, req.SlotWidth) {
		return ReasonOccupied
	}
	return ""
}

func (e *Environment) admit(req *Request, action Action) {
	conn := &Connection{
		RequestID:     req.ID,
		Links:         slices.Clone(action.Links),
		SlotStart:     action.SlotStart,
		SlotWidth:     req.SlotWidth,
		ArrivalTime:   req.ArrivalTime,
		DepartureTime: req.DepartureTime(),
	}
	e.spectrum.occupy(conn.Links, conn.SlotStart, conn.SlotWidth)
	e.active[conn.RequestID] = conn
	e.departures.schedule(conn)
}

// pull fetches the next request, advances the clock to its arrival and
// releases every connection due by then.
func (e *Environment) pull() error {
	req := e.source.Next()
	if req.ArrivalTime < e.clock || req.ID <= e.lastID {
		return fmt.Errorf("%w: request %d at t=%f after request %d at t=%f",
			ErrOutOfOrder, req.ID, req.ArrivalTime, e.lastID, e.clock)
	}
	e.lastID = req.ID
	e.clock = req.ArrivalTime
	e.releaseDue()
	e.pending = &req
	return nil
}

// releaseDue frees every connection with DepartureTime <= clock,
// in departure order with ties broken by request ID.
func (e *Environment) releaseDue() {
	for {
		conn := e.departures.popDue(e.clock)
		if conn == nil {
			return
		}
		e.spectrum.release(conn.Links, conn.SlotStart, conn.SlotWidth)
		delete(e.active, conn.RequestID)
	}
}

func (e *Environment) observe() Observation {
	return Observation{Request: e.pending, Spectrum: e.spectrum, Clock: e.clock}
}

// Clock returns the current simulated time.
func (e *Environment) Clock() float64 { return e.clock }

// Topology returns the topology the environment runs on.
func (e *Environment) Topology() *topology.Topology { return e.topo }

// Spectrum returns the live occupancy view.
func (e *Environment) Spectrum() *Spectrum { return e.spectrum }

// Utilization returns the current fraction of occupied slots.
func (e *Environment) Utilization() float64 { return e.spectrum.Utilization() }

// Consumed returns the number of requests stepped since the last Reset.
func (e *Environment) Consumed() int64 { return e.consumed }

// Done reports whether the current phase budget is exhausted.
func (e *Environment) Done() bool { return e.state == stateDone }

// ActiveConnections returns copies of the active connections ordered by request ID.
func (e *Environment) ActiveConnections() []Connection {
	out := make([]Connection, 0, len(e.active))
	for _, c := range e.active {
		cc := *c
		cc.Links = slices.Clone(c.Links)
		out = append(out, cc)
	}
	slices.SortFunc(out, func(a, b Connection) int {
		switch {
		case a.RequestID < b.RequestID:
			return -1
		case a.RequestID > b.RequestID:
			return 1
		}
		return 0
	})
	return out
}

// VerifyOccupancy checks that the spectrum equals the union of the active
// connections' slot ranges, that no two connections overlap on a link, and
// that every active connection is still due to depart after the clock.
func (e *Environment) VerifyOccupancy() error {
	if len(e.active) != e.departures.Len() {
		return fmt.Errorf("%d active connections but %d scheduled departures", len(e.active), e.departures.Len())
	}
	expected := make([][]int64, e.spectrum.LinkCount())
	for l := range expected {
		expected[l] = make([]int64, e.spectrum.Capacity(l))
		for s := range expected[l] {
			expected[l][s] = -1
		}
	}
	used := 0
	for _, c := range e.ActiveConnections() {
		if c.DepartureTime <= e.clock {
			return fmt.Errorf("connection %d departed at %f but is still active at %f", c.RequestID, c.DepartureTime, e.clock)
		}
		for _, l := range c.Links {
			for s := c.SlotStart; s < c.SlotEnd(); s++ {
				if owner := expected[l][s]; owner >= 0 {
					return fmt.Errorf("connections %d and %d overlap on link %d slot %d", owner, c.RequestID, l, s)
				}
				expected[l][s] = c.RequestID
				used++
			}
		}
	}
	for l := range expected {
		for s, owner := range expected[l] {
			if (owner >= 0) != e.spectrum.Occupied(l, s) {
				return fmt.Errorf("link %d slot %d: occupied=%v but owner=%d", l, s, e.spectrum.Occupied(l, s), owner)
			}
		}
	}
	if used != e.spectrum.UsedSlots() {
		return fmt.Errorf("used slot count %d, want %d", e.spectrum.UsedSlots(), used)
	}
	return nil
}
