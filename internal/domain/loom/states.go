package loom

// ActiveState is the operating condition a loom reports with every snapshot.
type ActiveState string

const (
	StateRunning      ActiveState = "running"
	StateWeftStop     ActiveState = "weft-stop"
	StateWarpStop     ActiveState = "warp-stop"
	StateManualStop   ActiveState = "manual-stop"
	StateGeneralFault ActiveState = "general-fault"
	StateEndOfYarn    ActiveState = "end-of-yarn"
	StateNone         ActiveState = "none"
)

// StopStates are counted on entry. Order is the tie-break order for reports.
var StopStates = []ActiveState{
	StateWeftStop,
	StateWarpStop,
	StateManualStop,
	StateGeneralFault,
	StateEndOfYarn,
}

// TimedStopStates are the stop states that carry a seconds counter.
var TimedStopStates = []ActiveState{
	StateWeftStop,
	StateWarpStop,
	StateManualStop,
	StateGeneralFault,
}

func (s ActiveState) IsStop() bool {
	switch s {
	case StateWeftStop, StateWarpStop, StateManualStop, StateGeneralFault, StateEndOfYarn:
		return true
	default:
		return false
	}
}

func (s ActiveState) IsKnown() bool {
	return s == StateRunning || s == StateNone || s.IsStop()
}

// StateSeconds holds one seconds value per accumulating state.
type StateSeconds struct {
	Running      int64 `json:"running" gorm:"column:running;not null;default:0"`
	WeftStop     int64 `json:"weft-stop" gorm:"column:weft_stop;not null;default:0"`
	WarpStop     int64 `json:"warp-stop" gorm:"column:warp_stop;not null;default:0"`
	ManualStop   int64 `json:"manual-stop" gorm:"column:manual_stop;not null;default:0"`
	GeneralFault int64 `json:"general-fault" gorm:"column:general_fault;not null;default:0"`
}

func (s StateSeconds) Total() int64 {
	return s.Running + s.StopSeconds()
}

func (s StateSeconds) StopSeconds() int64 {
	return s.WeftStop + s.WarpStop + s.ManualStop + s.GeneralFault
}

func (s StateSeconds) IsZero() bool {
	return s == StateSeconds{}
}

func (s StateSeconds) Add(o StateSeconds) StateSeconds {
	return StateSeconds{
		Running:      s.Running + o.Running,
		WeftStop:     s.WeftStop + o.WeftStop,
		WarpStop:     s.WarpStop + o.WarpStop,
		ManualStop:   s.ManualStop + o.ManualStop,
		GeneralFault: s.GeneralFault + o.GeneralFault,
	}
}

// Get returns the seconds for state, zero for states without a counter.
func (s StateSeconds) Get(state ActiveState) int64 {
	switch state {
	case StateRunning:
		return s.Running
	case StateWeftStop:
		return s.WeftStop
	case StateWarpStop:
		return s.WarpStop
	case StateManualStop:
		return s.ManualStop
	case StateGeneralFault:
		return s.GeneralFault
	default:
		return 0
	}
}

// StopCounts counts entries into each stop state. Owned by the server.
type StopCounts struct {
	WeftStop     int64 `json:"weft-stop"`
	WarpStop     int64 `json:"warp-stop"`
	ManualStop   int64 `json:"manual-stop"`
	GeneralFault int64 `json:"general-fault"`
	EndOfYarn    int64 `json:"end-of-yarn"`
}

func (c StopCounts) Total() int64 {
	return c.WeftStop + c.WarpStop + c.ManualStop + c.GeneralFault + c.EndOfYarn
}

func (c StopCounts) Add(o StopCounts) StopCounts {
	return StopCounts{
		WeftStop:     c.WeftStop + o.WeftStop,
		WarpStop:     c.WarpStop + o.WarpStop,
		ManualStop:   c.ManualStop + o.ManualStop,
		GeneralFault: c.GeneralFault + o.GeneralFault,
		EndOfYarn:    c.EndOfYarn + o.EndOfYarn,
	}
}

func (c StopCounts) Get(state ActiveState) int64 {
	switch state {
	case StateWeftStop:
		return c.WeftStop
	case StateWarpStop:
		return c.WarpStop
	case StateManualStop:
		return c.ManualStop
	case StateGeneralFault:
		return c.GeneralFault
	case StateEndOfYarn:
		return c.EndOfYarn
	default:
		return 0
	}
}

// Increment bumps the counter for a stop state. End-of-yarn is a weft-side
// stoppage and is counted under weft-stop as well.
func (c *StopCounts) Increment(state ActiveState) {
	switch state {
	case StateWeftStop:
		c.WeftStop++
	case StateWarpStop:
		c.WarpStop++
	case StateManualStop:
		c.ManualStop++
	case StateGeneralFault:
		c.GeneralFault++
	case StateEndOfYarn:
		c.EndOfYarn++
		c.WeftStop++
	}
}

// NonNegative replaces negative counters with zero.
func (s StateSeconds) NonNegative() StateSeconds {
	return StateSeconds{
		Running:      max(0, s.Running),
		WeftStop:     max(0, s.WeftStop),
		WarpStop:     max(0, s.WarpStop),
		ManualStop:   max(0, s.ManualStop),
		GeneralFault: max(0, s.GeneralFault),
	}
}

// Set stores v for state; states without a counter are ignored.
func (s *StateSeconds) Set(state ActiveState, v int64) {
	switch state {
	case StateRunning:
		s.Running = v
	case StateWeftStop:
		s.WeftStop = v
	case StateWarpStop:
		s.WarpStop = v
	case StateManualStop:
		s.ManualStop = v
	case StateGeneralFault:
		s.GeneralFault = v
	}
}
