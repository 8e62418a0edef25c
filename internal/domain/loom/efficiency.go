package loom

// Efficiency is the running share of the tracked time.
type Efficiency struct {
	TotalSeconds    int64   `json:"totalSeconds"`
	RunningSeconds  int64   `json:"runningSeconds"`
	EfficiencyRatio float64 `json:"efficiencyRatio"`
}

// ComputeEfficiency is the only efficiency formula; snapshots, monthly and
// shift totals all go through it.
func ComputeEfficiency(s StateSeconds) Efficiency {
	total := s.Total()
	eff := Efficiency{TotalSeconds: total, RunningSeconds: s.Running}
	if total > 0 {
		eff.EfficiencyRatio = float64(s.Running) / float64(total)
	}
	return eff
}
