package rand

// Script replays a fixed sequence of draws. Spawns is consumed by Bernoulli
// and Fuels by IntRange; once a list is exhausted Bernoulli returns false and
// IntRange returns lo.
type Script struct {
	Spawns []bool
	Fuels  []int

	spawnIdx int
	fuelIdx  int
}

func (s *Script) Bernoulli(float64) bool {
	if s.spawnIdx >= len(s.Spawns) {
		return false
	}
	v := s.Spawns[s.spawnIdx]
	s.spawnIdx++
	return v
}

func (s *Script) IntRange(lo, hi int) int {
	if s.fuelIdx >= len(s.Fuels) {
		return lo
	}
	v := s.Fuels[s.fuelIdx]
	s.fuelIdx++
	return min(max(v, lo), hi)
}

var _ Source = (*Script)(nil)
