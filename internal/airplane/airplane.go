package airplane

const (
	// FuelRate is the liters burned per frame, and the altitude lost per
	// frame while landing.
	FuelRate = 1
	// InitialAltitude is the descent a fresh airplane must complete to land.
	InitialAltitude = 80
	// MinInitialFuel and MaxInitialFuel bound the uniform initial fuel draw.
	MinInitialFuel = 100
	MaxInitialFuel = 999
)

// Transition is the terminal change an Advance call produced, if any
type Transition int

const (
	None Transition = iota
	Touchdown
	Crash
)

// Airplane represents a single arrival competing for a runway
type Airplane struct {
	ID       int  `json:"id"`
	Fuel     int  `json:"fuel"`
	Altitude int  `json:"altitude"`
	Landing  bool `json:"landing"`
	Landed   bool `json:"landed"`
	Crashed  bool `json:"crashed"`
}

// New creates an airplane entering the airspace with the given fuel
func New(id, fuel int) Airplane {
	return Airplane{
		ID:       id,
		Fuel:     fuel,
		Altitude: InitialAltitude,
	}
}

// Advance runs one frame of fuel burn and descent. Terminal airplanes are
// frozen.
func (a *Airplane) Advance() Transition {
	if a.Terminal() {
		return None
	}

	a.Fuel -= FuelRate
	if a.Landing {
		a.Altitude -= FuelRate
		if a.Altitude == 0 {
			a.Landing = false
			a.Landed = true
			return Touchdown
		}
		return None
	}

	if a.Fuel <= 0 {
		a.Crashed = true
		return Crash
	}
	return None
}

// Terminal reports whether the airplane has landed or crashed
func (a *Airplane) Terminal() bool {
	return a.Landed || a.Crashed
}

// Waiting reports whether the airplane is airborne and not using a runway
func (a *Airplane) Waiting() bool {
	return !a.Terminal() && !a.Landing
}

// CanAttemptLanding reports whether the remaining fuel covers the remaining
// descent.
func (a *Airplane) CanAttemptLanding() bool {
	return a.Fuel >= a.Altitude
}
