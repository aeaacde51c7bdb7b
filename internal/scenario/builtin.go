package scenario

import "v2x-sim/internal/geo"

// DefaultName is the scenario used when none is configured.
const DefaultName = "intersection"

var origin = geo.Position{Lat: 45.0703, Lon: 7.6869}

// BuiltIn returns the predefined junction scenarios. All of them centre on
// a four-way junction at (500, 1500).
func BuiltIn() map[string]Scenario {
	south := []Waypoint{{X: 500, Y: 1300}, {X: 500, Y: 1495}, {X: 495, Y: 1500}, {X: 300, Y: 1500}}
	north := []Waypoint{{X: 500, Y: 1700}, {X: 500, Y: 1300}}
	westEast := []Waypoint{{X: 300, Y: 1500}, {X: 700, Y: 1500}}
	eastWest := []Waypoint{{X: 700, Y: 1505}, {X: 300, Y: 1505}}

	return map[string]Scenario{
		"intersection": {
			Name:        "Intersection",
			Description: "A left-turning vehicle meets oncoming traffic; the RSU holds the oncoming vehicle until the turn completes.",
			StepLength:  DefaultStepLength,
			Origin:      origin,
			Vehicles: []Vehicle{
				{
					ID: "1", Depart: 0, Speed: 12, Route: south,
					Signals:  []Signal{{Side: SideLeft, From: 150, To: 205}},
					Internal: []Span{{From: 190, To: 210}},
				},
				{ID: "2", Depart: 1, Speed: 12, Route: north},
				{ID: "3", Depart: 4, Speed: 10, Route: westEast},
			},
		},
		"right-turn": {
			Name:        "Right turn",
			Description: "A right-turning vehicle crosses the path of a vehicle with a scheduled stop past the junction.",
			StepLength:  DefaultStepLength,
			Origin:      origin,
			Vehicles: []Vehicle{
				{
					ID: "1", Depart: 0, Speed: 11,
					Route:    []Waypoint{{X: 500, Y: 1300}, {X: 500, Y: 1495}, {X: 505, Y: 1500}, {X: 700, Y: 1500}},
					Signals:  []Signal{{Side: SideRight, From: 140, To: 205}},
					Internal: []Span{{From: 190, To: 210}},
				},
				{
					ID: "2", Depart: 0.5, Speed: 11, Route: eastWest,
					Stops: []Stop{{At: 320, Duration: 5}},
				},
			},
		},
		"free-flow": {
			Name:        "Free flow",
			Description: "Straight-through traffic only; no turn signals and therefore no manoeuvre coordination.",
			StepLength:  DefaultStepLength,
			Origin:      origin,
			Vehicles: []Vehicle{
				{ID: "1", Depart: 0, Speed: 13, Route: []Waypoint{{X: 500, Y: 1300}, {X: 500, Y: 1700}}},
				{ID: "2", Depart: 0, Speed: 13, Route: north},
			},
			Background: &Background{
				Count: 6, Seed: 7, Interval: 2, SpeedMin: 8, SpeedMax: 14,
				Routes: [][]Waypoint{westEast, eastWest},
			},
		},
	}
}

// Lookup returns a built-in scenario by key.
func Lookup(name string) (*Scenario, bool) {
	sc, ok := BuiltIn()[name]
	if !ok {
		return nil, false
	}
	return &sc, true
}
