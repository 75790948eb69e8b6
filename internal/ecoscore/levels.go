package ecoscore

import "slices"

// Level is one contiguous score band [Min, Max).
type Level struct {
	Number   int      `json:"level"`
	Title    string   `json:"title"`
	Min      int64    `json:"min"`
	Max      int64    `json:"max"`
	Benefits []string `json:"benefits"`
}

var levels = []Level{
	{Number: 1, Title: "Seedling", Min: 0, Max: 20, Benefits: []string{
		"Access to community listings",
	}},
	{Number: 2, Title: "Sprout", Min: 20, Max: 40, Benefits: []string{
		"Access to community listings",
		"Eco badge on profile",
	}},
	{Number: 3, Title: "Sapling", Min: 40, Max: 60, Benefits: []string{
		"Access to community listings",
		"Eco badge on profile",
		"5% off rental fees",
	}},
	{Number: 4, Title: "Tree", Min: 60, Max: 80, Benefits: []string{
		"Access to community listings",
		"Eco badge on profile",
		"10% off rental fees",
		"Priority support",
	}},
	{Number: 5, Title: "Forest Guardian", Min: 80, Max: DefaultMaxScore + 1, Benefits: []string{
		"Access to community listings",
		"Eco badge on profile",
		"15% off rental fees",
		"Priority support",
		"Early access to new features",
	}},
}

// LevelFor returns the band containing score. Scores outside [0, 100] are
// clamped first.
func LevelFor(score int64) Level {
	score = max(0, min(score, DefaultMaxScore))

	for _, l := range levels {
		if score >= l.Min && score < l.Max {
			return l.clone()
		}
	}

	return levels[len(levels)-1].clone()
}

// Levels returns every band in ascending order.
func Levels() []Level {
	out := make([]Level, len(levels))
	for i, l := range levels {
		out[i] = l.clone()
	}

	return out
}

func (l Level) clone() Level {
	l.Benefits = slices.Clone(l.Benefits)
	return l
}
