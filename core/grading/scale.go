package grading

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// LetterF is given below the lowest threshold.
const LetterF = "F"

// Threshold is the minimum percentage earning a letter.
type Threshold struct {
	Letter string  `json:"letter"`
	Min    float64 `json:"min"`
	Points float64 `json:"points"`
}

// DefaultThresholds is the default scale, highest first.
var DefaultThresholds = []Threshold{
	{Letter: "A", Min: 93, Points: 4.0},
	{Letter: "A-", Min: 90, Points: 3.7},
	{Letter: "B+", Min: 87, Points: 3.3},
	{Letter: "B", Min: 83, Points: 3.0},
	{Letter: "B-", Min: 80, Points: 2.7},
	{Letter: "C+", Min: 77, Points: 2.3},
	{Letter: "C", Min: 73, Points: 2.0},
	{Letter: "C-", Min: 70, Points: 1.7},
	{Letter: "D+", Min: 67, Points: 1.3},
	{Letter: "D", Min: 63, Points: 1.0},
	{Letter: "D-", Min: 60, Points: 0.7},
}

// Scale maps percentages to letter grades and letter grades to grade points.
type Scale struct {
	thresholds []Threshold
	points     map[string]float64
}

// NewScale returns the default scale with some thresholds overridden, e.g. "A=94,A-=91".
// Only the letters of the default scale can be overridden.
func NewScale(overrides string) (*Scale, error) {
	thresholds := make([]Threshold, len(DefaultThresholds))
	copy(thresholds, DefaultThresholds)

	if overrides = strings.TrimSpace(overrides); overrides != "" {
		for _, pair := range strings.Split(overrides, ",") {
			parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
			if len(parts) != 2 {
				return nil, errors.Errorf("invalid grading scale entry %q", pair)
			}
			letter := strings.ToUpper(strings.TrimSpace(parts[0]))
			min, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if err != nil || min < 0 || min > 100 {
				return nil, errors.Errorf("invalid minimum for grade %q", letter)
			}
			var found bool
			for i := range thresholds {
				if thresholds[i].Letter == letter {
					thresholds[i].Min = min
					found = true
				}
			}
			if !found {
				return nil, errors.Errorf("unknown grade %q", letter)
			}
		}
	}

	sort.SliceStable(thresholds, func(i, j int) bool { return thresholds[i].Min > thresholds[j].Min })
	points := map[string]float64{LetterF: 0}
	for _, t := range thresholds {
		points[t.Letter] = t.Points
	}
	return &Scale{thresholds: thresholds, points: points}, nil
}

// Letter returns the letter of the highest threshold reached by percentage.
func (s *Scale) Letter(percentage float64) string {
	for _, t := range s.thresholds {
		if percentage >= t.Min {
			return t.Letter
		}
	}
	return LetterF
}

// Points returns the grade points of a letter; unknown letters are worth nothing.
func (s *Scale) Points(letter string) float64 {
	return s.points[letter]
}

// GPA is the mean of the grade points of letters.
func (s *Scale) GPA(letters []string) float64 {
	if len(letters) == 0 {
		return 0
	}
	var sum float64
	for _, l := range letters {
		sum += s.Points(l)
	}
	return sum / float64(len(letters))
}

func (s *Scale) Thresholds() []Threshold {
	out := make([]Threshold, len(s.thresholds))
	copy(out, s.thresholds)
	return out
}
