package scope

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/evanschultz/pmforge/internal/prompt"
)

// Complexity buckets.
const (
	BucketSimple  = "simple"
	BucketMedium  = "medium"
	BucketComplex = "complex"
)

// Strategy score weights.
const (
	weightQuality = 0.5
	weightSpeed   = 0.3
	weightFit     = 0.2
)

var (
	headingRe   = regexp.MustCompile(`^(#{1,6}\s+\S|\d+(\.\d+)*\.?\s+[A-Z])`)
	tableRowRe  = regexp.MustCompile(`^\s*\|.*\|\s*$`)
	tableWordRe = regexp.MustCompile(`(?i)\btable\s+\d+\b`)
)

// Profile summarizes a document for strategy selection.
type Profile struct {
	Words      int     `json:"words"`
	Sections   int     `json:"sections"`
	Tables     int     `json:"tables"`
	Complexity float64 `json:"complexity"`
	Bucket     string  `json:"bucket"`
}

// Analyze counts words, headings, and tables. Complexity is words/500 + sections/5 + tables;
// below 1.5 is simple, below 4 is medium, anything else is complex.
func Analyze(text string) Profile {
	p := Profile{Words: len(strings.Fields(text))}
	inTable := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if headingRe.MatchString(trimmed) {
			p.Sections++
		}
		if tableRowRe.MatchString(line) {
			if !inTable {
				p.Tables++
			}
			inTable = true
		} else {
			inTable = false
		}
	}
	p.Tables += len(tableWordRe.FindAllString(text, -1))
	p.Complexity = math.Round((float64(p.Words)/500+float64(p.Sections)/5+float64(p.Tables))*100) / 100
	switch {
	case p.Complexity < 1.5:
		p.Bucket = BucketSimple
	case p.Complexity < 4:
		p.Bucket = BucketMedium
	default:
		p.Bucket = BucketComplex
	}
	return p
}

// Strategy is one scored extraction candidate.
type Strategy struct {
	Name          string        `json:"name"`
	Quality       float64       `json:"quality"`
	Speed         float64       `json:"speed"`
	Fit           float64       `json:"fit"`
	Score         float64       `json:"score"`
	EstimatedTime time.Duration `json:"estimated_time"`
}

// Constraints are hard filters on strategy choice. Zero values disable a filter.
type Constraints struct {
	MaxTime    time.Duration
	MinQuality float64
}

type candidate struct {
	name    string
	quality float64
	speed   float64
	base    time.Duration
	fit     map[string]float64
}

var candidates = []candidate{
	{
		name: prompt.DetailFull, quality: 0.95, speed: 0.4, base: 180 * time.Second,
		fit: map[string]float64{BucketSimple: 0.4, BucketMedium: 0.7, BucketComplex: 1.0},
	},
	{
		name: prompt.DetailBalanced, quality: 0.8, speed: 0.7, base: 90 * time.Second,
		fit: map[string]float64{BucketSimple: 0.7, BucketMedium: 1.0, BucketComplex: 0.6},
	},
	{
		name: prompt.DetailMinimal, quality: 0.6, speed: 0.95, base: 40 * time.Second,
		fit: map[string]float64{BucketSimple: 1.0, BucketMedium: 0.5, BucketComplex: 0.3},
	},
}

// Strategies scores every candidate for p as 0.5 quality + 0.3 speed + 0.2 fit.
// Estimated time grows by one base unit per 2000 words.
func Strategies(p Profile) []Strategy {
	scale := 1 + float64(p.Words)/2000
	out := make([]Strategy, 0, len(candidates))
	for _, c := range candidates {
		fit := c.fit[p.Bucket]
		out = append(out, Strategy{
			Name:          c.name,
			Quality:       c.quality,
			Speed:         c.speed,
			Fit:           fit,
			Score:         math.Round((weightQuality*c.quality+weightSpeed*c.speed+weightFit*fit)*1000) / 1000,
			EstimatedTime: time.Duration(float64(c.base) * scale).Round(time.Second),
		})
	}
	return out
}

// SelectStrategy returns the best scoring strategy that satisfies c, or the best overall when none does.
func SelectStrategy(p Profile, c Constraints) Strategy {
	all := Strategies(p)
	best, bestFeasible := -1, -1
	for i, s := range all {
		if best < 0 || s.Score > all[best].Score {
			best = i
		}
		if c.MaxTime > 0 && s.EstimatedTime > c.MaxTime {
			continue
		}
		if c.MinQuality > 0 && s.Quality < c.MinQuality {
			continue
		}
		if bestFeasible < 0 || s.Score > all[bestFeasible].Score {
			bestFeasible = i
		}
	}
	if bestFeasible >= 0 {
		return all[bestFeasible]
	}
	return all[best]
}
