package business

import (
	"slices"

	"go.uber.org/zap"

	"github.com/drilonhametaj25/client-sniper/internal/normalize"
	"github.com/drilonhametaj25/client-sniper/internal/similarity"
)

// Signal names one field comparison that contributes to the composite score.
type Signal string

// Scoring signals.
const (
	SignalName   Signal = "name"
	SignalCity   Signal = "city"
	SignalDomain Signal = "domain"
	SignalPhone  Signal = "phone"
)

// Signal weights in hundredths. Integer points keep sums exact, so a
// candidate at 40+30 compares equal to a 0.7 threshold.
const (
	pointsName   = 40
	pointsCity   = 20
	pointsDomain = 30
	pointsPhone  = 10
	pointsTotal  = pointsName + pointsCity + pointsDomain + pointsPhone
)

// NameSimilarityMin is the name ratio at or above which the name signal holds.
const NameSimilarityMin = 0.8

// ratioEpsilon absorbs float rounding in ratios such as 1-3/15.
const ratioEpsilon = 1e-9

// DefaultThreshold is the exclusive acceptance threshold for a match.
const DefaultThreshold = 0.7

// Scored is a candidate entity together with its composite score.
type Scored struct {
	Entity    Entity
	Score     float64
	Signals   []Signal
	NameRatio float64
}

// probe holds the normalized comparison fields of an observation.
type probe struct {
	name   string
	city   string
	domain string
	phone  string
}

func probeOf(o Observation) probe {
	return probe{
		name:   normalize.Name(o.BusinessName),
		city:   normalize.City(o.City),
		domain: normalize.ExtractDomain(o.WebsiteURL),
		phone:  normalize.NormalizePhone(o.Phone),
	}
}

// Score computes the composite similarity between o and candidate. Each
// signal contributes its full weight or nothing; a field missing on either
// side earns nothing.
func Score(o Observation, candidate Entity) Scored {
	return scoreProbe(probeOf(o), candidate)
}

func scoreProbe(p probe, c Entity) Scored {
	s := Scored{Entity: c}
	points := 0

	if name := normalize.Name(c.BusinessName); p.name != "" && name != "" {
		s.NameRatio = similarity.Ratio(p.name, name)
		if s.NameRatio >= NameSimilarityMin-ratioEpsilon {
			points += pointsName
			s.Signals = append(s.Signals, SignalName)
		}
	}
	if city := normalize.City(c.City); p.city != "" && city == p.city {
		points += pointsCity
		s.Signals = append(s.Signals, SignalCity)
	}
	if domain := normalize.ExtractDomain(c.WebsiteURL); p.domain != "" && domain == p.domain {
		points += pointsDomain
		s.Signals = append(s.Signals, SignalDomain)
	}
	if phone := normalize.NormalizePhone(c.Phone); p.phone != "" && phone == p.phone {
		points += pointsPhone
		s.Signals = append(s.Signals, SignalPhone)
	}

	s.Score = float64(points) / pointsTotal
	return s
}

// Rank scores every candidate and sorts them by score, descending. Ties keep
// candidate order.
func Rank(o Observation, candidates []Entity) []Scored {
	p := probeOf(o)
	ranked := make([]Scored, len(candidates))
	for i, c := range candidates {
		ranked[i] = scoreProbe(p, c)
	}
	slices.SortStableFunc(ranked, func(a, b Scored) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	return ranked
}

// Decision is the outcome of choosing among ranked candidates.
type Decision struct {
	// Match is true when Best scored above the threshold.
	Match bool
	Best  *Scored
	// Ambiguous is true when more than one candidate shares the winning score.
	Ambiguous bool
}

// Decide selects the top ranked candidate if its score exceeds threshold.
// Otherwise the decision is a new entity. ranked must be sorted by Rank.
func Decide(ranked []Scored, threshold float64) Decision {
	if len(ranked) == 0 {
		return Decision{}
	}
	top := ranked[0]
	if top.Score <= threshold {
		return Decision{Best: &top}
	}

	d := Decision{Match: true, Best: &top}
	if len(ranked) > 1 && ranked[1].Score == top.Score {
		d.Ambiguous = true
		ids := make([]string, 0, len(ranked))
		for _, r := range ranked {
			if r.Score != top.Score {
				break
			}
			ids = append(ids, r.Entity.ID)
		}
		zap.L().Warn("resolve: ambiguous match",
			zap.Float64("score", top.Score),
			zap.Strings("candidate_ids", ids),
			zap.String("chosen_id", top.Entity.ID),
		)
	}
	return d
}
