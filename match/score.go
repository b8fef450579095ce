// Package match implements compatibility scoring between golfers and tee
// time opportunities, and the recommendation cache built on top of it.
package match

import (
	"math"
	"sort"
	"time"

	"github.com/teemates/realtime/domain"
)

// Dimension weights. They sum to 100; every sub-score is clamped to
// [0, weight] so the total is always within [0, 100].
const (
	WeightAffinity      = 30.0
	WeightProximity     = 25.0
	WeightSkill         = 15.0
	WeightTimeRelevance = 15.0
	WeightAvailability  = 10.0
	WeightSocial        = 5.0
)

// socialSaturation is the shared-round count at which the social
// dimension reaches full weight.
const socialSaturation = 5

// earthRadiusKm is the mean Earth radius used for great-circle distance
const earthRadiusKm = 6371.0

// styleAffinity holds partial credit for related play styles. Exact
// matches score 1.0; pairs absent from this table score 0. Lookups are
// symmetric.
var styleAffinity = map[[2]domain.PlayStyle]float64{
	stylePair(domain.StyleCasual, domain.StyleSocial):        0.6,
	stylePair(domain.StyleCasual, domain.StylePractice):      0.4,
	stylePair(domain.StyleCompetitive, domain.StyleSpeed):    0.5,
	stylePair(domain.StyleCompetitive, domain.StylePractice): 0.3,
	stylePair(domain.StyleSocial, domain.StylePractice):      0.3,
}

func stylePair(a, b domain.PlayStyle) [2]domain.PlayStyle {
	if a < b {
		return [2]domain.PlayStyle{a, b}
	}
	return [2]domain.PlayStyle{b, a}
}

// Breakdown carries the per-dimension contribution of a match score
type Breakdown struct {
	Affinity      float64 `json:"affinity"`
	Proximity     float64 `json:"proximity"`
	Skill         float64 `json:"skill"`
	TimeRelevance float64 `json:"timeRelevance"`
	Availability  float64 `json:"availability"`
	Social        float64 `json:"social"`
}

// Match is a scored pairing of a user and an opportunity
type Match struct {
	UserID        string    `json:"userId"`
	OpportunityID string    `json:"opportunityId"`
	Score         float64   `json:"score"`
	Breakdown     Breakdown `json:"breakdown"`
	Reasons       []string  `json:"reasons"`
}

// ScorerConfig holds the tunable scoring parameters
type ScorerConfig struct {
	RadiusKm    float64 // proximity hard cutoff
	HorizonDays int     // time-relevance decay horizon
}

// Scorer computes compatibility scores. It is pure: the same inputs
// always produce the same Match.
type Scorer struct {
	cfg ScorerConfig
}

// NewScorer creates a scorer with the given parameters
func NewScorer(cfg ScorerConfig) *Scorer {
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = 80
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 14
	}
	return &Scorer{cfg: cfg}
}

// Score rates how well user fits the opportunity hosted by host.
// sharedRounds is the count of past rounds user and host played together.
// now anchors the time-relevance decay.
func (s *Scorer) Score(user *domain.User, opp *domain.Opportunity, host *domain.User, sharedRounds int, now time.Time) Match {
	b := Breakdown{
		Affinity:      s.affinityScore(user, opp, host),
		Proximity:     s.proximityScore(user, opp),
		Skill:         s.skillScore(user, host),
		TimeRelevance: s.timeScore(opp, now),
		Availability:  s.availabilityScore(opp),
		Social:        s.socialScore(sharedRounds),
	}

	total := b.Affinity + b.Proximity + b.Skill + b.TimeRelevance + b.Availability + b.Social

	return Match{
		UserID:        user.ID,
		OpportunityID: opp.ID,
		Score:         clamp(total, 0, 100),
		Breakdown:     b,
		Reasons:       reasons(b),
	}
}

func (s *Scorer) affinityScore(user *domain.User, opp *domain.Opportunity, host *domain.User) float64 {
	// Prefer the opportunity's declared style; fall back to the host's.
	style := opp.Style
	if style == "" && host != nil {
		style = host.Style
	}
	if user.Style == "" || style == "" {
		return 0
	}
	if user.Style == style {
		return WeightAffinity
	}
	return clamp(styleAffinity[stylePair(user.Style, style)]*WeightAffinity, 0, WeightAffinity)
}

func (s *Scorer) proximityScore(user *domain.User, opp *domain.Opportunity) float64 {
	d := haversineKm(user.HomeLat, user.HomeLng, opp.Lat, opp.Lng)
	if d >= s.cfg.RadiusKm {
		return 0
	}
	return clamp((1-d/s.cfg.RadiusKm)*WeightProximity, 0, WeightProximity)
}

func (s *Scorer) skillScore(user *domain.User, host *domain.User) float64 {
	if host == nil {
		return 0
	}
	a, b := domain.SkillRank(user.Skill), domain.SkillRank(host.Skill)
	if a < 0 || b < 0 {
		return 0
	}
	switch diff := abs(a - b); diff {
	case 0:
		return WeightSkill
	case 1:
		return clamp(0.6*WeightSkill, 0, WeightSkill)
	default:
		return 0
	}
}

func (s *Scorer) timeScore(opp *domain.Opportunity, now time.Time) float64 {
	horizon := time.Duration(s.cfg.HorizonDays) * 24 * time.Hour
	until := opp.StartTime.Sub(now)
	if until <= 0 || until >= horizon {
		return 0
	}
	return clamp((1-float64(until)/float64(horizon))*WeightTimeRelevance, 0, WeightTimeRelevance)
}

func (s *Scorer) availabilityScore(opp *domain.Opportunity) float64 {
	if opp.TotalSlots <= 0 || opp.OpenSlots <= 0 {
		return 0
	}
	return clamp(float64(opp.OpenSlots)/float64(opp.TotalSlots)*WeightAvailability, 0, WeightAvailability)
}

func (s *Scorer) socialScore(sharedRounds int) float64 {
	if sharedRounds <= 0 {
		return 0
	}
	if sharedRounds > socialSaturation {
		sharedRounds = socialSaturation
	}
	return clamp(float64(sharedRounds)/socialSaturation*WeightSocial, 0, WeightSocial)
}

// reasons builds the human-readable explanation list: one entry per
// dimension contributing more than half its weight, ordered by
// contribution descending, deduplicated, at most four.
func reasons(b Breakdown) []string {
	type candidate struct {
		text         string
		contribution float64
		weight       float64
	}
	candidates := []candidate{
		{"Similar play style", b.Affinity, WeightAffinity},
		{"Course is nearby", b.Proximity, WeightProximity},
		{"Comparable skill level", b.Skill, WeightSkill},
		{"Tee time is coming up soon", b.TimeRelevance, WeightTimeRelevance},
		{"Open slots available", b.Availability, WeightAvailability},
		{"You have played together before", b.Social, WeightSocial},
	}

	var kept []candidate
	for _, c := range candidates {
		if c.contribution > c.weight/2 {
			kept = append(kept, c)
		}
	}
	// Stable sort keeps the fixed dimension order for equal contributions,
	// so output is deterministic.
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].contribution > kept[j].contribution
	})

	seen := make(map[string]bool)
	var out []string
	for _, c := range kept {
		if seen[c.text] {
			continue
		}
		seen[c.text] = true
		out = append(out, c.text)
		if len(out) == 4 {
			break
		}
	}
	return out
}

// haversineKm returns the great-circle distance between two points
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180
	dLat := (lat2 - lat1) * degToRad
	dLng := (lng2 - lng1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
