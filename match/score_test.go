package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemates/realtime/domain"
)

var testNow = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

func testScorer() *Scorer {
	return NewScorer(ScorerConfig{RadiusKm: 80, HorizonDays: 14})
}

func testUser(id string) *domain.User {
	return &domain.User{
		ID:      id,
		Skill:   domain.SkillIntermediate,
		Style:   domain.StyleCasual,
		HomeLat: 52.37,
		HomeLng: 4.89,
		Active:  true,
	}
}

func testOpp(id, hostID string) *domain.Opportunity {
	return &domain.Opportunity{
		ID:         id,
		HostID:     hostID,
		CourseName: "Amsterdam Old Course",
		Lat:        52.37,
		Lng:        4.91,
		StartTime:  testNow.Add(24 * time.Hour),
		TotalSlots: 4,
		OpenSlots:  2,
		Style:      domain.StyleCasual,
		Status:     domain.OpportunityOpen,
	}
}

func TestScoreBounds(t *testing.T) {
	s := testScorer()

	t.Run("perfect alignment stays within bounds", func(t *testing.T) {
		user := testUser("u1")
		host := testUser("h1")
		opp := testOpp("o1", "h1")
		opp.OpenSlots = 4
		opp.StartTime = testNow.Add(time.Hour)

		m := s.Score(user, opp, host, 10, testNow)

		assert.LessOrEqual(t, m.Score, 100.0)
		assert.GreaterOrEqual(t, m.Score, 0.0)
		assert.LessOrEqual(t, m.Breakdown.Affinity, WeightAffinity)
		assert.LessOrEqual(t, m.Breakdown.Proximity, WeightProximity)
		assert.LessOrEqual(t, m.Breakdown.Skill, WeightSkill)
		assert.LessOrEqual(t, m.Breakdown.TimeRelevance, WeightTimeRelevance)
		assert.LessOrEqual(t, m.Breakdown.Availability, WeightAvailability)
		assert.LessOrEqual(t, m.Breakdown.Social, WeightSocial)
	})

	t.Run("every sub-score is non-negative", func(t *testing.T) {
		user := testUser("u1")
		user.Style = domain.StyleSpeed
		user.Skill = domain.SkillExpert
		user.HomeLat = 48.85 // Paris, far away
		user.HomeLng = 2.35
		host := testUser("h1")
		host.Skill = domain.SkillBeginner
		opp := testOpp("o1", "h1")
		opp.StartTime = testNow.Add(-time.Hour) // already started

		m := s.Score(user, opp, host, 0, testNow)

		assert.GreaterOrEqual(t, m.Breakdown.Affinity, 0.0)
		assert.GreaterOrEqual(t, m.Breakdown.Proximity, 0.0)
		assert.GreaterOrEqual(t, m.Breakdown.Skill, 0.0)
		assert.GreaterOrEqual(t, m.Breakdown.TimeRelevance, 0.0)
		assert.GreaterOrEqual(t, m.Breakdown.Availability, 0.0)
		assert.GreaterOrEqual(t, m.Breakdown.Social, 0.0)
	})
}

func TestScoreDeterminism(t *testing.T) {
	s := testScorer()
	user := testUser("u1")
	host := testUser("h1")
	host.Skill = domain.SkillAdvanced
	opp := testOpp("o1", "h1")

	first := s.Score(user, opp, host, 3, testNow)
	for i := 0; i < 10; i++ {
		again := s.Score(user, opp, host, 3, testNow)
		require.Equal(t, first, again, "same inputs must produce identical output")
	}
}

func TestAffinity(t *testing.T) {
	s := testScorer()
	host := testUser("h1")

	t.Run("exact style match earns full weight", func(t *testing.T) {
		user := testUser("u1")
		opp := testOpp("o1", "h1")
		m := s.Score(user, opp, host, 0, testNow)
		assert.Equal(t, WeightAffinity, m.Breakdown.Affinity)
	})

	t.Run("related styles earn partial credit symmetrically", func(t *testing.T) {
		userCasual := testUser("u1")
		userSocial := testUser("u2")
		userSocial.Style = domain.StyleSocial

		oppSocial := testOpp("o1", "h1")
		oppSocial.Style = domain.StyleSocial
		oppCasual := testOpp("o2", "h1")

		ab := s.Score(userCasual, oppSocial, host, 0, testNow).Breakdown.Affinity
		ba := s.Score(userSocial, oppCasual, host, 0, testNow).Breakdown.Affinity

		assert.Equal(t, ab, ba, "affinity table must be symmetric")
		assert.Greater(t, ab, 0.0)
		assert.Less(t, ab, WeightAffinity)
	})

	t.Run("unrelated styles earn zero", func(t *testing.T) {
		user := testUser("u1")
		user.Style = domain.StyleSpeed
		opp := testOpp("o1", "h1") // casual
		m := s.Score(user, opp, host, 0, testNow)
		assert.Equal(t, 0.0, m.Breakdown.Affinity)
	})
}

func TestSkill(t *testing.T) {
	s := testScorer()

	cases := []struct {
		name       string
		user, host domain.SkillTier
		wantFull   bool
		wantZero   bool
	}{
		{"same tier full", domain.SkillIntermediate, domain.SkillIntermediate, true, false},
		{"adjacent partial", domain.SkillIntermediate, domain.SkillAdvanced, false, false},
		{"two apart zero", domain.SkillBeginner, domain.SkillIntermediate, false, true},
		{"extremes zero", domain.SkillBeginner, domain.SkillExpert, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			user := testUser("u1")
			user.Skill = tc.user
			host := testUser("h1")
			host.Skill = tc.host
			opp := testOpp("o1", "h1")

			got := s.Score(user, opp, host, 0, testNow).Breakdown.Skill
			mirrored := func() float64 {
				u2 := testUser("u2")
				u2.Skill = tc.host
				h2 := testUser("h2")
				h2.Skill = tc.user
				return s.Score(u2, opp, h2, 0, testNow).Breakdown.Skill
			}()
			assert.Equal(t, got, mirrored, "skill adjacency must be symmetric")

			if tc.wantFull {
				assert.Equal(t, WeightSkill, got)
			} else if tc.wantZero {
				assert.Equal(t, 0.0, got)
			} else {
				assert.Greater(t, got, 0.0)
				assert.Less(t, got, WeightSkill)
			}
		})
	}
}

func TestProximity(t *testing.T) {
	s := testScorer()
	host := testUser("h1")

	t.Run("decays monotonically with distance", func(t *testing.T) {
		opp := testOpp("o1", "h1")
		near := testUser("u1") // ~1km away
		mid := testUser("u2")
		mid.HomeLat = 52.0 // ~45km away
		far := testUser("u3")
		far.HomeLat = 51.5 // ~100km away

		nearScore := s.Score(near, opp, host, 0, testNow).Breakdown.Proximity
		midScore := s.Score(mid, opp, host, 0, testNow).Breakdown.Proximity
		farScore := s.Score(far, opp, host, 0, testNow).Breakdown.Proximity

		assert.Greater(t, nearScore, midScore)
		assert.Greater(t, midScore, farScore)
		assert.Equal(t, 0.0, farScore, "beyond the radius cutoff the score is zero")
	})
}

func TestTimeRelevance(t *testing.T) {
	s := testScorer()
	user := testUser("u1")
	host := testUser("h1")

	t.Run("sooner scores higher within the horizon", func(t *testing.T) {
		soon := testOpp("o1", "h1")
		soon.StartTime = testNow.Add(2 * time.Hour)
		later := testOpp("o2", "h1")
		later.StartTime = testNow.Add(10 * 24 * time.Hour)

		soonScore := s.Score(user, soon, host, 0, testNow).Breakdown.TimeRelevance
		laterScore := s.Score(user, later, host, 0, testNow).Breakdown.TimeRelevance
		assert.Greater(t, soonScore, laterScore)
	})

	t.Run("past and beyond-horizon starts score zero", func(t *testing.T) {
		past := testOpp("o1", "h1")
		past.StartTime = testNow.Add(-time.Minute)
		distant := testOpp("o2", "h1")
		distant.StartTime = testNow.Add(30 * 24 * time.Hour)

		assert.Equal(t, 0.0, s.Score(user, past, host, 0, testNow).Breakdown.TimeRelevance)
		assert.Equal(t, 0.0, s.Score(user, distant, host, 0, testNow).Breakdown.TimeRelevance)
	})
}

func TestReasons(t *testing.T) {
	s := testScorer()

	t.Run("ordered by contribution descending and capped", func(t *testing.T) {
		user := testUser("u1")
		host := testUser("h1")
		opp := testOpp("o1", "h1")
		opp.OpenSlots = 4
		opp.StartTime = testNow.Add(time.Hour)

		m := s.Score(user, opp, host, 5, testNow)
		require.NotEmpty(t, m.Reasons)
		assert.LessOrEqual(t, len(m.Reasons), 4)
		assert.Equal(t, "Similar play style", m.Reasons[0], "affinity carries the largest weight here")

		// No duplicates
		seen := make(map[string]bool)
		for _, r := range m.Reasons {
			assert.False(t, seen[r], "reason %q duplicated", r)
			seen[r] = true
		}
	})

	t.Run("weak dimensions produce no reason", func(t *testing.T) {
		user := testUser("u1")
		user.Style = domain.StyleSpeed
		user.HomeLat = 48.85
		user.HomeLng = 2.35
		host := testUser("h1")
		host.Skill = domain.SkillBeginner
		opp := testOpp("o1", "h1")
		opp.StartTime = testNow.Add(13 * 24 * time.Hour)
		opp.OpenSlots = 1

		m := s.Score(user, opp, host, 0, testNow)
		assert.NotContains(t, m.Reasons, "Similar play style")
		assert.NotContains(t, m.Reasons, "Course is nearby")
	})
}
