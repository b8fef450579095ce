package match

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/teemates/realtime/domain"
	"github.com/teemates/realtime/errors"
)

// candidatePoolLimit bounds how many users or opportunities a single
// scoring pass reads from the repository.
const candidatePoolLimit = 500

// EngineConfig holds the selection parameters layered on top of scoring
type EngineConfig struct {
	ScorerConfig
	MinScore   float64 // matches below this are dropped
	MaxResults int     // hard cap on returned matches
}

// Engine runs scoring passes against the repository
type Engine struct {
	repo   domain.Repository
	scorer *Scorer
	cfg    EngineConfig
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewEngine creates a scoring engine over the given repository
func NewEngine(repo domain.Repository, cfg EngineConfig, logger *zap.SugaredLogger) *Engine {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 20
	}
	return &Engine{
		repo:   repo,
		scorer: NewScorer(cfg.ScorerConfig),
		cfg:    cfg,
		logger: logger.Named("match"),
		now:    time.Now,
	}
}

// MatchesForOpportunity scores active users against one opportunity and
// returns the best candidates to invite. The host and users already
// holding a slot are excluded, as are opportunities with nothing to join.
func (e *Engine) MatchesForOpportunity(ctx context.Context, opportunityID string, limit int) ([]Match, error) {
	opp, err := e.repo.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, errors.Wrapf(err, "load opportunity %s", opportunityID)
	}
	if opp.Status != domain.OpportunityOpen || opp.OpenSlots == 0 {
		return nil, nil
	}

	host, err := e.repo.GetUser(ctx, opp.HostID)
	if err != nil {
		return nil, errors.Wrapf(err, "load host %s", opp.HostID)
	}

	slots, err := e.repo.ListSlots(ctx, opp.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "list slots for %s", opp.ID)
	}
	joined := make(map[string]bool, len(slots))
	for _, s := range slots {
		joined[s.UserID] = true
	}

	users, err := e.repo.ListActiveUsers(ctx, candidatePoolLimit)
	if err != nil {
		return nil, errors.Wrap(err, "list candidate users")
	}

	now := e.now()
	var matches []Match
	for _, u := range users {
		if u.ID == opp.HostID || joined[u.ID] {
			continue
		}
		shared, err := e.repo.CountSharedRounds(ctx, u.ID, opp.HostID)
		if err != nil {
			e.logger.Warnw("Shared round lookup failed, scoring without social dimension",
				"user_id", u.ID, "host_id", opp.HostID, "error", err)
			shared = 0
		}
		m := e.scorer.Score(u, opp, host, shared, now)
		if m.Score >= e.cfg.MinScore {
			matches = append(matches, m)
		}
	}

	sortMatches(matches)
	return capMatches(matches, e.effectiveLimit(limit)), nil
}

// MatchesForUser scores open opportunities within the horizon for one
// user. Opportunities the user hosts or has joined are excluded, as are
// those with no open slots.
func (e *Engine) MatchesForUser(ctx context.Context, userID string, limit int) ([]Match, error) {
	user, err := e.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "load user %s", userID)
	}

	joinedIDs, err := e.repo.ListJoinedOpportunityIDs(ctx, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "list joined opportunities for %s", userID)
	}
	joined := make(map[string]bool, len(joinedIDs))
	for _, id := range joinedIDs {
		joined[id] = true
	}

	now := e.now()
	horizon := now.Add(time.Duration(e.cfg.HorizonDays) * 24 * time.Hour)
	opps, err := e.repo.ListOpenOpportunities(ctx, now, horizon, candidatePoolLimit)
	if err != nil {
		return nil, errors.Wrap(err, "list open opportunities")
	}

	var matches []Match
	for _, opp := range opps {
		if joined[opp.ID] || opp.HostID == userID || opp.OpenSlots == 0 {
			continue
		}
		host, err := e.repo.GetUser(ctx, opp.HostID)
		if err != nil {
			e.logger.Warnw("Host lookup failed, skipping opportunity",
				"opportunity_id", opp.ID, "host_id", opp.HostID, "error", err)
			continue
		}
		shared, err := e.repo.CountSharedRounds(ctx, userID, opp.HostID)
		if err != nil {
			shared = 0
		}
		m := e.scorer.Score(user, opp, host, shared, now)
		if m.Score >= e.cfg.MinScore {
			matches = append(matches, m)
		}
	}

	sortMatches(matches)
	return capMatches(matches, e.effectiveLimit(limit)), nil
}

func (e *Engine) effectiveLimit(limit int) int {
	if limit <= 0 || limit > e.cfg.MaxResults {
		return e.cfg.MaxResults
	}
	return limit
}

// sortMatches orders by score descending with a deterministic tie-break
func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].OpportunityID != matches[j].OpportunityID {
			return matches[i].OpportunityID < matches[j].OpportunityID
		}
		return matches[i].UserID < matches[j].UserID
	})
}

func capMatches(matches []Match, limit int) []Match {
	if limit > 0 && len(matches) > limit {
		return matches[:limit]
	}
	return matches
}
