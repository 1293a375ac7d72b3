package service

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/repository"
)

const statsCacheKey = "helpdesk:stats:snapshot"

// StatisticsOptions tunes the aggregate computation.
type StatisticsOptions struct {
	ResponseSLA   time.Duration
	ResolutionSLA time.Duration
	TrendDays     int
}

// TrendPoint is one day in the new-vs-resolved series.
type TrendPoint struct {
	Date     string `json:"date"`
	Created  int    `json:"created"`
	Resolved int    `json:"resolved"`
}

// StatisticsSnapshot is the point-in-time aggregate the dashboard reads.
type StatisticsSnapshot struct {
	Total              int            `json:"total"`
	Open               int            `json:"open"`
	InProgress         int            `json:"in_progress"`
	Resolved           int            `json:"resolved"`
	Closed             int            `json:"closed"`
	Critical           int            `json:"critical"`
	ByPriority         map[string]int `json:"by_priority"`
	ByCategory         map[string]int `json:"by_category"`
	AvgResponseHours   float64        `json:"avg_response_hours"`
	AvgResolutionHours float64        `json:"avg_resolution_hours"`
	SLAComplianceRate  int            `json:"sla_compliance_rate"`
	Trend              []TrendPoint   `json:"trend"`
	GeneratedAt        time.Time      `json:"generated_at"`
}

// ComputeStatistics derives the full snapshot from a ticket collection.
// It is pure: every call re-derives from the raw slice, there is no
// incremental state. Tickets missing a field a metric needs are excluded
// from that metric only; tickets with an unrecognized status are skipped
// entirely so the status buckets always sum to the total.
func ComputeStatistics(tickets []domain.Ticket, now time.Time, opts StatisticsOptions) StatisticsSnapshot {
	snap := StatisticsSnapshot{
		ByPriority:  make(map[string]int),
		ByCategory:  make(map[string]int),
		GeneratedAt: now,
	}

	var responseSum, resolutionSum float64
	var responseCount, resolutionCount int
	var slaMet, slaTotal int

	for i := range tickets {
		t := &tickets[i]
		switch t.Status {
		case domain.TicketStatusOpen:
			snap.Open++
		case domain.TicketStatusInProgress:
			snap.InProgress++
		case domain.TicketStatusResolved:
			snap.Resolved++
		case domain.TicketStatusClosed:
			snap.Closed++
		default:
			continue
		}
		snap.Total++
		snap.ByPriority[string(t.Priority)]++
		snap.ByCategory[t.Category]++

		if t.Priority == domain.TicketPriorityCritical && t.Unresolved() {
			snap.Critical++
		}

		if t.ResponseTime != nil {
			responseSum += t.ResponseTime.Sub(t.CreatedAt).Hours()
			responseCount++
		}
		if t.ResolutionTime != nil {
			resolutionSum += t.ResolutionTime.Sub(t.CreatedAt).Hours()
			resolutionCount++
		}

		if met, ok := inSLA(t, now, opts); ok {
			slaTotal++
			if met {
				slaMet++
			}
		}
	}

	if responseCount > 0 {
		snap.AvgResponseHours = responseSum / float64(responseCount)
	}
	if resolutionCount > 0 {
		snap.AvgResolutionHours = resolutionSum / float64(resolutionCount)
	}

	snap.SLAComplianceRate = 100
	if slaTotal > 0 {
		snap.SLAComplianceRate = int(math.Round(float64(slaMet) / float64(slaTotal) * 100))
	}

	snap.Trend = computeTrend(tickets, now, opts.TrendDays)
	return snap
}

// inSLA reports whether the ticket met its SLA and whether it qualifies
// for the compliance denominator at all. A resolved ticket with no
// resolution timestamp cannot be measured and is excluded.
func inSLA(t *domain.Ticket, now time.Time, opts StatisticsOptions) (met, ok bool) {
	switch t.Status {
	case domain.TicketStatusResolved, domain.TicketStatusClosed:
		if t.ResolutionTime == nil {
			return false, false
		}
		return t.ResolutionTime.Sub(t.CreatedAt) <= opts.ResolutionSLA, true
	default:
		elapsed := now.Sub(t.CreatedAt)
		if t.ResponseTime != nil {
			elapsed = t.ResponseTime.Sub(t.CreatedAt)
		}
		return elapsed <= opts.ResponseSLA, true
	}
}

// computeTrend buckets creations and resolutions per UTC day over the
// trailing window, most recent day last.
func computeTrend(tickets []domain.Ticket, now time.Time, days int) []TrendPoint {
	if days <= 0 {
		days = 7
	}
	points := make([]TrendPoint, days)
	today := now.UTC().Truncate(24 * time.Hour)
	index := make(map[string]*TrendPoint, days)
	for i := 0; i < days; i++ {
		day := today.AddDate(0, 0, i-days+1)
		key := day.Format("2006-01-02")
		points[i] = TrendPoint{Date: key}
		index[key] = &points[i]
	}

	for i := range tickets {
		t := &tickets[i]
		if p, ok := index[t.CreatedAt.UTC().Format("2006-01-02")]; ok {
			p.Created++
		}
		if t.ResolutionTime != nil {
			if p, ok := index[t.ResolutionTime.UTC().Format("2006-01-02")]; ok {
				p.Resolved++
			}
		}
	}
	return points
}

// StatsService serves dashboard statistics, re-deriving from the ticket
// collection and caching the snapshot briefly in Redis.
type StatsService struct {
	tickets repository.TicketRepository
	cache   *persistence.Redis
	logger  *zap.Logger
	cfg     config.TicketingConfig
	now     func() time.Time
}

// NewStatsService constructs the service. cache may be nil.
func NewStatsService(cfg config.TicketingConfig, tickets repository.TicketRepository, cache *persistence.Redis, logger *zap.Logger) *StatsService {
	return &StatsService{
		tickets: tickets,
		cache:   cache,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Snapshot returns current statistics, from cache when fresh.
func (s *StatsService) Snapshot(ctx context.Context) (*StatisticsSnapshot, error) {
	if raw, ok := s.cache.GetCached(ctx, statsCacheKey); ok {
		var snap StatisticsSnapshot
		if err := json.Unmarshal([]byte(raw), &snap); err == nil {
			return &snap, nil
		}
		s.logger.Warn("discarding unreadable cached statistics snapshot")
	}

	tickets, err := s.tickets.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	snap := ComputeStatistics(tickets, s.now(), StatisticsOptions{
		ResponseSLA:   time.Duration(s.cfg.SLAResponseHours) * time.Hour,
		ResolutionSLA: time.Duration(s.cfg.SLAResolutionHours) * time.Hour,
		TrendDays:     s.cfg.TrendDays,
	})

	if encoded, err := json.Marshal(snap); err == nil {
		s.cache.SetCached(ctx, statsCacheKey, string(encoded), s.cfg.StatsCacheTTL())
	}
	return &snap, nil
}

// SetClock overrides the time source. Used by tests.
func (s *StatsService) SetClock(now func() time.Time) {
	s.now = now
}
