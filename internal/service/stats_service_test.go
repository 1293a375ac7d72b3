package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
)

var statsNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

var defaultOpts = StatisticsOptions{
	ResponseSLA:   4 * time.Hour,
	ResolutionSLA: 24 * time.Hour,
	TrendDays:     7,
}

func statsTicket(status domain.TicketStatus, priority domain.TicketPriority, createdAgo time.Duration) domain.Ticket {
	return domain.Ticket{
		Status:    status,
		Priority:  priority,
		Category:  domain.DefaultCategory,
		CreatedAt: statsNow.Add(-createdAgo),
	}
}

func withResponse(t domain.Ticket, after time.Duration) domain.Ticket {
	at := t.CreatedAt.Add(after)
	t.ResponseTime = &at
	return t
}

func withResolution(t domain.Ticket, after time.Duration) domain.Ticket {
	at := t.CreatedAt.Add(after)
	t.ResolutionTime = &at
	return t
}

func TestComputeStatisticsEmpty(t *testing.T) {
	snap := ComputeStatistics(nil, statsNow, defaultOpts)

	assert.Zero(t, snap.Total)
	assert.Zero(t, snap.AvgResponseHours)
	assert.Zero(t, snap.AvgResolutionHours)
	assert.Equal(t, 100, snap.SLAComplianceRate, "no measurable tickets means full compliance")
	assert.Len(t, snap.Trend, 7)
}

func TestComputeStatisticsBucketsSumToTotal(t *testing.T) {
	tickets := []domain.Ticket{
		statsTicket(domain.TicketStatusOpen, domain.TicketPriorityLow, time.Hour),
		statsTicket(domain.TicketStatusOpen, domain.TicketPriorityMedium, time.Hour),
		statsTicket(domain.TicketStatusInProgress, domain.TicketPriorityHigh, 2*time.Hour),
		statsTicket(domain.TicketStatusResolved, domain.TicketPriorityLow, 30*time.Hour),
		statsTicket(domain.TicketStatusClosed, domain.TicketPriorityMedium, 50*time.Hour),
		// Legacy row with a status the dashboard does not know.
		statsTicket(domain.TicketStatus("Escalated"), domain.TicketPriorityHigh, time.Hour),
	}

	snap := ComputeStatistics(tickets, statsNow, defaultOpts)

	assert.Equal(t, 5, snap.Total)
	assert.Equal(t, snap.Total, snap.Open+snap.InProgress+snap.Resolved+snap.Closed)
	assert.Equal(t, 2, snap.Open)
	assert.Equal(t, 1, snap.InProgress)
	assert.Equal(t, 1, snap.Resolved)
	assert.Equal(t, 1, snap.Closed)

	priorityTotal := 0
	for _, n := range snap.ByPriority {
		priorityTotal += n
	}
	assert.Equal(t, snap.Total, priorityTotal, "unknown-status rows are excluded everywhere")
}

func TestComputeStatisticsCriticalCountsOnlyUnresolved(t *testing.T) {
	tickets := []domain.Ticket{
		statsTicket(domain.TicketStatusOpen, domain.TicketPriorityCritical, time.Hour),
		statsTicket(domain.TicketStatusResolved, domain.TicketPriorityLow, time.Hour),
		statsTicket(domain.TicketStatusResolved, domain.TicketPriorityCritical, time.Hour),
	}

	snap := ComputeStatistics(tickets, statsNow, defaultOpts)
	assert.Equal(t, 1, snap.Critical)
}

func TestComputeStatisticsAverages(t *testing.T) {
	tickets := []domain.Ticket{
		withResponse(statsTicket(domain.TicketStatusInProgress, domain.TicketPriorityMedium, 10*time.Hour), 2*time.Hour),
		withResponse(statsTicket(domain.TicketStatusInProgress, domain.TicketPriorityMedium, 10*time.Hour), 4*time.Hour),
		// No response yet, excluded from the response average.
		statsTicket(domain.TicketStatusOpen, domain.TicketPriorityMedium, time.Hour),
		withResolution(statsTicket(domain.TicketStatusResolved, domain.TicketPriorityMedium, 20*time.Hour), 12*time.Hour),
	}

	snap := ComputeStatistics(tickets, statsNow, defaultOpts)
	assert.InDelta(t, 3.0, snap.AvgResponseHours, 1e-9)
	assert.InDelta(t, 12.0, snap.AvgResolutionHours, 1e-9)
}

func TestComputeStatisticsSLACompliance(t *testing.T) {
	tests := []struct {
		name    string
		tickets []domain.Ticket
		want    int
	}{
		{
			name: "resolved within window",
			tickets: []domain.Ticket{
				withResolution(statsTicket(domain.TicketStatusResolved, domain.TicketPriorityLow, 30*time.Hour), 10*time.Hour),
			},
			want: 100,
		},
		{
			name: "resolved late",
			tickets: []domain.Ticket{
				withResolution(statsTicket(domain.TicketStatusClosed, domain.TicketPriorityLow, 50*time.Hour), 40*time.Hour),
			},
			want: 0,
		},
		{
			name: "open ticket measured against elapsed time",
			tickets: []domain.Ticket{
				statsTicket(domain.TicketStatusOpen, domain.TicketPriorityLow, time.Hour),
				statsTicket(domain.TicketStatusOpen, domain.TicketPriorityLow, 10*time.Hour),
			},
			want: 50,
		},
		{
			name: "responded ticket uses first response, not elapsed",
			tickets: []domain.Ticket{
				withResponse(statsTicket(domain.TicketStatusInProgress, domain.TicketPriorityLow, 48*time.Hour), time.Hour),
			},
			want: 100,
		},
		{
			name: "resolved without timestamp is excluded",
			tickets: []domain.Ticket{
				statsTicket(domain.TicketStatusResolved, domain.TicketPriorityLow, time.Hour),
			},
			want: 100,
		},
		{
			name: "rounded to nearest integer",
			tickets: []domain.Ticket{
				statsTicket(domain.TicketStatusOpen, domain.TicketPriorityLow, time.Hour),
				statsTicket(domain.TicketStatusOpen, domain.TicketPriorityLow, time.Hour),
				statsTicket(domain.TicketStatusOpen, domain.TicketPriorityLow, 10*time.Hour),
			},
			want: 67,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := ComputeStatistics(tt.tickets, statsNow, defaultOpts)
			assert.Equal(t, tt.want, snap.SLAComplianceRate)
			assert.GreaterOrEqual(t, snap.SLAComplianceRate, 0)
			assert.LessOrEqual(t, snap.SLAComplianceRate, 100)
		})
	}
}

func TestComputeStatisticsTrend(t *testing.T) {
	tickets := []domain.Ticket{
		statsTicket(domain.TicketStatusOpen, domain.TicketPriorityLow, 2*time.Hour),                                 // today
		statsTicket(domain.TicketStatusOpen, domain.TicketPriorityLow, 26*time.Hour),                                // yesterday
		withResolution(statsTicket(domain.TicketStatusResolved, domain.TicketPriorityLow, 26*time.Hour), time.Hour), // created and resolved yesterday
		statsTicket(domain.TicketStatusOpen, domain.TicketPriorityLow, 10*24*time.Hour),                             // outside the window
	}

	snap := ComputeStatistics(tickets, statsNow, defaultOpts)
	require.Len(t, snap.Trend, 7)

	assert.Equal(t, "2024-03-04", snap.Trend[0].Date, "oldest day first")
	assert.Equal(t, "2024-03-10", snap.Trend[6].Date)

	today := snap.Trend[6]
	yesterday := snap.Trend[5]
	assert.Equal(t, 1, today.Created)
	assert.Equal(t, 0, today.Resolved)
	assert.Equal(t, 2, yesterday.Created)
	assert.Equal(t, 1, yesterday.Resolved)

	total := 0
	for _, p := range snap.Trend {
		total += p.Created
	}
	assert.Equal(t, 3, total, "tickets outside the window are not counted")
}

func TestStatsServiceSnapshotWithoutCache(t *testing.T) {
	repo := newFakeTicketRepo(func() time.Time { return statsNow })
	repo.tickets["a"] = &domain.Ticket{
		ID:        "a",
		Status:    domain.TicketStatusOpen,
		Priority:  domain.TicketPriorityCritical,
		Category:  domain.DefaultCategory,
		CreatedAt: statsNow.Add(-time.Hour),
	}

	cfg := config.TicketingConfig{SLAResponseHours: 4, SLAResolutionHours: 24, TrendDays: 7}
	svc := NewStatsService(cfg, repo, nil, zap.NewNop())
	svc.SetClock(func() time.Time { return statsNow })

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Total)
	assert.Equal(t, 1, snap.Critical)
	assert.True(t, snap.GeneratedAt.Equal(statsNow))
}
