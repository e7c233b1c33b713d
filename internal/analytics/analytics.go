package analytics

import (
	"context"
	"time"

	"slackmod/internal/audit"
	"slackmod/internal/storage"
)

type Service struct {
	store *storage.Store
}

func New(store *storage.Store) *Service {
	return &Service{store: store}
}

type Report struct {
	Total       int `json:"total"`
	Flagged     int `json:"flagged"`
	Deleted     int `json:"deleted"`
	Deactivated int `json:"deactivated"`
	Ignored     int `json:"ignored"`
}

func (s *Service) Report(ctx context.Context, since time.Time) (Report, error) {
	counts, err := s.store.CountAuditEvents(ctx, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Flagged:     counts[audit.EventRateFlagged],
		Deleted:     counts[audit.EventMessagesDeleted],
		Deactivated: counts[audit.EventUserDeactivated],
		Ignored:     counts[audit.EventAlertIgnored],
	}
	for _, count := range counts {
		report.Total += count
	}
	return report, nil
}
