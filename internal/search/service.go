package search

import (
	"context"
	"log/slog"
)

// Service is the facade that tries Meilisearch first and falls back to a
// direct scan.
type Service struct {
	meili    *Meili
	fallback Searcher
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback Searcher) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// Search tries Meilisearch if healthy, otherwise falls back to the scan.
func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: "meilisearch"}, nil
		}
		slog.Warn("meilisearch error, falling back to scan", "error", err)
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		return Response{}, err
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: "scan"}, nil
}

// Healthy reports whether the primary index is in use.
func (s *Service) Healthy() bool {
	return s.meili != nil && s.meili.Healthy()
}

// IndexRegistrations indexes registrations (fire-and-forget to Meilisearch).
func (s *Service) IndexRegistrations(records []Registration) {
	if s.meili == nil || !s.meili.Healthy() || len(records) == 0 {
		return
	}
	go func() {
		if err := s.meili.IndexRegistrations(records); err != nil {
			slog.Warn("index registrations", "count", len(records), "error", err)
		}
	}()
}

// ReindexAll pushes every registration the fallback can load into
// Meilisearch. Called at startup and by the operator CLI.
func (s *Service) ReindexAll(ctx context.Context, load func(context.Context) ([]Registration, error)) error {
	if s.meili == nil || !s.meili.Healthy() {
		return nil
	}
	records, err := load(ctx)
	if err != nil {
		return err
	}
	return s.meili.IndexRegistrations(records)
}

func nonNil(r []Registration) []Registration {
	if r == nil {
		return []Registration{}
	}
	return r
}
