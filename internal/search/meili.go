package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxRegistrations = "sssbcsj_registrations"

// ErrUnhealthy is returned by a search while Meilisearch is unreachable.
var ErrUnhealthy = errors.New("meilisearch unhealthy")

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client   meili.ServiceManager
	healthy  atomic.Bool
	done     chan struct{}
	interval time.Duration
}

// NewMeili creates a Meilisearch client and configures the registration
// index. An unreachable server is not an error: the client reports itself
// unhealthy and keeps probing in the background.
func NewMeili(url, apiKey string) *Meili {
	return newMeili(url, apiKey, 10*time.Second)
}

func newMeili(url, apiKey string, interval time.Duration) *Meili {
	m := &Meili{
		client:   meili.New(url, meili.WithAPIKey(apiKey)),
		done:     make(chan struct{}),
		interval: interval,
	}

	if _, err := m.client.Health(); err != nil {
		slog.Warn("meilisearch unavailable", "url", url, "error", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxRegistrations,
			primaryKey: "id",
			filterable: []string{"row"},
			searchable: []string{"text"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
		}); err != nil {
			slog.Debug("create index failed, may already exist", "index", idx.uid, "error", err)
		}

		index := m.client.Index(idx.uid)
		filterable := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterable[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			slog.Warn("update filterable attributes", "index", idx.uid, "error", err)
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			slog.Warn("update searchable attributes", "index", idx.uid, "error", err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				slog.Info("meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the registration index.
func (m *Meili) Search(ctx context.Context, q Query) ([]Registration, int, error) {
	if !m.healthy.Load() {
		return nil, 0, ErrUnhealthy
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	limit := int64(q.Limit)
	if limit <= 0 || limit > MaxHits {
		limit = MaxHits
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID: idxRegistrations,
			Query:    q.Text,
			Limit:    limit,
			Offset:   int64(q.Offset),
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Registration
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			if r, ok := hitToRegistration(hit); ok {
				results = append(results, r)
			}
		}
	}
	return results, total, nil
}

func hitToRegistration(hit meili.Hit) (Registration, bool) {
	var r Registration
	if err := decode(hit, "id", &r.ID); err != nil || r.ID == "" {
		return Registration{}, false
	}
	_ = decode(hit, "row", &r.Row)
	_ = decode(hit, "cells", &r.Cells)
	_ = decode(hit, "text", &r.Text)
	return r, true
}

func decode(hit meili.Hit, key string, dst any) error {
	raw, ok := hit[key]
	if !ok {
		return fmt.Errorf("missing %s", key)
	}
	return json.Unmarshal(raw, dst)
}

// IndexRegistrations adds or replaces registrations by row.
func (m *Meili) IndexRegistrations(records []Registration) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxRegistrations).AddDocuments(records, nil)
	return err
}
