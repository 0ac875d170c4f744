package orchestrator

import (
	"context"
	"time"

	apperrors "github.com/deidaraiorek/sitesearch/internal/errors"
	"github.com/deidaraiorek/sitesearch/internal/storage"
)

type Statistics struct {
	Total    TotalStatistics  `json:"total"`
	Detailed []SiteStatistics `json:"detailed"`
}

type TotalStatistics struct {
	Sites    int  `json:"sites"`
	Pages    int  `json:"pages"`
	Lemmas   int  `json:"lemmas"`
	Indexing bool `json:"indexing"`
}

type SiteStatistics struct {
	URL        string         `json:"url"`
	Name       string         `json:"name"`
	Status     storage.Status `json:"status"`
	StatusTime time.Time      `json:"statusTime"`
	Error      string         `json:"error,omitempty"`
	Pages      int            `json:"pages"`
	Lemmas     int            `json:"lemmas"`
}

// Statistics reports corpus totals and the state of every persisted site.
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	sites, err := s.store.ListSites(ctx)
	if err != nil {
		return nil, apperrors.StorageError("failed to list sites", err)
	}

	stats := &Statistics{
		Total:    TotalStatistics{Sites: len(sites), Indexing: s.Running()},
		Detailed: make([]SiteStatistics, 0, len(sites)),
	}
	if stats.Total.Pages, err = s.store.CountPages(ctx, 0); err != nil {
		return nil, apperrors.StorageError("failed to count pages", err)
	}
	if stats.Total.Lemmas, err = s.store.CountLemmas(ctx, 0); err != nil {
		return nil, apperrors.StorageError("failed to count lemmas", err)
	}

	for _, site := range sites {
		detail := SiteStatistics{
			URL:        site.URL,
			Name:       site.Name,
			Status:     site.Status,
			StatusTime: site.StatusTime,
			Error:      site.LastError,
		}
		if detail.Pages, err = s.store.CountPages(ctx, site.ID); err != nil {
			return nil, apperrors.StorageError("failed to count site pages", err)
		}
		if detail.Lemmas, err = s.store.CountLemmas(ctx, site.ID); err != nil {
			return nil, apperrors.StorageError("failed to count site lemmas", err)
		}
		stats.Detailed = append(stats.Detailed, detail)
	}
	return stats, nil
}
