// Package indexer maintains lemmas and postings for stored pages. Every
// mutation runs in one write transaction so lemma frequencies always equal
// the number of postings that reference them once it commits.
package indexer

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	apperrors "github.com/deidaraiorek/sitesearch/internal/errors"
	"github.com/deidaraiorek/sitesearch/internal/logging"
	"github.com/deidaraiorek/sitesearch/internal/storage"
	"github.com/deidaraiorek/sitesearch/internal/textprocessor"
)

type Indexer struct {
	store  *storage.Store
	text   *textprocessor.TextProcessor
	logger zerolog.Logger
}

func New(store *storage.Store, text *textprocessor.TextProcessor, logger zerolog.Logger) *Indexer {
	return &Indexer{
		store:  store,
		text:   text,
		logger: logging.Component(logger, "indexer"),
	}
}

// AddPage stores a fetched page and, when it was fetched with a 2xx status,
// indexes its content in the same transaction.
func (ix *Indexer) AddPage(ctx context.Context, page *storage.Page) error {
	var counts map[string]int
	if page.OK() {
		counts = ix.text.CountLemmas(page.Content)
	}

	err := ix.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.InsertPage(ctx, page); err != nil {
			return err
		}
		return indexCounts(ctx, tx, page.ID, counts)
	})
	if err != nil {
		return err
	}

	ix.logger.Debug().
		Int64("page_id", page.ID).
		Str("path", page.Path).
		Int("code", page.Code).
		Int("lemmas", len(counts)).
		Msg("Page stored")
	return nil
}

// IndexPage records counts as the posting set of an already stored page.
// Indexing the same counts again leaves postings and frequencies unchanged.
func (ix *Indexer) IndexPage(ctx context.Context, page *storage.Page, counts map[string]int) error {
	return ix.store.WithTx(ctx, func(tx *storage.Tx) error {
		return indexCounts(ctx, tx, page.ID, counts)
	})
}

func indexCounts(ctx context.Context, tx *storage.Tx, pageID int64, counts map[string]int) error {
	existing, err := tx.FindPostingsByPage(ctx, pageID)
	if err != nil {
		return fmt.Errorf("failed to load postings of page %d: %w", pageID, err)
	}

	// sorted so concurrent writers touch lemmas in the same order
	forms := make([]string, 0, len(counts))
	for form := range counts {
		forms = append(forms, form)
	}
	sort.Strings(forms)

	kept := make(map[int64]bool, len(forms))
	for _, form := range forms {
		rank := float64(counts[form])

		lemma, err := tx.FindLemmaByForm(ctx, form)
		if err != nil {
			return fmt.Errorf("failed to query lemma %q: %w", form, err)
		}

		if lemma == nil {
			if lemma, err = tx.InsertLemma(ctx, form, 1); err != nil {
				return err
			}
		} else {
			posting, err := tx.FindPosting(ctx, pageID, lemma.ID)
			if err != nil {
				return err
			}
			if posting != nil {
				kept[lemma.ID] = true
				if posting.Rank != rank {
					if err := tx.UpdatePostingRank(ctx, posting.ID, rank); err != nil {
						return err
					}
				}
				continue
			}
			if err := tx.AddLemmaFrequency(ctx, lemma.ID, 1); err != nil {
				return fmt.Errorf("failed to update frequency of lemma %q: %w", form, err)
			}
		}

		kept[lemma.ID] = true
		if err := tx.InsertPosting(ctx, &storage.Posting{PageID: pageID, LemmaID: lemma.ID, Rank: rank}); err != nil {
			return fmt.Errorf("failed to insert posting for lemma %q: %w", form, err)
		}
	}

	for _, p := range existing {
		if kept[p.LemmaID] {
			continue
		}
		if err := tx.DeletePosting(ctx, p.ID); err != nil {
			return err
		}
		if err := releaseLemma(ctx, tx, p.LemmaID); err != nil {
			return err
		}
	}
	return nil
}

// releaseLemma drops one page reference from a lemma, deleting the lemma
// when no page references it any more. The posting must already be gone.
func releaseLemma(ctx context.Context, tx *storage.Tx, lemmaID int64) error {
	lemma, err := tx.FindLemmaByID(ctx, lemmaID)
	if err != nil {
		return err
	}
	if lemma == nil {
		return apperrors.Inconsistency(fmt.Sprintf("posting references missing lemma %d", lemmaID))
	}
	if lemma.Frequency <= 1 {
		return tx.DeleteLemma(ctx, lemmaID)
	}
	return tx.AddLemmaFrequency(ctx, lemmaID, -1)
}

// DeindexPage removes a page, its postings and its share of every lemma
// frequency. A page without postings is simply deleted.
func (ix *Indexer) DeindexPage(ctx context.Context, page *storage.Page) error {
	var released int
	err := ix.store.WithTx(ctx, func(tx *storage.Tx) error {
		postings, err := tx.FindPostingsByPage(ctx, page.ID)
		if err != nil {
			return err
		}
		if _, err := tx.DeletePostingsByPage(ctx, page.ID); err != nil {
			return err
		}
		for _, p := range postings {
			if err := releaseLemma(ctx, tx, p.LemmaID); err != nil {
				return err
			}
		}
		released = len(postings)
		return tx.DeletePage(ctx, page.ID)
	})
	if err != nil {
		return err
	}

	ix.logger.Debug().Int64("page_id", page.ID).Str("path", page.Path).Int("postings", released).Msg("Page deindexed")
	return nil
}

// DeindexSite deletes a site row with all of its pages and postings, and
// lowers the lemma frequencies accordingly. It reports whether the site
// existed.
func (ix *Indexer) DeindexSite(ctx context.Context, url string) (bool, error) {
	var existed bool
	err := ix.store.WithTx(ctx, func(tx *storage.Tx) error {
		site, err := tx.FindSiteByURL(ctx, url)
		if err != nil || site == nil {
			return err
		}
		existed = true

		if err := tx.DecrementLemmasOfSite(ctx, site.ID); err != nil {
			return err
		}
		if _, err := tx.DeleteSiteByURL(ctx, url); err != nil {
			return err
		}
		_, err = tx.DeleteUnusedLemmas(ctx)
		return err
	})
	if err != nil {
		return false, err
	}

	if existed {
		ix.logger.Info().Str("site", url).Msg("Site removed from index")
	}
	return existed, nil
}

// Verify checks that every lemma frequency equals its posting count.
func (ix *Indexer) Verify(ctx context.Context) error {
	drifts, err := ix.store.LemmaDrifts(ctx)
	if err != nil {
		return apperrors.StorageError("failed to verify lemma frequencies", err)
	}
	if len(drifts) == 0 {
		return nil
	}

	first := drifts[0]
	return apperrors.Inconsistency(fmt.Sprintf("%d lemmas drifted from their posting counts", len(drifts))).
		WithDetail("lemma", first.Form).
		WithDetail("frequency", fmt.Sprint(first.Frequency)).
		WithDetail("postings", fmt.Sprint(first.Postings))
}
