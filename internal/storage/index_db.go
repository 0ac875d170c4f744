package storage

import (
	"context"
	"database/sql"
	"fmt"
)

type Lemma struct {
	ID        int64
	Form      string
	Frequency int
}

type Posting struct {
	ID      int64
	PageID  int64
	LemmaID int64
	Rank    float64
}

// LemmaDrift is a lemma whose stored frequency differs from the number of
// postings that reference it.
type LemmaDrift struct {
	Lemma
	Postings int
}

// FindLemmaByForm returns nil when the lemma is not in the corpus.
func (qs queries) FindLemmaByForm(ctx context.Context, form string) (*Lemma, error) {
	var lemma Lemma
	err := qs.q.QueryRowContext(ctx,
		"SELECT id, lemma, frequency FROM lemmas WHERE lemma = ?", form,
	).Scan(&lemma.ID, &lemma.Form, &lemma.Frequency)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lemma, nil
}

func (qs queries) FindLemmaByID(ctx context.Context, id int64) (*Lemma, error) {
	var lemma Lemma
	err := qs.q.QueryRowContext(ctx,
		"SELECT id, lemma, frequency FROM lemmas WHERE id = ?", id,
	).Scan(&lemma.ID, &lemma.Form, &lemma.Frequency)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lemma, nil
}

func (qs queries) InsertLemma(ctx context.Context, form string, frequency int) (*Lemma, error) {
	result, err := qs.q.ExecContext(ctx,
		"INSERT INTO lemmas (lemma, frequency) VALUES (?, ?)", form, frequency)
	if err != nil {
		return nil, fmt.Errorf("failed to insert lemma %q: %w", form, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Lemma{ID: id, Form: form, Frequency: frequency}, nil
}

// AddLemmaFrequency adjusts a lemma's frequency by delta.
func (qs queries) AddLemmaFrequency(ctx context.Context, id int64, delta int) error {
	_, err := qs.q.ExecContext(ctx,
		"UPDATE lemmas SET frequency = frequency + ? WHERE id = ?", delta, id)
	return err
}

func (qs queries) DeleteLemma(ctx context.Context, id int64) error {
	_, err := qs.q.ExecContext(ctx, "DELETE FROM lemmas WHERE id = ?", id)
	return err
}

// DecrementLemmasOfSite lowers the frequency of every lemma used by the
// site's pages by the number of those pages referencing it.
func (qs queries) DecrementLemmasOfSite(ctx context.Context, siteID int64) error {
	_, err := qs.q.ExecContext(ctx, `
		UPDATE lemmas SET frequency = frequency - (
			SELECT COUNT(*) FROM postings p JOIN pages g ON g.id = p.page_id
			WHERE g.site_id = ? AND p.lemma_id = lemmas.id
		)
		WHERE id IN (
			SELECT p.lemma_id FROM postings p JOIN pages g ON g.id = p.page_id
			WHERE g.site_id = ?
		)`, siteID, siteID)
	if err != nil {
		return fmt.Errorf("failed to decrement lemmas of site %d: %w", siteID, err)
	}
	return nil
}

// DeleteUnusedLemmas removes lemmas whose frequency dropped to zero.
func (qs queries) DeleteUnusedLemmas(ctx context.Context) (int64, error) {
	result, err := qs.q.ExecContext(ctx, "DELETE FROM lemmas WHERE frequency <= 0")
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountLemmas counts the lemmas of the corpus, or the distinct lemmas found
// on one site's pages when siteID is not 0.
func (qs queries) CountLemmas(ctx context.Context, siteID int64) (int, error) {
	var count int
	var err error
	if siteID == 0 {
		err = qs.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM lemmas").Scan(&count)
	} else {
		err = qs.q.QueryRowContext(ctx, `
			SELECT COUNT(DISTINCT p.lemma_id) FROM postings p
			JOIN pages g ON g.id = p.page_id WHERE g.site_id = ?`, siteID).Scan(&count)
	}
	return count, err
}

// LemmaDrifts lists every lemma whose frequency is not its posting count.
func (qs queries) LemmaDrifts(ctx context.Context) ([]LemmaDrift, error) {
	rows, err := qs.q.QueryContext(ctx, `
		SELECT l.id, l.lemma, l.frequency, COUNT(p.id)
		FROM lemmas l LEFT JOIN postings p ON p.lemma_id = l.id
		GROUP BY l.id
		HAVING l.frequency != COUNT(p.id)
		ORDER BY l.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drifts []LemmaDrift
	for rows.Next() {
		var d LemmaDrift
		if err := rows.Scan(&d.ID, &d.Form, &d.Frequency, &d.Postings); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

func scanPostings(rows *sql.Rows) ([]Posting, error) {
	defer rows.Close()

	var postings []Posting
	for rows.Next() {
		var p Posting
		if err := rows.Scan(&p.ID, &p.PageID, &p.LemmaID, &p.Rank); err != nil {
			return nil, err
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

func (qs queries) FindPostingsByLemma(ctx context.Context, lemmaID int64) ([]Posting, error) {
	rows, err := qs.q.QueryContext(ctx,
		"SELECT id, page_id, lemma_id, rank FROM postings WHERE lemma_id = ? ORDER BY id", lemmaID)
	if err != nil {
		return nil, err
	}
	return scanPostings(rows)
}

func (qs queries) FindPostingsByPage(ctx context.Context, pageID int64) ([]Posting, error) {
	rows, err := qs.q.QueryContext(ctx,
		"SELECT id, page_id, lemma_id, rank FROM postings WHERE page_id = ? ORDER BY id", pageID)
	if err != nil {
		return nil, err
	}
	return scanPostings(rows)
}

// FindPosting returns nil when the page has no posting for the lemma.
func (qs queries) FindPosting(ctx context.Context, pageID, lemmaID int64) (*Posting, error) {
	var p Posting
	err := qs.q.QueryRowContext(ctx,
		"SELECT id, page_id, lemma_id, rank FROM postings WHERE page_id = ? AND lemma_id = ?",
		pageID, lemmaID,
	).Scan(&p.ID, &p.PageID, &p.LemmaID, &p.Rank)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertPosting stores p and sets its ID.
func (qs queries) InsertPosting(ctx context.Context, p *Posting) error {
	result, err := qs.q.ExecContext(ctx,
		"INSERT INTO postings (page_id, lemma_id, rank) VALUES (?, ?, ?)",
		p.PageID, p.LemmaID, p.Rank,
	)
	if err != nil {
		return fmt.Errorf("failed to insert posting: %w", err)
	}
	p.ID, err = result.LastInsertId()
	return err
}

func (qs queries) UpdatePostingRank(ctx context.Context, id int64, rank float64) error {
	_, err := qs.q.ExecContext(ctx, "UPDATE postings SET rank = ? WHERE id = ?", rank, id)
	return err
}

func (qs queries) DeletePosting(ctx context.Context, id int64) error {
	_, err := qs.q.ExecContext(ctx, "DELETE FROM postings WHERE id = ?", id)
	return err
}

func (qs queries) DeletePostingsByPage(ctx context.Context, pageID int64) (int64, error) {
	result, err := qs.q.ExecContext(ctx, "DELETE FROM postings WHERE page_id = ?", pageID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete postings of page %d: %w", pageID, err)
	}
	return result.RowsAffected()
}

// CountPostings counts every posting in the corpus.
func (qs queries) CountPostings(ctx context.Context) (int, error) {
	var count int
	err := qs.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM postings").Scan(&count)
	return count, err
}
