// Package storage is the SQLite record store for sites, pages, lemmas and
// postings.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/deidaraiorek/sitesearch/internal/errors"
)

// dsnParams: foreign keys on, WAL, writers wait for the lock instead of
// failing, and every transaction starts with BEGIN IMMEDIATE so that
// concurrent indexers queue on the write lock.
const dsnParams = "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate"

type Status string

const (
	StatusIndexing Status = "INDEXING"
	StatusIndexed  Status = "INDEXED"
	StatusFailed   Status = "FAILED"
)

type Site struct {
	ID         int64
	URL        string
	Name       string
	Status     Status
	StatusTime time.Time
	LastError  string
}

type Page struct {
	ID      int64
	SiteID  int64
	Path    string
	Code    int
	Content string
}

// OK reports whether the page was fetched with a 2xx status.
func (p *Page) OK() bool {
	return p.Code >= 200 && p.Code < 300
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every record operation. It is embedded by Store, which runs
// them in autocommit mode, and by Tx.
type queries struct {
	q querier
}

type Store struct {
	queries
	db *sql.DB
}

// Tx is a write transaction handed out by Store.WithTx.
type Tx struct {
	queries
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?"+dsnParams)
	if err != nil {
		return nil, apperrors.StorageError("failed to open database", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, apperrors.StorageError("failed to apply schema", err)
	}

	return &Store{queries: queries{q: db}, db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside one immediate transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.StorageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{queries: queries{q: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.StorageError("failed to commit transaction", err)
	}
	return nil
}

const siteColumns = "id, url, name, status, status_time, last_error"

func scanSite(row interface{ Scan(...any) error }) (*Site, error) {
	var site Site
	var lastError sql.NullString
	if err := row.Scan(&site.ID, &site.URL, &site.Name, &site.Status, &site.StatusTime, &lastError); err != nil {
		return nil, err
	}
	site.LastError = lastError.String
	return &site, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateSite inserts site and sets its ID. A zero StatusTime becomes now.
func (qs queries) CreateSite(ctx context.Context, site *Site) error {
	if site.StatusTime.IsZero() {
		site.StatusTime = time.Now().UTC()
	}
	result, err := qs.q.ExecContext(ctx,
		"INSERT INTO sites (url, name, status, status_time, last_error) VALUES (?, ?, ?, ?, ?)",
		site.URL, site.Name, site.Status, site.StatusTime, nullable(site.LastError),
	)
	if err != nil {
		return fmt.Errorf("failed to create site %s: %w", site.URL, err)
	}
	site.ID, err = result.LastInsertId()
	return err
}

// FindSiteByURL returns nil when no site has that URL.
func (qs queries) FindSiteByURL(ctx context.Context, url string) (*Site, error) {
	site, err := scanSite(qs.q.QueryRowContext(ctx,
		"SELECT "+siteColumns+" FROM sites WHERE url = ?", url))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return site, err
}

func (qs queries) FindSiteByID(ctx context.Context, id int64) (*Site, error) {
	site, err := scanSite(qs.q.QueryRowContext(ctx,
		"SELECT "+siteColumns+" FROM sites WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return site, err
}

func (qs queries) ListSites(ctx context.Context) ([]*Site, error) {
	rows, err := qs.q.QueryContext(ctx, "SELECT "+siteColumns+" FROM sites ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []*Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// UpdateSiteStatus sets status, status time and last error in one statement.
func (qs queries) UpdateSiteStatus(ctx context.Context, id int64, status Status, lastError string) error {
	_, err := qs.q.ExecContext(ctx,
		"UPDATE sites SET status = ?, status_time = ?, last_error = ? WHERE id = ?",
		status, time.Now().UTC(), nullable(lastError), id,
	)
	return err
}

// TransitionSiteStatus moves a site from one status to another and reports
// whether the site was still in the from status.
func (qs queries) TransitionSiteStatus(ctx context.Context, id int64, from, to Status, lastError string) (bool, error) {
	result, err := qs.q.ExecContext(ctx,
		"UPDATE sites SET status = ?, status_time = ?, last_error = ? WHERE id = ? AND status = ?",
		to, time.Now().UTC(), nullable(lastError), id, from,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// FailIndexingSites marks every site still INDEXING as FAILED.
func (qs queries) FailIndexingSites(ctx context.Context, lastError string) (int64, error) {
	result, err := qs.q.ExecContext(ctx,
		"UPDATE sites SET status = ?, status_time = ?, last_error = ? WHERE status = ?",
		StatusFailed, time.Now().UTC(), nullable(lastError), StatusIndexing,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteSiteByURL removes the site row together with its pages and their
// postings. Lemma frequencies are left to the caller. It reports whether a
// site existed.
func (qs queries) DeleteSiteByURL(ctx context.Context, url string) (bool, error) {
	site, err := qs.FindSiteByURL(ctx, url)
	if err != nil || site == nil {
		return false, err
	}

	if _, err := qs.q.ExecContext(ctx,
		"DELETE FROM postings WHERE page_id IN (SELECT id FROM pages WHERE site_id = ?)", site.ID); err != nil {
		return false, fmt.Errorf("failed to delete postings of site %s: %w", url, err)
	}
	if _, err := qs.q.ExecContext(ctx, "DELETE FROM pages WHERE site_id = ?", site.ID); err != nil {
		return false, fmt.Errorf("failed to delete pages of site %s: %w", url, err)
	}
	if _, err := qs.q.ExecContext(ctx, "DELETE FROM sites WHERE id = ?", site.ID); err != nil {
		return false, fmt.Errorf("failed to delete site %s: %w", url, err)
	}
	return true, nil
}

const pageColumns = "id, site_id, path, code, content"

func scanPage(row interface{ Scan(...any) error }) (*Page, error) {
	var page Page
	if err := row.Scan(&page.ID, &page.SiteID, &page.Path, &page.Code, &page.Content); err != nil {
		return nil, err
	}
	return &page, nil
}

// InsertPage stores page and sets its ID.
func (qs queries) InsertPage(ctx context.Context, page *Page) error {
	result, err := qs.q.ExecContext(ctx,
		"INSERT INTO pages (site_id, path, code, content) VALUES (?, ?, ?, ?)",
		page.SiteID, page.Path, page.Code, page.Content,
	)
	if err != nil {
		return fmt.Errorf("failed to insert page %s: %w", page.Path, err)
	}
	page.ID, err = result.LastInsertId()
	return err
}

// FindPageByPath returns nil when the site has no page at path.
func (qs queries) FindPageByPath(ctx context.Context, siteID int64, path string) (*Page, error) {
	page, err := scanPage(qs.q.QueryRowContext(ctx,
		"SELECT "+pageColumns+" FROM pages WHERE site_id = ? AND path = ?", siteID, path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return page, err
}

func (qs queries) FindPageByID(ctx context.Context, id int64) (*Page, error) {
	page, err := scanPage(qs.q.QueryRowContext(ctx,
		"SELECT "+pageColumns+" FROM pages WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return page, err
}

// FindPagesByIDs loads the pages with the given ids. Missing ids are skipped.
func (qs queries) FindPagesByIDs(ctx context.Context, ids []int64) (map[int64]*Page, error) {
	pages := make(map[int64]*Page, len(ids))
	for _, id := range ids {
		page, err := qs.FindPageByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if page != nil {
			pages[id] = page
		}
	}
	return pages, nil
}

// ListPagePaths returns the paths stored for a site in insertion order.
func (qs queries) ListPagePaths(ctx context.Context, siteID int64) ([]string, error) {
	rows, err := qs.q.QueryContext(ctx, "SELECT path FROM pages WHERE site_id = ? ORDER BY id", siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

// DeletePage removes the postings of a page, then the page itself.
func (qs queries) DeletePage(ctx context.Context, id int64) error {
	if _, err := qs.DeletePostingsByPage(ctx, id); err != nil {
		return err
	}
	if _, err := qs.q.ExecContext(ctx, "DELETE FROM pages WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete page %d: %w", id, err)
	}
	return nil
}

// DeletePageByPath deletes a page and its postings and reports whether the
// page existed.
func (qs queries) DeletePageByPath(ctx context.Context, siteID int64, path string) (bool, error) {
	page, err := qs.FindPageByPath(ctx, siteID, path)
	if err != nil || page == nil {
		return false, err
	}
	return true, qs.DeletePage(ctx, page.ID)
}

// CountPages counts the pages of one site, or of all sites when siteID is 0.
func (qs queries) CountPages(ctx context.Context, siteID int64) (int, error) {
	var count int
	var err error
	if siteID == 0 {
		err = qs.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM pages").Scan(&count)
	} else {
		err = qs.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM pages WHERE site_id = ?", siteID).Scan(&count)
	}
	return count, err
}

func (qs queries) CountSites(ctx context.Context) (int, error) {
	var count int
	err := qs.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM sites").Scan(&count)
	return count, err
}
