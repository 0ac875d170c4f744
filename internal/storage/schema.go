package storage

// Schema is applied on every Open. Foreign keys are enforced but carry no
// ON DELETE CASCADE: dependent rows are removed explicitly, postings first.
const Schema = `
-- Sites: one row per configured site
CREATE TABLE IF NOT EXISTS sites (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT UNIQUE NOT NULL,
    name TEXT NOT NULL,
    status TEXT NOT NULL,
    status_time DATETIME NOT NULL,
    last_error TEXT
);

-- Pages: fetched content, path unique within a site
CREATE TABLE IF NOT EXISTS pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    site_id INTEGER NOT NULL,
    path TEXT NOT NULL,
    code INTEGER NOT NULL,
    content TEXT NOT NULL,
    UNIQUE (site_id, path),
    FOREIGN KEY (site_id) REFERENCES sites(id)
);

-- Lemmas: corpus-wide dictionary with document frequency
CREATE TABLE IF NOT EXISTS lemmas (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    lemma TEXT UNIQUE NOT NULL,
    frequency INTEGER NOT NULL
);

-- Postings: one row per (page, lemma), rank = occurrences on the page
CREATE TABLE IF NOT EXISTS postings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    page_id INTEGER NOT NULL,
    lemma_id INTEGER NOT NULL,
    rank REAL NOT NULL,
    UNIQUE (page_id, lemma_id),
    FOREIGN KEY (page_id) REFERENCES pages(id),
    FOREIGN KEY (lemma_id) REFERENCES lemmas(id)
);
CREATE INDEX IF NOT EXISTS idx_postings_lemma ON postings(lemma_id);
`
