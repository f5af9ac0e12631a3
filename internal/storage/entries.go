package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const entryColumns = `id, owner_id, kind, role, content, mood, tags, word_count, char_count,
	analysis_state, content_version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var tags, createdAt, updatedAt string
	err := row.Scan(&e.ID, &e.OwnerID, &e.Kind, &e.Role, &e.Content, &e.Mood, &tags,
		&e.Metadata.WordCount, &e.Metadata.CharacterCount,
		&e.AnalysisState, &e.ContentVersion, &createdAt, &updatedAt)
	if err != nil {
		return Entry{}, err
	}
	if e.Tags, err = unmarshalList[string](tags); err != nil {
		return Entry{}, fmt.Errorf("parsing tags for entry %s: %w", e.ID, err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return Entry{}, fmt.Errorf("parsing created_at for entry %s: %w", e.ID, err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Entry{}, fmt.Errorf("parsing updated_at for entry %s: %w", e.ID, err)
	}
	e.Processed = e.AnalysisState == StateProcessed
	return e, nil
}

// SaveEntry inserts a new entry. The analysis state starts unprocessed.
func (s *Store) SaveEntry(e Entry) error {
	tags, err := marshalList(e.Tags)
	if err != nil {
		return fmt.Errorf("marshalling tags: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO entries (id, owner_id, kind, role, content, mood, tags, word_count, char_count,
			analysis_state, content_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		e.ID, e.OwnerID, e.Kind, e.Role, e.Content, e.Mood, tags,
		e.Metadata.WordCount, e.Metadata.CharacterCount, StateUnprocessed,
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	return err
}

// GetEntry returns the entry with the given id or ErrNotFound.
func (s *Store) GetEntry(id string) (Entry, error) {
	e, err := scanEntry(s.db.QueryRow(`SELECT `+entryColumns+` FROM entries WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// ListEntries returns entries matching f, newest first.
func (s *Store) ListEntries(f EntryFilter) ([]Entry, error) {
	var where []string
	var args []any
	if f.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if !f.Start.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(f.Start))
	}
	if !f.End.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, formatTime(f.End))
	}

	query := `SELECT ` + entryColumns + ` FROM entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// UpdateEntry writes the mutable fields of e. When contentChanged is true the
// content version is bumped and the analysis state is reset to unprocessed
// in the same statement, so an in-flight analysis of the old content cannot
// mark the entry processed.
func (s *Store) UpdateEntry(e Entry, contentChanged bool) (Entry, error) {
	tags, err := marshalList(e.Tags)
	if err != nil {
		return Entry{}, fmt.Errorf("marshalling tags: %w", err)
	}
	res, err := s.db.Exec(`
		UPDATE entries SET
			content = ?, mood = ?, tags = ?, word_count = ?, char_count = ?, updated_at = ?,
			content_version = content_version + CASE WHEN ? THEN 1 ELSE 0 END,
			analysis_state = CASE WHEN ? THEN ? ELSE analysis_state END
		WHERE id = ?`,
		e.Content, e.Mood, tags, e.Metadata.WordCount, e.Metadata.CharacterCount, formatTime(e.UpdatedAt),
		contentChanged, contentChanged, StateUnprocessed, e.ID,
	)
	if err != nil {
		return Entry{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Entry{}, err
	}
	if n == 0 {
		return Entry{}, ErrNotFound
	}
	return s.GetEntry(e.ID)
}

// DeleteEntry removes an entry and every insight referencing it in one transaction.
func (s *Store) DeleteEntry(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(`DELETE FROM insights WHERE entry_id = ?`, id); err != nil {
		return fmt.Errorf("deleting insights for entry %s: %w", id, err)
	}

	return tx.Commit()
}

// ClaimEntryForAnalysis moves an unprocessed entry into the analyzing state
// and returns it. The boolean is false when the entry is missing or is
// already analyzing or processed.
func (s *Store) ClaimEntryForAnalysis(id string) (Entry, bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Entry{}, false, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE entries SET analysis_state = ? WHERE id = ? AND analysis_state = ?`,
		StateAnalyzing, id, StateUnprocessed)
	if err != nil {
		return Entry{}, false, fmt.Errorf("claiming entry %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Entry{}, false, fmt.Errorf("checking claimed rows: %w", err)
	}
	if n != 1 {
		return Entry{}, false, nil
	}

	e, err := scanEntry(tx.QueryRow(`SELECT `+entryColumns+` FROM entries WHERE id = ?`, id))
	if err != nil {
		return Entry{}, false, fmt.Errorf("loading claimed entry %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, false, fmt.Errorf("committing claim: %w", err)
	}
	return e, true, nil
}

// CompleteAnalysis stores ins and marks its entry processed, provided the
// entry is still analyzing the given content version. Otherwise the insight is
// discarded and false is returned; a claim on newer content is not touched.
func (s *Store) CompleteAnalysis(ins Insight, contentVersion int) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("beginning complete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE entries SET analysis_state = ? WHERE id = ? AND analysis_state = ? AND content_version = ?`,
		StateProcessed, ins.EntryID, StateAnalyzing, contentVersion)
	if err != nil {
		return false, fmt.Errorf("marking entry %s processed: %w", ins.EntryID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n != 1 {
		if _, err := tx.Exec(`UPDATE entries SET analysis_state = ? WHERE id = ? AND analysis_state = ? AND content_version = ?`,
			StateUnprocessed, ins.EntryID, StateAnalyzing, contentVersion); err != nil {
			return false, fmt.Errorf("releasing stale claim on %s: %w", ins.EntryID, err)
		}
		return false, tx.Commit()
	}

	if err := insertInsight(tx, ins); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing analysis: %w", err)
	}
	return true, nil
}

// ReleaseAnalysis returns an entry claimed at contentVersion to unprocessed so
// it can be retried. A claim taken on newer content is left alone.
func (s *Store) ReleaseAnalysis(id string, contentVersion int) error {
	_, err := s.db.Exec(`UPDATE entries SET analysis_state = ? WHERE id = ? AND analysis_state = ? AND content_version = ?`,
		StateUnprocessed, id, StateAnalyzing, contentVersion)
	return err
}

// ResetStaleAnalyses releases every entry left analyzing, e.g. after a crash.
func (s *Store) ResetStaleAnalyses() (int64, error) {
	res, err := s.db.Exec(`UPDATE entries SET analysis_state = ? WHERE analysis_state = ?`,
		StateUnprocessed, StateAnalyzing)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PendingEntryIDs returns up to limit unprocessed diary entry ids, oldest
// first. An empty ownerID lists every owner's entries.
func (s *Store) PendingEntryIDs(ownerID string, limit int) ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM entries WHERE analysis_state = ? AND kind = ?
		AND (? = '' OR owner_id = ?)
		ORDER BY created_at ASC, rowid ASC LIMIT ?`,
		StateUnprocessed, KindDiary, ownerID, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EntriesForOwner returns the owner's entries of a kind created at or after
// since, oldest first.
func (s *Store) EntriesForOwner(ownerID, kind string, since time.Time) ([]Entry, error) {
	rows, err := s.db.Query(`SELECT `+entryColumns+` FROM entries
		WHERE owner_id = ? AND kind = ? AND created_at >= ?
		ORDER BY created_at ASC, rowid ASC`,
		ownerID, kind, formatTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}
