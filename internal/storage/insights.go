package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const insightColumns = `id, entry_id, owner_id, sentiment_score, sentiment_mag, sentiment_label,
	emotions, entities, themes, triggers, coping_strategies, urgency, summary, fallback, created_at`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertInsight(x execer, ins Insight) error {
	emotions, err := marshalList(ins.Emotions)
	if err != nil {
		return fmt.Errorf("marshalling emotions: %w", err)
	}
	entities, err := marshalList(ins.Entities)
	if err != nil {
		return fmt.Errorf("marshalling entities: %w", err)
	}
	themes, err := marshalList(ins.Themes)
	if err != nil {
		return fmt.Errorf("marshalling themes: %w", err)
	}
	triggers, err := marshalList(ins.Triggers)
	if err != nil {
		return fmt.Errorf("marshalling triggers: %w", err)
	}
	coping, err := marshalList(ins.CopingStrategies)
	if err != nil {
		return fmt.Errorf("marshalling coping strategies: %w", err)
	}

	_, err = x.Exec(`
		INSERT INTO insights (`+insightColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ins.ID, ins.EntryID, ins.OwnerID,
		ins.Sentiment.Score, ins.Sentiment.Magnitude, ins.Sentiment.Label,
		emotions, entities, themes, triggers, coping,
		ins.Urgency, ins.Summary, ins.Fallback, formatTime(ins.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting insight for entry %s: %w", ins.EntryID, err)
	}
	return nil
}

func scanInsight(row rowScanner) (Insight, error) {
	var ins Insight
	var emotions, entities, themes, triggers, coping, createdAt string
	err := row.Scan(&ins.ID, &ins.EntryID, &ins.OwnerID,
		&ins.Sentiment.Score, &ins.Sentiment.Magnitude, &ins.Sentiment.Label,
		&emotions, &entities, &themes, &triggers, &coping,
		&ins.Urgency, &ins.Summary, &ins.Fallback, &createdAt)
	if err != nil {
		return Insight{}, err
	}
	if ins.Emotions, err = unmarshalList[Emotion](emotions); err != nil {
		return Insight{}, fmt.Errorf("parsing emotions for insight %s: %w", ins.ID, err)
	}
	if ins.Entities, err = unmarshalList[string](entities); err != nil {
		return Insight{}, fmt.Errorf("parsing entities for insight %s: %w", ins.ID, err)
	}
	if ins.Themes, err = unmarshalList[string](themes); err != nil {
		return Insight{}, fmt.Errorf("parsing themes for insight %s: %w", ins.ID, err)
	}
	if ins.Triggers, err = unmarshalList[string](triggers); err != nil {
		return Insight{}, fmt.Errorf("parsing triggers for insight %s: %w", ins.ID, err)
	}
	if ins.CopingStrategies, err = unmarshalList[string](coping); err != nil {
		return Insight{}, fmt.Errorf("parsing coping strategies for insight %s: %w", ins.ID, err)
	}
	if ins.CreatedAt, err = parseTime(createdAt); err != nil {
		return Insight{}, fmt.Errorf("parsing created_at for insight %s: %w", ins.ID, err)
	}
	return ins, nil
}

func collectInsights(rows *sql.Rows) ([]Insight, error) {
	defer rows.Close()
	var results []Insight
	for rows.Next() {
		ins, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, ins)
	}
	return results, rows.Err()
}

// ListInsights returns every insight for an entry, newest first.
func (s *Store) ListInsights(entryID string) ([]Insight, error) {
	rows, err := s.db.Query(`SELECT `+insightColumns+` FROM insights
		WHERE entry_id = ? ORDER BY created_at DESC, rowid DESC`, entryID)
	if err != nil {
		return nil, err
	}
	return collectInsights(rows)
}

// InsightsForOwner returns the owner's insights created at or after since,
// oldest first.
func (s *Store) InsightsForOwner(ownerID string, since time.Time) ([]Insight, error) {
	rows, err := s.db.Query(`SELECT `+insightColumns+` FROM insights
		WHERE owner_id = ? AND created_at >= ? ORDER BY created_at ASC, rowid ASC`,
		ownerID, formatTime(since))
	if err != nil {
		return nil, err
	}
	return collectInsights(rows)
}

// CountInsights returns the total number of stored insights.
func (s *Store) CountInsights() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM insights`).Scan(&n)
	return n, err
}
