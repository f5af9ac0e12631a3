package storage

import "fmt"

// SaveResource inserts a wellness resource.
func (s *Store) SaveResource(r Resource) error {
	_, err := s.db.Exec(`INSERT INTO resources (id, title, category, body, source, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Title, r.Category, r.Body, r.Source, formatTime(r.CreatedAt))
	return err
}

// ListResources returns resources in a category, or all resources when
// category is empty, ordered by title.
func (s *Store) ListResources(category string) ([]Resource, error) {
	query := `SELECT id, title, category, body, source, created_at FROM resources`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY title ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Resource
	for rows.Next() {
		var r Resource
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Title, &r.Category, &r.Body, &r.Source, &createdAt); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for resource %s: %w", r.ID, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
