package storage

import "time"

// SetProfileKey upserts a single profile key for a user.
func (s *Store) SetProfileKey(userID, key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO user_profile (user_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		userID, key, value, formatTime(time.Now()),
	)
	return err
}

// DeleteProfileKey removes a profile key for a user.
func (s *Store) DeleteProfileKey(userID, key string) error {
	_, err := s.db.Exec(`DELETE FROM user_profile WHERE user_id = ? AND key = ?`, userID, key)
	return err
}

// GetAllProfileKeys returns every profile key/value for a user.
func (s *Store) GetAllProfileKeys(userID string) (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM user_profile WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}
