package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateUser inserts a new user.
func (s *Store) CreateUser(u User) error {
	_, err := s.db.Exec(`INSERT INTO users (id, display_name, created_at) VALUES (?, ?, ?)`,
		u.ID, u.DisplayName, formatTime(u.CreatedAt))
	return err
}

// GetUser returns a user by id or ErrNotFound.
func (s *Store) GetUser(id string) (User, error) {
	var u User
	var createdAt string
	err := s.db.QueryRow(`SELECT id, display_name, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.DisplayName, &createdAt)
	if err == sql.ErrNoRows {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return User{}, fmt.Errorf("parsing created_at for user %s: %w", id, err)
	}
	return u, nil
}

// ListUsers returns all users, oldest first.
func (s *Store) ListUsers() ([]User, error) {
	rows, err := s.db.Query(`SELECT id, display_name, created_at FROM users ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.DisplayName, &createdAt); err != nil {
			return nil, err
		}
		if u.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for user %s: %w", u.ID, err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SaveAPIToken records the hash of a bearer token for a user.
func (s *Store) SaveAPIToken(tokenHash, userID string, createdAt time.Time) error {
	_, err := s.db.Exec(`INSERT INTO api_tokens (token_hash, user_id, created_at) VALUES (?, ?, ?)`,
		tokenHash, userID, formatTime(createdAt))
	return err
}

// LookupAPIToken returns the user id owning tokenHash or ErrNotFound.
func (s *Store) LookupAPIToken(tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRow(`SELECT user_id FROM api_tokens WHERE token_hash = ?`, tokenHash).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return userID, err
}

// TouchAPIToken sets the last-used time of a token.
func (s *Store) TouchAPIToken(tokenHash string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE api_tokens SET last_used_at = ? WHERE token_hash = ?`,
		formatTime(at), tokenHash)
	return err
}
