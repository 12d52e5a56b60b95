package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"hydra-waf/internal/auth"
	"hydra-waf/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

var validRoles = map[string]bool{"admin": true, "user": true, "analyst": true}

func ValidRole(role string) bool { return validRoles[role] }

// isDuplicateErr detects a unique-constraint violation (MySQL error 1062).
func isDuplicateErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "1062")
}

func (s *Store) CreateUser(ctx context.Context, username, password, email, role string) (*models.User, error) {
	if !ValidRole(role) {
		return nil, errors.New("invalid role")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO user (username, password_hash, email, role) VALUES (?, ?, ?, ?)`,
		username, hash, email, role)
	if err != nil {
		if isDuplicateErr(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	id, _ := res.LastInsertId()
	return &models.User{UserID: id, Username: username, Email: email, Role: role}, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.DB.GetContext(ctx, &u, `SELECT * FROM user WHERE username = ?`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &u, err
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.DB.GetContext(ctx, &u, `SELECT * FROM user WHERE user_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &u, err
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := s.DB.SelectContext(ctx, &users, `SELECT * FROM user ORDER BY user_id LIMIT 500`)
	return users, err
}
