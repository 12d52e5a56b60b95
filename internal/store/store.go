package store

import (
	"context"
	"fmt"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"hydra-waf/internal/auth"
)

// Store wraps the relational event store. Entity relationships follow the
// ERD: alerts, reports and whitelist entries hang off waf_log; sys_log
// references at most one entity through nullable FKs.
type Store struct {
	DB *sqlx.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("event store unreachable: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// Ping verifies connectivity for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS user (
		user_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(80) NOT NULL UNIQUE,
		password_hash VARCHAR(256) NOT NULL,
		email VARCHAR(120) NOT NULL UNIQUE,
		role VARCHAR(20) NOT NULL DEFAULT 'user'
	)`,
	`CREATE TABLE IF NOT EXISTS waf_log (
		wlog_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		intercepted_req TEXT NOT NULL,
		wlog_type VARCHAR(50) NOT NULL,
		wlog_timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		severity VARCHAR(20) NOT NULL,
		detection_source VARCHAR(50) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS alert (
		alert_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		alert_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'open',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		resolved_at DATETIME NULL,
		wlog_id BIGINT NULL,
		FOREIGN KEY (wlog_id) REFERENCES waf_log(wlog_id)
	)`,
	`CREATE TABLE IF NOT EXISTS restriction (
		restriction_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		restriction_type VARCHAR(20) NOT NULL,
		restriction_description TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS signature (
		signature_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		signature_type VARCHAR(50) NOT NULL,
		signature_content TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS model (
		model_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		model_type VARCHAR(100) NOT NULL,
		model_description TEXT NULL,
		model_threshold DOUBLE NOT NULL DEFAULT 0.5
	)`,
	`CREATE TABLE IF NOT EXISTS patching_report (
		report_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		report_details TEXT NOT NULL,
		report_timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		wlog_id BIGINT NULL,
		FOREIGN KEY (wlog_id) REFERENCES waf_log(wlog_id)
	)`,
	`CREATE TABLE IF NOT EXISTS suspicious_user_profile (
		sus_user_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		sus_username VARCHAR(100) NOT NULL,
		pc_number VARCHAR(50) NULL,
		ip_address VARCHAR(45) NULL,
		mac_address VARCHAR(17) NULL,
		session_cookie TEXT NULL,
		suspicion_level VARCHAR(20) NOT NULL DEFAULT 'Low',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS whitelisted_request (
		wl_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		wlog_id BIGINT NULL,
		reason TEXT NOT NULL,
		user_id BIGINT NULL,
		made_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (wlog_id) REFERENCES waf_log(wlog_id),
		FOREIGN KEY (user_id) REFERENCES user(user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sys_log (
		slog_id BIGINT AUTO_INCREMENT PRIMARY KEY,
		message TEXT NOT NULL,
		slog_timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		restriction_id BIGINT NULL,
		model_id BIGINT NULL,
		signature_id BIGINT NULL,
		user_id BIGINT NULL,
		sus_user_id BIGINT NULL,
		report_id BIGINT NULL,
		wl_id BIGINT NULL
	)`,
}

// Migrate creates the schema if missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SeedAdmin creates the bootstrap admin account when the user table is empty.
func (s *Store) SeedAdmin(ctx context.Context, username, password string) error {
	var count int
	if err := s.DB.GetContext(ctx, &count, `SELECT COUNT(*) FROM user`); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO user (username, password_hash, email, role) VALUES (?, ?, ?, 'admin')`,
		username, hash, username+"@localhost")
	if err != nil {
		return err
	}
	log.Printf("👤 Seeded bootstrap admin user %q", username)
	return nil
}
