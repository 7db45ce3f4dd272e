package database

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"

	"codezen/internal/config"
	"codezen/internal/middleware"

	"github.com/jackc/pgx/v5"
)

// maintenanceURL points at the server's default "postgres" database, which
// always exists and is where CREATE DATABASE has to be issued from.
func maintenanceURL(cfg *config.Config) string {
	sslMode := cfg.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.DBUser, cfg.DBPassword),
		Host:     net.JoinHostPort(cfg.DBHost, cfg.DBPort),
		Path:     "/postgres",
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}

// EnsureDatabase creates the configured database when it does not exist yet.
func EnsureDatabase(ctx context.Context, cfg *config.Config) error {
	conn, err := pgx.Connect(ctx, maintenanceURL(cfg))
	if err != nil {
		return fmt.Errorf("connect to maintenance database: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	var exists bool
	err = conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, cfg.DBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check database %q: %w", cfg.DBName, err)
	}
	if exists {
		return nil
	}

	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{cfg.DBName}.Sanitize()); err != nil {
		return fmt.Errorf("create database %q: %w", cfg.DBName, err)
	}
	middleware.Logger.InfoContext(ctx, "Created database", slog.String("name", cfg.DBName))
	return nil
}
