package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/poyrazK/licensegate/internal/core/domain"
)

// Schema creates the licenses and audit_logs tables. It is idempotent.
//
//go:embed schema.sql
var Schema string

const uniqueViolation = "23505"

const licenseColumns = `key, owner, expires_at, max_guilds, guild_id, is_active, banned, notes, created_at, updated_at`

// PostgresRepository implements ports.LicenseRepository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates and returns a new PostgresRepository instance.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate applies Schema.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, Schema)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLicense(row rowScanner) (*domain.License, error) {
	var l domain.License
	var expiresAt sql.NullTime
	var guildID sql.NullString
	if err := row.Scan(&l.Key, &l.Owner, &expiresAt, &l.MaxGuilds, &guildID, &l.IsActive, &l.Banned, &l.Notes, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		l.ExpiresAt = &t
	}
	if guildID.Valid {
		g := guildID.String
		l.GuildID = &g
	}
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return &l, nil
}

func (r *PostgresRepository) CreateLicense(ctx context.Context, license *domain.License, entry *domain.AuditLogEntry) error {
	tx, errTx := r.db.BeginTx(ctx, nil)
	if errTx != nil {
		return errTx
	}
	defer rollback(tx)

	query := `INSERT INTO licenses (` + licenseColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  ON CONFLICT (key) DO NOTHING`
	res, errExec := tx.ExecContext(ctx, query, license.Key, license.Owner, license.ExpiresAt, license.MaxGuilds, license.GuildID,
		license.IsActive, license.Banned, license.Notes, license.CreatedAt, license.UpdatedAt)
	if errExec != nil {
		if isUniqueViolation(errExec) {
			return domain.ErrConflict
		}
		return errExec
	}
	affected, errRows := res.RowsAffected()
	if errRows != nil {
		return errRows
	}
	if affected == 0 {
		return domain.ErrConflict
	}

	if errAudit := insertAuditLog(ctx, tx, entry); errAudit != nil {
		return errAudit
	}
	return tx.Commit()
}

func (r *PostgresRepository) GetLicense(ctx context.Context, key string) (*domain.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE key = $1`
	l, errRow := scanLicense(r.db.QueryRowContext(ctx, query, key))
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	return l, nil
}

func (r *PostgresRepository) ListLicenses(ctx context.Context) ([]domain.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses ORDER BY created_at ASC, key ASC`
	rows, errQuery := r.db.QueryContext(ctx, query)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() {
		if errClose := rows.Close(); errClose != nil {
			log.Printf("failed to close rows: %v", errClose)
		}
	}()

	var licenses []domain.License
	for rows.Next() {
		l, errScan := scanLicense(rows)
		if errScan != nil {
			return nil, errScan
		}
		licenses = append(licenses, *l)
	}
	return licenses, rows.Err()
}

func (r *PostgresRepository) UpdateLicense(ctx context.Context, key string, patch *domain.LicensePatch, now time.Time, entry *domain.AuditLogEntry) (*domain.License, error) {
	tx, errTx := r.db.BeginTx(ctx, nil)
	if errTx != nil {
		return nil, errTx
	}
	defer rollback(tx)

	// 1. Lock the row so concurrent validations and updates serialize behind us
	selectQuery := `SELECT ` + licenseColumns + ` FROM licenses WHERE key = $1 FOR UPDATE`
	license, errRow := scanLicense(tx.QueryRowContext(ctx, selectQuery, key))
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}

	// 2. Apply the sparse patch and write back every column
	patch.Apply(license)
	license.UpdatedAt = now
	updateQuery := `UPDATE licenses SET owner = $2, expires_at = $3, max_guilds = $4, guild_id = $5,
	                is_active = $6, banned = $7, notes = $8, updated_at = $9 WHERE key = $1`
	if _, errExec := tx.ExecContext(ctx, updateQuery, key, license.Owner, license.ExpiresAt, license.MaxGuilds, license.GuildID,
		license.IsActive, license.Banned, license.Notes, license.UpdatedAt); errExec != nil {
		return nil, errExec
	}

	// 3. Audit in the same transaction
	if errAudit := insertAuditLog(ctx, tx, entry); errAudit != nil {
		return nil, errAudit
	}
	if errCommit := tx.Commit(); errCommit != nil {
		return nil, errCommit
	}
	return license, nil
}

func (r *PostgresRepository) DeleteLicense(ctx context.Context, key string, entry *domain.AuditLogEntry) (bool, error) {
	tx, errTx := r.db.BeginTx(ctx, nil)
	if errTx != nil {
		return false, errTx
	}
	defer rollback(tx)

	res, errExec := tx.ExecContext(ctx, `DELETE FROM licenses WHERE key = $1`, key)
	if errExec != nil {
		return false, errExec
	}
	affected, errRows := res.RowsAffected()
	if errRows != nil {
		return false, errRows
	}
	if affected == 0 {
		return false, nil
	}

	if errAudit := insertAuditLog(ctx, tx, entry); errAudit != nil {
		return false, errAudit
	}
	if errCommit := tx.Commit(); errCommit != nil {
		return false, errCommit
	}
	return true, nil
}

func (r *PostgresRepository) ClaimLicense(ctx context.Context, key string, guildID string, now time.Time, entry *domain.AuditLogEntry) (bool, error) {
	tx, errTx := r.db.BeginTx(ctx, nil)
	if errTx != nil {
		return false, errTx
	}
	defer rollback(tx)

	// Compare-and-set: the row lock taken by UPDATE makes a concurrent claim re-check
	// guild_id after we commit, so only the first guild can bind an unbound license.
	query := `UPDATE licenses SET guild_id = $2, updated_at = $3
	          WHERE key = $1 AND is_active AND NOT banned
	            AND (expires_at IS NULL OR expires_at >= $3)
	            AND (guild_id IS NULL OR guild_id = '' OR guild_id = $2)`
	res, errExec := tx.ExecContext(ctx, query, key, guildID, now)
	if errExec != nil {
		return false, errExec
	}
	affected, errRows := res.RowsAffected()
	if errRows != nil {
		return false, errRows
	}
	if affected == 0 {
		return false, nil
	}

	if errAudit := insertAuditLog(ctx, tx, entry); errAudit != nil {
		return false, errAudit
	}
	if errCommit := tx.Commit(); errCommit != nil {
		return false, errCommit
	}
	return true, nil
}

func (r *PostgresRepository) ExpireLicense(ctx context.Context, key string, now time.Time) (bool, error) {
	query := `UPDATE licenses SET is_active = FALSE, updated_at = $2
	          WHERE key = $1 AND is_active AND expires_at IS NOT NULL AND expires_at < $2`
	res, errExec := r.db.ExecContext(ctx, query, key, now)
	if errExec != nil {
		return false, errExec
	}
	affected, errRows := res.RowsAffected()
	if errRows != nil {
		return false, errRows
	}
	return affected > 0, nil
}

func (r *PostgresRepository) ExpireOverdue(ctx context.Context, now time.Time) ([]string, error) {
	query := `UPDATE licenses SET is_active = FALSE, updated_at = $1
	          WHERE is_active AND expires_at IS NOT NULL AND expires_at < $1
	          RETURNING key`
	rows, errQuery := r.db.QueryContext(ctx, query, now)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() {
		if errClose := rows.Close(); errClose != nil {
			log.Printf("failed to close rows: %v", errClose)
		}
	}()

	var keys []string
	for rows.Next() {
		var key string
		if errScan := rows.Scan(&key); errScan != nil {
			return nil, errScan
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *PostgresRepository) SaveAuditLog(ctx context.Context, entry *domain.AuditLogEntry) error {
	query := `INSERT INTO audit_logs (id, license_key, action, actor, message, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, entry.ID, entry.LicenseKey, string(entry.Action), string(entry.Actor), entry.Message, entry.CreatedAt)
	return err
}

func (r *PostgresRepository) GetAuditLogs(ctx context.Context, key string) ([]domain.AuditLogEntry, error) {
	query := `SELECT id, license_key, action, actor, message, created_at FROM audit_logs
	          WHERE license_key = $1 ORDER BY created_at DESC, seq DESC`
	rows, errQuery := r.db.QueryContext(ctx, query, key)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() {
		if errClose := rows.Close(); errClose != nil {
			log.Printf("failed to close rows: %v", errClose)
		}
	}()

	var logs []domain.AuditLogEntry
	for rows.Next() {
		var e domain.AuditLogEntry
		if errScan := rows.Scan(&e.ID, &e.LicenseKey, &e.Action, &e.Actor, &e.Message, &e.CreatedAt); errScan != nil {
			return nil, errScan
		}
		e.CreatedAt = e.CreatedAt.UTC()
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func insertAuditLog(ctx context.Context, tx *sql.Tx, entry *domain.AuditLogEntry) error {
	query := `INSERT INTO audit_logs (id, license_key, action, actor, message, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.ExecContext(ctx, query, entry.ID, entry.LicenseKey, string(entry.Action), string(entry.Actor), entry.Message, entry.CreatedAt); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func rollback(tx *sql.Tx) {
	if errRollback := tx.Rollback(); errRollback != nil && !errors.Is(errRollback, sql.ErrTxDone) {
		log.Printf("failed to rollback transaction: %v", errRollback)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
