package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"marketplace-realtime/internal/models"
)

// PresenceRepository stores the durable presence trail.
type PresenceRepository interface {
	UpsertStatus(ctx context.Context, userID string, status models.PresenceStatus, lastSeen time.Time) error
	AddSession(ctx context.Context, session models.PresenceSession) error
	RemoveSession(ctx context.Context, channelID string) error
	TouchSessions(ctx context.Context, channelIDs []string, at time.Time) error
	PruneSessions(ctx context.Context, idleBefore time.Time) (int64, error)
	GetPresence(ctx context.Context, userID string) (models.PresenceRecord, error)
}

// PresenceRepo is a sqlx implementation of PresenceRepository.
type PresenceRepo struct {
	db *sqlx.DB
}

// NewPresenceRepo constructs a PresenceRepo.
func NewPresenceRepo(db *sqlx.DB) *PresenceRepo {
	return &PresenceRepo{db: db}
}

// UpsertStatus records the latest status of a user.
func (r *PresenceRepo) UpsertStatus(ctx context.Context, userID string, status models.PresenceStatus, lastSeen time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO presence_records (user_id, status, last_seen) VALUES ($1, $2, $3)
        ON CONFLICT (user_id) DO UPDATE SET status = EXCLUDED.status, last_seen = EXCLUDED.last_seen`,
		userID, string(status), lastSeen.UTC())
	return err
}

// AddSession records a live channel for a user.
func (r *PresenceRepo) AddSession(ctx context.Context, session models.PresenceSession) error {
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO presence_sessions (channel_id, user_id, device_info, last_active)
        VALUES (:channel_id, :user_id, :device_info, :last_active)
        ON CONFLICT (channel_id) DO UPDATE SET last_active = EXCLUDED.last_active`, session)
	return err
}

// RemoveSession deletes a channel from the trail.
func (r *PresenceRepo) RemoveSession(ctx context.Context, channelID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM presence_sessions WHERE channel_id=$1`, channelID)
	return err
}

// TouchSessions bumps last_active for the given channels.
func (r *PresenceRepo) TouchSessions(ctx context.Context, channelIDs []string, at time.Time) error {
	if len(channelIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE presence_sessions SET last_active=? WHERE channel_id IN (?)`, at.UTC(), channelIDs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}

// PruneSessions deletes sessions idle since before idleBefore.
func (r *PresenceRepo) PruneSessions(ctx context.Context, idleBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM presence_sessions WHERE last_active < $1`, idleBefore.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetPresence loads a record with its recorded sessions.
func (r *PresenceRepo) GetPresence(ctx context.Context, userID string) (models.PresenceRecord, error) {
	var rec models.PresenceRecord
	err := r.db.GetContext(ctx, &rec, `SELECT user_id, status, last_seen FROM presence_records WHERE user_id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PresenceRecord{}, ErrPresenceNotFound
	}
	if err != nil {
		return models.PresenceRecord{}, err
	}
	rec.Sessions = []models.PresenceSession{}
	if err := r.db.SelectContext(ctx, &rec.Sessions, `SELECT channel_id, user_id, device_info, last_active
        FROM presence_sessions WHERE user_id=$1 ORDER BY last_active DESC`, userID); err != nil {
		return models.PresenceRecord{}, err
	}
	return rec, nil
}
