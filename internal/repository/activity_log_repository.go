package repository

import (
	"context"
	"time"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/db"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"github.com/jmoiron/sqlx"
)

const defaultActivityLimit = 10

type ActivityLogRepository struct {
	DB *db.SQLite
}

type CreateActivityInput struct {
	Type        domain.ActivityType
	Entity      string
	EntityID    *int64
	EntityName  *string
	Description string
	UserID      int64
	At          time.Time
}

func (r ActivityLogRepository) Create(ctx context.Context, in CreateActivityInput) (int64, error) {
	return r.create(ctx, r.DB.Conn, in)
}

// CreateWithTx records the activity as part of the caller's transaction.
func (r ActivityLogRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, in CreateActivityInput) (int64, error) {
	return r.create(ctx, tx, in)
}

func (r ActivityLogRepository) create(ctx context.Context, ex sqlx.ExecerContext, in CreateActivityInput) (int64, error) {
	if !in.Type.Valid() {
		return 0, domain.Validationf("invalid activity type %q", in.Type)
	}
	if in.Entity == "" || in.Description == "" {
		return 0, domain.Validationf("activity entity and description are required")
	}
	if in.UserID <= 0 {
		in.UserID = 1
	}
	at := in.At
	if at.IsZero() {
		at = time.Now()
	}
	res, err := ex.ExecContext(ctx, `
		INSERT INTO activities (type, entity, entity_id, entity_name, description, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(in.Type), in.Entity, in.EntityID, in.EntityName, in.Description, in.UserID, at.UTC())
	if err != nil {
		return 0, db.Classify(err, "record activity")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, db.Classify(err, "record activity")
	}
	return id, nil
}

// List returns the newest activities first.
func (r ActivityLogRepository) List(ctx context.Context, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	items := []domain.Activity{}
	err := r.DB.Conn.SelectContext(ctx, &items, `
		SELECT id, type, entity, entity_id, entity_name, description, user_id, created_at
		FROM activities
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, db.Classify(err, "list activities")
	}
	return items, nil
}
