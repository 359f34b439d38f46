package ports

import (
	"context"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"github.com/jmoiron/sqlx"
)

// HealthChecker is used to probe dependencies.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// SalesLedger keeps derived sales figures in step with order writes. Every
// method joins the caller's transaction, so a failure undoes the order write too.
type SalesLedger interface {
	RecordOrderWithTx(ctx context.Context, tx *sqlx.Tx, o *domain.Order) error
	RemoveOrderWithTx(ctx context.Context, tx *sqlx.Tx, o *domain.Order) error
	AdjustOrderWithTx(ctx context.Context, tx *sqlx.Tx, o *domain.Order, delta int64) error
}
