package repository

import (
	"github.com/jmoiron/sqlx"
)

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx so reads can join a
// caller's transaction.
type queryer interface {
	sqlx.ExtContext
}
