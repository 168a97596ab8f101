package repository

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/video-submission-checker/internal/config"
)

// SQLRepository holds the shared handle and dialect. Queries are written
// with ? placeholders and rebound for postgres.
type SQLRepository struct {
	db      *sql.DB
	dialect string
	logger  zerolog.Logger
}

func NewSQLRepository(db *sql.DB, dialect string, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

func (r *SQLRepository) rebind(query string) string {
	if r.dialect != config.DriverPostgres {
		return query
	}
	return Rebind(query)
}

// Rebind rewrites ? placeholders as $1, $2, ...
func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.db.PingContext(ctx)
}

func (r *SQLRepository) Close() error {
	return r.db.Close()
}
