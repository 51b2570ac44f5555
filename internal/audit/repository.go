package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads "AuditLog" from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineSQL = `
SELECT a."occurredAt", a."actorId", u."name", a."action", a."entity", a."entityId", a."meta"
FROM "AuditLog" a
LEFT JOIN "User" u ON u."id" = a."actorId"
WHERE ($1::timestamptz IS NULL OR a."occurredAt" >= $1)
  AND ($2::timestamptz IS NULL OR a."occurredAt" < $2)
  AND ($3::text IS NULL OR a."actorId" = $3 OR u."name" = $3)
  AND ($4::text IS NULL OR a."entity" = $4)
  AND ($5::text IS NULL OR a."action" = $5)
ORDER BY a."occurredAt" DESC, a."id" DESC
OFFSET $6 LIMIT $7`

// Timeline implements Repository.
func (r *PGRepository) Timeline(ctx context.Context, q Query) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineSQL,
		toPgTime(q.From), toPgTime(q.To),
		optionalText(q.Actor), optionalText(q.Entity), optionalText(q.Action),
		q.Offset, q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline: %w", err)
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var (
			row  TimelineRow
			name pgtype.Text
			meta []byte
		)
		if err := rows.Scan(&row.At, &row.ActorID, &name, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, err
		}
		if name.Valid {
			row.ActorName = name.String
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, fmt.Errorf("audit: decode meta: %w", err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
