package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wesmun/nfc-core/internal/infrastructure/database"
)

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, e *Entry) (int64, error)
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Delete(ctx context.Context, id int64) error
	DeleteMany(ctx context.Context, ids []int64) (int64, error)
}

// SQLiteRepository stores audit logs in SQLite.
type SQLiteRepository struct {
	db database.Querier
}

// NewSQLiteRepository creates a new audit log repository.
func NewSQLiteRepository(db database.Querier) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry and returns its id. Actor and target references
// that do not resolve to an existing user are stored as NULL, and their
// name and email are snapshotted in the same statement.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) (int64, error) {
	var detailsJSON sql.NullString
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return 0, fmt.Errorf("marshalling audit details: %w", err)
		}
		detailsJSON = sql.NullString{String: string(b), Valid: true}
	}

	actor := snapshotArgs(e.ActorSnapshot)
	target := snapshotArgs(e.TargetSnapshot)

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (
			actor_id, actor_name, actor_email,
			target_user_id, target_user_name, target_user_email,
			action, details, ip_address, user_agent, created_at)
		 VALUES (
			(SELECT id FROM users WHERE id = ?1),
			COALESCE(?2, (SELECT name FROM users WHERE id = ?1)),
			COALESCE(?3, (SELECT email FROM users WHERE id = ?1)),
			(SELECT id FROM users WHERE id = ?4),
			COALESCE(?5, (SELECT name FROM users WHERE id = ?4)),
			COALESCE(?6, (SELECT email FROM users WHERE id = ?4)),
			?7, ?8, ?9, ?10, ?11)`,
		e.ActorID, actor.name, actor.email,
		e.TargetUserID, target.name, target.email,
		e.Action, detailsJSON, nullableString(e.IPAddress), nullableString(e.UserAgent),
		database.FormatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting audit log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading audit log id: %w", err)
	}
	return id, nil
}

type snapshot struct {
	name, email sql.NullString
}

func snapshotArgs(p *Party) snapshot {
	if p == nil {
		return snapshot{}
	}
	return snapshot{
		name:  sql.NullString{String: p.Name, Valid: p.Name != ""},
		email: sql.NullString{String: p.Email, Valid: p.Email != ""},
	}
}

// nullableString returns nil for empty strings. Used for nullable TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// escapeLike escapes LIKE wildcards so search terms match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List returns audit logs matching the filter, newest first. Snapshot columns
// take precedence over the live user row.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Action != "" {
		conditions = append(conditions, "al.action = ?")
		args = append(args, filter.Action)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + escapeLike(strings.ToLower(s)) + "%"
		var ors []string
		for _, col := range []string{
			"COALESCE(al.actor_name, actor.name, '')",
			"COALESCE(al.actor_email, actor.email, '')",
			"COALESCE(al.target_user_name, target.name, '')",
			"COALESCE(al.target_user_email, target.email, '')",
			"al.action",
			"COALESCE(al.ip_address, '')",
		} {
			ors = append(ors, "ulower("+col+`) LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		}
		conditions = append(conditions, "("+strings.Join(ors, " OR ")+")")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	const from = `FROM audit_logs al
		LEFT JOIN users actor ON actor.id = al.actor_id
		LEFT JOIN users target ON target.id = al.target_user_id`

	var total int
	countQuery := "SELECT COUNT(*) " + from + " " + where //nolint:gosec // WHERE built from parameterised conditions, not user input
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	query := `SELECT al.id, al.action, al.details, al.ip_address, al.user_agent, al.created_at,
			al.actor_id, COALESCE(al.actor_name, actor.name), COALESCE(al.actor_email, actor.email),
			al.target_user_id, COALESCE(al.target_user_name, target.name), COALESCE(al.target_user_email, target.email)
		` + from + " " + where + //nolint:gosec // WHERE built from parameterised conditions, not user input
		" ORDER BY al.created_at DESC, al.id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []Log{}
	for rows.Next() {
		var l Log
		var details, ip, ua sql.NullString
		var actorID, actorName, actorEmail sql.NullString
		var targetID, targetName, targetEmail sql.NullString
		var createdAt string

		if err := rows.Scan(&l.ID, &l.Action, &details, &ip, &ua, &createdAt,
			&actorID, &actorName, &actorEmail,
			&targetID, &targetName, &targetEmail); err != nil {
			return nil, fmt.Errorf("scanning audit log: %w", err)
		}

		if details.Valid && details.String != "" {
			var d map[string]any
			if json.Unmarshal([]byte(details.String), &d) == nil {
				l.Details = d
			}
		}
		l.IPAddress = ip.String
		l.UserAgent = ua.String
		l.CreatedAt = database.ParseTime(createdAt)
		l.Actor = Party{ID: actorID.String, Name: actorName.String, Email: actorEmail.String}
		l.TargetUser = Party{ID: targetID.String, Name: targetName.String, Email: targetEmail.String}

		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}

	return &ListResult{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// Delete removes one entry.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting audit log: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMany removes the listed entries and returns how many existed.
func (r *SQLiteRepository) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM audit_logs WHERE id IN ("+placeholders+")", args...) //nolint:gosec // placeholders only
	if err != nil {
		return 0, fmt.Errorf("bulk deleting audit logs: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}
