package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// AuditRepo handles the append-only audit log. Rows are never updated;
// the only delete path is the retention purge.
type AuditRepo struct {
	db DBTX
}

func NewAuditRepo(db DBTX) *AuditRepo { return &AuditRepo{db: db} }

func (r *AuditRepo) Append(ctx context.Context, e AuditEntry) error {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
	INSERT INTO audit_log(id, user_id, entity_id, activity_type, description, metadata, severity, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
	`, e.ID, e.UserID, e.EntityID, e.ActivityType, e.Description, string(raw), e.Severity)
	return err
}

// ListForEntity pages the audit trail of one entity, newest first.
func (r *AuditRepo) ListForEntity(ctx context.Context, entityID, userID string, limit, offset int) ([]AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT seq, id, user_id, entity_id, activity_type, description, metadata, severity, created_at
	FROM audit_log
	WHERE entity_id = ? AND user_id = ?
	ORDER BY seq DESC
	LIMIT ? OFFSET ?`, entityID, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var raw string
		if err := rows.Scan(&e.Seq, &e.ID, &e.UserID, &e.EntityID, &e.ActivityType, &e.Description, &raw, &e.Severity, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeOlderThan removes entries past the retention window and reports how
// many were dropped.
func (r *AuditRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
