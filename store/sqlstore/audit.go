package sqlstore

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	goIdentity "github.com/MrEthical07/goIdentity"
)

const auditWriteTimeout = 5 * time.Second

// AuditSink appends audit events to the audit_events table. Write errors are
// logged and dropped.
type AuditSink struct {
	store  *Store
	logger *zap.Logger
}

func NewAuditSink(store *Store, logger *zap.Logger) *AuditSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditSink{store: store, logger: logger.Named("audit_sql")}
}

func (a *AuditSink) Emit(ctx context.Context, event goIdentity.AuditEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	if err := a.store.RecordAuditEvent(ctx, event); err != nil {
		a.logger.Warn("audit event not stored", zap.String("action", event.Action), zap.Error(err))
	}
}

// RecordAuditEvent inserts one event. Metadata is stored as a JSON object.
func (s *Store) RecordAuditEvent(ctx context.Context, event goIdentity.AuditEvent) error {
	var metadata string
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return err
		}
		metadata = string(raw)
	}

	query := `INSERT INTO audit_events (ts, action, user_id, resource, ip, user_agent, success, error, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		toMillis(event.Timestamp), event.Action, event.UserID, event.Resource,
		event.IP, event.UserAgent, event.Success, event.Error, metadata,
	)
	return err
}

// AuditEvents returns the most recent events of userID, newest first.
func (s *Store) AuditEvents(ctx context.Context, userID string, limit int) ([]goIdentity.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ts, action, user_id, resource, ip, user_agent, success, error, metadata
		FROM audit_events WHERE user_id = ? ORDER BY id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []goIdentity.AuditEvent
	for rows.Next() {
		var (
			e        goIdentity.AuditEvent
			ts       int64
			metadata string
		)
		if err := rows.Scan(&ts, &e.Action, &e.UserID, &e.Resource, &e.IP, &e.UserAgent, &e.Success, &e.Error, &metadata); err != nil {
			return nil, err
		}
		e.Timestamp = fromMillis(ts)
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
