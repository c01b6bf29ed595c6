package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fleetify/api/internal/store"
)

const Entity = "audit_logs"

type Logger struct {
	store store.Store
}

func NewLogger(s store.Store) *Logger {
	return &Logger{store: s}
}

type Entry struct {
	TenantID   uuid.UUID
	UserID     *uuid.UUID
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	RequestID  string
	Metadata   map[string]any
}

func (l *Logger) Log(ctx context.Context, entry Entry) error {
	data := store.Data{
		"action":      entry.Action,
		"entity_type": entry.EntityType,
	}
	if entry.UserID != nil {
		data["user_id"] = entry.UserID.String()
	}
	if entry.EntityID != nil {
		data["entity_id"] = entry.EntityID.String()
	}
	if entry.RequestID != "" {
		data["request_id"] = entry.RequestID
	}
	if len(entry.Metadata) > 0 {
		data["metadata"] = entry.Metadata
	}

	if _, err := l.store.Create(ctx, entry.TenantID, Entity, store.Record{Data: data}); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
