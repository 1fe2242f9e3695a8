package storage

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voidshard/igor/pkg/storage/changes"
	"github.com/voidshard/igor/pkg/structs"
)

// pgChangeStream turns Postgres NOTIFY payloads on the igor_task_events
// channel into changes.Change values. The matching triggers/NOTIFY calls
// live in pkg/storage/migrations.
type pgChangeStream struct {
	ctx    context.Context
	conn   *pgxpool.Conn
	closed bool
}

type pgTaskPayload struct {
	Kind changes.Kind          `json:"kind"`
	Old  *structs.ScheduledTask `json:"old"`
	New  *structs.ScheduledTask `json:"new"`
}

func (p *pgChangeStream) Next() (*changes.Change, error) {
	if p.closed {
		return nil, nil
	}
	notification, err := p.conn.Conn().WaitForNotification(p.ctx)
	if err != nil {
		return nil, err
	}
	payload := pgTaskPayload{}
	if err := json.Unmarshal([]byte(notification.Payload), &payload); err != nil {
		return nil, err
	}
	return &changes.Change{Kind: payload.Kind, Old: payload.Old, New: payload.New}, nil
}

func (p *pgChangeStream) Close() error {
	p.closed = true
	p.conn.Release()
	return nil
}
