package chat

import (
	"context"
	"database/sql"
	"time"
)

// Repository mirrors transcripts into the local store so the studio works
// offline and the API can serve history without a SaaS round trip.
type Repository interface {
	SaveMessage(ctx context.Context, projectID string, m *Message) error
	ListMessages(ctx context.Context, projectID string) ([]Message, error)
	ClearMessages(ctx context.Context, projectID string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) SaveMessage(ctx context.Context, projectID string, m *Message) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, project_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content
	`, m.ID, projectID, m.Role, m.Content, m.CreatedAt.Format(time.RFC3339Nano))
	return err
}

func (r *SQLiteRepository) ListMessages(ctx context.Context, projectID string) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, role, content, created_at FROM chat_messages
		WHERE project_id = ? ORDER BY created_at ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *SQLiteRepository) ClearMessages(ctx context.Context, projectID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM chat_messages WHERE project_id = ?", projectID)
	return err
}
