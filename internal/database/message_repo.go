package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/victorivanov/courier/internal/models"
)

type messageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepo{pool: pool}
}

func (r *messageRepo) Create(ctx context.Context, msg *models.Message) error {
	var attURL, attKind, attName *string
	if msg.Attachment != nil {
		attURL = &msg.Attachment.URL
		attKind = &msg.Attachment.Kind
		attName = &msg.Attachment.DisplayName
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content,
		                       attachment_url, attachment_kind, attachment_name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content,
		attURL, attKind, attName, msg.CreatedAt,
	)
	return err
}

func (r *messageRepo) GetByID(ctx context.Context, id int64) (*models.MessageWithSender, error) {
	m := &models.MessageWithSender{}
	var attURL, attKind, attName *string
	err := r.pool.QueryRow(ctx,
		`SELECT m.id, m.conversation_id, m.sender_id, m.content,
		        m.attachment_url, m.attachment_kind, m.attachment_name, m.created_at,
		        u.username, u.display_name, u.avatar_url
		 FROM messages m
		 INNER JOIN users u ON u.id = m.sender_id
		 WHERE m.id = $1`, id,
	).Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.Content,
		&attURL, &attKind, &attName, &m.CreatedAt,
		&m.SenderUsername, &m.SenderDisplayName, &m.SenderAvatarURL,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if attURL != nil {
		m.Attachment = &models.Attachment{URL: *attURL, Kind: *attKind, DisplayName: *attName}
	}
	return m, nil
}

func (r *messageRepo) ListByConversation(ctx context.Context, conversationID int64, before *int64, limit int) ([]models.MessageWithSender, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.id, m.conversation_id, m.sender_id, m.content,
		        m.attachment_url, m.attachment_kind, m.attachment_name, m.created_at,
		        u.username, u.display_name, u.avatar_url
		 FROM messages m
		 INNER JOIN users u ON u.id = m.sender_id
		 WHERE m.conversation_id = $1 AND ($2::BIGINT IS NULL OR m.id < $2)
		 ORDER BY m.created_at DESC, m.id DESC
		 LIMIT $3`,
		conversationID, before, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.MessageWithSender
	for rows.Next() {
		var m models.MessageWithSender
		var attURL, attKind, attName *string
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderID, &m.Content,
			&attURL, &attKind, &attName, &m.CreatedAt,
			&m.SenderUsername, &m.SenderDisplayName, &m.SenderAvatarURL,
		); err != nil {
			return nil, err
		}
		if attURL != nil {
			m.Attachment = &models.Attachment{URL: *attURL, Kind: *attKind, DisplayName: *attName}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query walks newest-first for the cursor; callers render oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
