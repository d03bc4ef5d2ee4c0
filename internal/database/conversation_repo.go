package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/victorivanov/courier/internal/models"
)

type conversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) ConversationRepository {
	return &conversationRepo{pool: pool}
}

func (r *conversationRepo) Resolve(ctx context.Context, userA, userB, newID int64) (*models.Conversation, bool, error) {
	pairKey := models.PairKey(userA, userB)

	var existingID int64
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM conversations WHERE pair_key = $1`, pairKey,
	).Scan(&existingID)
	if err == nil {
		conv, err := r.GetByID(ctx, existingID)
		return conv, false, err
	}
	if err != pgx.ErrNoRows {
		return nil, false, err
	}

	// Not found; create conversation and both participant rows atomically.
	// The unique index on pair_key closes the check-then-act race: a
	// concurrent resolve that wins the insert turns ours into a no-op and
	// we re-resolve to the winner's row.
	now := time.Now()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	var insertedID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO conversations (id, pair_key, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (pair_key) DO NOTHING
		 RETURNING id`,
		newID, pairKey, now,
	).Scan(&insertedID)
	if err == pgx.ErrNoRows {
		// Lost the race; someone else just created it.
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			return nil, false, err
		}
		err = r.pool.QueryRow(ctx,
			`SELECT id FROM conversations WHERE pair_key = $1`, pairKey,
		).Scan(&existingID)
		if err != nil {
			return nil, false, err
		}
		conv, err := r.GetByID(ctx, existingID)
		return conv, false, err
	}
	if err != nil {
		return nil, false, err
	}

	for _, uid := range []int64{userA, userB} {
		_, err = tx.Exec(ctx,
			`INSERT INTO participants (conversation_id, user_id, joined_at) VALUES ($1, $2, $3)`,
			insertedID, uid, now,
		)
		if err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}

	conv, err := r.GetByID(ctx, insertedID)
	return conv, true, err
}

func (r *conversationRepo) GetByID(ctx context.Context, id int64) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, created_at FROM conversations WHERE id = $1`, id,
	).Scan(&conv.ID, &conv.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT conversation_id, user_id, joined_at, last_read_at
		 FROM participants
		 WHERE conversation_id = $1
		 ORDER BY user_id`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ConversationID, &p.UserID, &p.JoinedAt, &p.LastReadAt); err != nil {
			return nil, err
		}
		conv.Participants = append(conv.Participants, p)
	}
	return conv, rows.Err()
}

func (r *conversationRepo) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM participants WHERE conversation_id = $1 AND user_id = $2)`,
		conversationID, userID,
	).Scan(&exists)
	return exists, err
}

// ListSummaries builds the conversation directory for a user in one query:
// the other participant, the newest message, and the unread count, sorted by
// last activity. Unread counts are derived here, not read from a stored
// counter, so they cannot drift from the message table.
func (r *conversationRepo) ListSummaries(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.created_at, other.user_id,
		        lm.id, lm.sender_id, lm.content,
		        lm.attachment_url, lm.attachment_kind, lm.attachment_name,
		        lm.created_at,
		        (SELECT COUNT(*) FROM messages m
		         WHERE m.conversation_id = c.id
		           AND m.sender_id <> me.user_id
		           AND (me.last_read_at IS NULL OR m.created_at > me.last_read_at))
		 FROM conversations c
		 INNER JOIN participants me ON me.conversation_id = c.id AND me.user_id = $1
		 INNER JOIN participants other ON other.conversation_id = c.id AND other.user_id <> $1
		 LEFT JOIN LATERAL (
		     SELECT m.id, m.sender_id, m.content,
		            m.attachment_url, m.attachment_kind, m.attachment_name,
		            m.created_at
		     FROM messages m
		     WHERE m.conversation_id = c.id
		     ORDER BY m.created_at DESC, m.id DESC
		     LIMIT 1
		 ) lm ON true
		 ORDER BY COALESCE(lm.created_at, c.created_at) DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.ConversationSummary
	for rows.Next() {
		var s models.ConversationSummary
		var lmID, lmSender *int64
		var lmContent, attURL, attKind, attName *string
		var lmCreated *time.Time
		if err := rows.Scan(
			&s.ConversationID, &s.CreatedAt, &s.OtherUserID,
			&lmID, &lmSender, &lmContent,
			&attURL, &attKind, &attName,
			&lmCreated,
			&s.UnreadCount,
		); err != nil {
			return nil, err
		}
		if lmID != nil {
			msg := &models.MessageWithSender{}
			msg.ID = *lmID
			msg.ConversationID = s.ConversationID
			msg.SenderID = *lmSender
			msg.Content = *lmContent
			msg.CreatedAt = *lmCreated
			if attURL != nil {
				msg.Attachment = &models.Attachment{URL: *attURL, Kind: *attKind, DisplayName: *attName}
			}
			s.LastMessage = msg
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
