package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/victorivanov/courier/internal/models"
)

type participantRepo struct {
	pool *pgxpool.Pool
}

func NewParticipantRepository(pool *pgxpool.Pool) ParticipantRepository {
	return &participantRepo{pool: pool}
}

func (r *participantRepo) MarkRead(ctx context.Context, conversationID, userID int64) error {
	// GREATEST keeps the watermark monotonic even when a concurrent MarkRead
	// commits a later NOW() first. The clock is the server's, never the client's.
	_, err := r.pool.Exec(ctx,
		`UPDATE participants
		 SET last_read_at = GREATEST(COALESCE(last_read_at, 'epoch'::timestamptz), NOW())
		 WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	)
	return err
}

func (r *participantRepo) Get(ctx context.Context, conversationID, userID int64) (*models.Participant, error) {
	p := &models.Participant{}
	err := r.pool.QueryRow(ctx,
		`SELECT conversation_id, user_id, joined_at, last_read_at
		 FROM participants
		 WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	).Scan(&p.ConversationID, &p.UserID, &p.JoinedAt, &p.LastReadAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *participantRepo) UnreadCount(ctx context.Context, conversationID, userID int64) (int, error) {
	// Watermark and messages are read in one statement so the count is
	// computed against a single snapshot.
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM participants p
		 INNER JOIN messages m ON m.conversation_id = p.conversation_id
		 WHERE p.conversation_id = $1 AND p.user_id = $2
		   AND m.sender_id <> p.user_id
		   AND (p.last_read_at IS NULL OR m.created_at > p.last_read_at)`,
		conversationID, userID,
	).Scan(&count)
	return count, err
}

func (r *participantRepo) TotalUnread(ctx context.Context, userID int64) (int, error) {
	// One indexed range count across all the user's conversations; the
	// directory badge reads this on every load.
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM participants p
		 INNER JOIN messages m ON m.conversation_id = p.conversation_id
		 WHERE p.user_id = $1
		   AND m.sender_id <> p.user_id
		   AND (p.last_read_at IS NULL OR m.created_at > p.last_read_at)`,
		userID,
	).Scan(&total)
	return total, err
}
