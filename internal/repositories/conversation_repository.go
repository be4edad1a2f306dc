package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	Resolve(ctx context.Context, userID int, peerID int) (models.Conversation, bool, error)
	GetByID(ctx context.Context, conversationID int) (models.Conversation, error)
	FindByPair(ctx context.Context, userID int, peerID int) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error)
	ListForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const findByPairQuery = `SELECT c.id, c.kind, c.created_at FROM conversations c
    JOIN conversation_participants pa ON pa.conversation_id = c.id AND pa.user_id = $1
    JOIN conversation_participants pb ON pb.conversation_id = c.id AND pb.user_id = $2
    WHERE c.kind = 'private'`

// Resolve finds the unique private conversation for the pair, creating
// it with both participants joined now when none exists. The boolean
// reports whether a new conversation was created. Creation is
// serialized per unordered pair with an advisory lock: concurrent
// first messages from both sides would otherwise each miss the lookup
// and insert a duplicate conversation.
func (r *ConversationRepo) Resolve(ctx context.Context, userID int, peerID int) (models.Conversation, bool, error) {
	if userID == peerID {
		return models.Conversation{}, false, errors.New("cannot start conversation with self")
	}

	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, findByPairQuery, userID, peerID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, false, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, false, err
	}
	defer tx.Rollback()

	lo, hi := userID, peerID
	if lo > hi {
		lo, hi = hi, lo
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, lo, hi); err != nil {
		return models.Conversation{}, false, err
	}

	// Re-check under the lock: the loser of a concurrent first-message
	// race adopts the winner's conversation instead of creating another.
	err = tx.GetContext(ctx, &conv, findByPairQuery, userID, peerID)
	if err == nil {
		return conv, false, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, false, err
	}

	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO conversations (kind) VALUES ('private') RETURNING id, kind, created_at`).
		Scan(&conv.ID, &conv.Kind, &conv.CreatedAt); err != nil {
		return models.Conversation{}, false, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2), ($1, $3)`,
		conv.ID, userID, peerID); err != nil {
		return models.Conversation{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return models.Conversation{}, false, err
	}
	return conv, true, nil
}

// GetByID fetches a conversation by id. Callers that pass an explicit
// id must not fall back to creation on a miss.
func (r *ConversationRepo) GetByID(ctx context.Context, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT id, kind, created_at FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// FindByPair looks up the private conversation for a pair without
// creating one.
func (r *ConversationRepo) FindByPair(ctx context.Context, userID int, peerID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, findByPairQuery, userID, peerID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`,
		conversationID, userID)
	return exists, err
}

// ListForUser returns one summary row per conversation the user
// participates in, newest activity first, each with its latest message.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	query := `SELECT c.id, c.kind, peer.user_id,
            m.id, m.sender_id, m.body, m.created_at
        FROM conversations c
        JOIN conversation_participants me ON me.conversation_id = c.id AND me.user_id = $1
        JOIN conversation_participants peer ON peer.conversation_id = c.id AND peer.user_id <> $1
        LEFT JOIN LATERAL (
            SELECT id, sender_id, body, created_at FROM messages
            WHERE conversation_id = c.id
            ORDER BY created_at DESC, id DESC LIMIT 1
        ) m ON TRUE
        ORDER BY m.created_at DESC NULLS LAST, c.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ConversationSummary
	for rows.Next() {
		var summary models.ConversationSummary
		var msgID, msgSender sql.NullInt64
		var msgBody sql.NullString
		var msgCreated sql.NullTime
		if err := rows.Scan(&summary.ConversationID, &summary.Kind, &summary.ReceiverID,
			&msgID, &msgSender, &msgBody, &msgCreated); err != nil {
			return nil, err
		}
		if msgID.Valid {
			summary.LatestMessage = &models.Message{
				ID:             int(msgID.Int64),
				ConversationID: summary.ConversationID,
				SenderID:       int(msgSender.Int64),
				Body:           msgBody.String,
				CreatedAt:      msgCreated.Time,
			}
		}
		result = append(result, summary)
	}
	return result, rows.Err()
}
