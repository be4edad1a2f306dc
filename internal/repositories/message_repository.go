package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
	"messaging-service/protocol"
)

// PageSize is the fixed history page size.
const PageSize = 20

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	Append(ctx context.Context, conversationID int, senderID int, body string) (models.Message, error)
	LatestPage(ctx context.Context, conversationID int) ([]models.Message, error)
	PageBefore(ctx context.Context, conversationID int, before time.Time) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append stores an immutable message and seeds its read set with the
// sender at creation time. Body content is stored as given; emptiness
// is the send boundary's concern.
func (r *MessageRepo) Append(ctx context.Context, conversationID int, senderID int, body string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, body) VALUES ($1, $2, $3)
         RETURNING id, conversation_id, sender_id, body, created_at`,
		conversationID, senderID, body).
		Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Body, &msg.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO message_reads (message_id, user_id, read_at) VALUES ($1, $2, $3)`,
		msg.ID, senderID, msg.CreatedAt); err != nil {
		return models.Message{}, err
	}

	msg.Attachments = []protocol.Attachment{}
	msg.ReadBy = []protocol.ReadReceipt{{UserID: senderID, ReadAt: msg.CreatedAt}}
	return msg, nil
}

// LatestPage returns the most recent page of a conversation,
// oldest to newest.
func (r *MessageRepo) LatestPage(ctx context.Context, conversationID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT id, conversation_id, sender_id, body, created_at FROM messages
         WHERE conversation_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		conversationID, PageSize)
	if err != nil {
		return nil, err
	}
	return r.hydratePage(ctx, msgs)
}

// PageBefore returns the page strictly older than the cursor,
// oldest to newest. An empty result is the termination signal.
func (r *MessageRepo) PageBefore(ctx context.Context, conversationID int, before time.Time) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT id, conversation_id, sender_id, body, created_at FROM messages
         WHERE conversation_id=$1 AND created_at < $2 ORDER BY created_at DESC, id DESC LIMIT $3`,
		conversationID, before, PageSize)
	if err != nil {
		return nil, err
	}
	return r.hydratePage(ctx, msgs)
}

// hydratePage reverses a newest-first page into wire order and loads
// read receipts for the page in one query.
func (r *MessageRepo) hydratePage(ctx context.Context, msgs []models.Message) ([]models.Message, error) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	ids := make([]int64, 0, len(msgs))
	for i := range msgs {
		msgs[i].Attachments = []protocol.Attachment{}
		msgs[i].ReadBy = []protocol.ReadReceipt{}
		ids = append(ids, int64(msgs[i].ID))
	}
	if len(ids) == 0 {
		return msgs, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT message_id, user_id, read_at FROM message_reads WHERE message_id = ANY($1) ORDER BY read_at`,
		pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readsByMessage := make(map[int][]protocol.ReadReceipt)
	for rows.Next() {
		var messageID int
		var receipt protocol.ReadReceipt
		if err := rows.Scan(&messageID, &receipt.UserID, &receipt.ReadAt); err != nil {
			return nil, err
		}
		readsByMessage[messageID] = append(readsByMessage[messageID], receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range msgs {
		if reads, ok := readsByMessage[msgs[i].ID]; ok {
			msgs[i].ReadBy = reads
		}
	}
	return msgs, nil
}
