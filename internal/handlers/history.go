package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/clients"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// HistoryHandler serves the conversation-list and history/pagination
// endpoints consumed by the chat dock.
type HistoryHandler struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	users         clients.UserDirectory
}

// NewHistoryHandler builds a HistoryHandler.
func NewHistoryHandler(conversations repositories.ConversationRepository, messages repositories.MessageRepository, users clients.UserDirectory) *HistoryHandler {
	return &HistoryHandler{conversations: conversations, messages: messages, users: users}
}

// GetMessageList returns one row per conversation the caller
// participates in, each with its latest message for preview.
func (h *HistoryHandler) GetMessageList(c *gin.Context) {
	userID := c.GetInt("userID")

	summaries, err := h.conversations.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	peerIDs := make([]int, 0, len(summaries))
	for _, summary := range summaries {
		peerIDs = append(peerIDs, summary.ReceiverID)
	}

	profiles, err := h.users.BulkUsers(c.Request.Context(), peerIDs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load user info"})
		return
	}
	profileByID := make(map[int]clients.UserProfile, len(profiles))
	for _, p := range profiles {
		profileByID[p.ID] = p
	}

	for i := range summaries {
		if p, ok := profileByID[summaries[i].ReceiverID]; ok {
			summaries[i].ReceiverName = p.Name
			summaries[i].ReceiverAvatar = p.Avatar
		}
	}
	if summaries == nil {
		summaries = []models.ConversationSummary{}
	}

	c.JSON(http.StatusOK, gin.H{"conversationList": summaries})
}

// GetConversationDetail returns the most recent history page. With an
// explicit conversation_id the response omits the id (the caller
// already has it); resolving by peer_id echoes the id, or null when no
// conversation exists yet.
func (h *HistoryHandler) GetConversationDetail(c *gin.Context) {
	userID := c.GetInt("userID")
	ctx := c.Request.Context()

	type detailResponse struct {
		ConversationID *int             `json:"conversationId,omitempty"`
		Messages       []models.Message `json:"messages"`
	}

	if raw := c.Query("conversation_id"); raw != "" {
		conversationID, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
			return
		}
		if !h.requireParticipant(c, conversationID, userID) {
			return
		}
		msgs, err := h.messages.LatestPage(ctx, conversationID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
			return
		}
		c.JSON(http.StatusOK, detailResponse{Messages: emptyIfNil(msgs)})
		return
	}

	peerID, err := strconv.Atoi(c.Query("peer_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "peer_id or conversation_id required"})
		return
	}

	conv, err := h.conversations.FindByPair(ctx, userID, peerID)
	if errors.Is(err, repositories.ErrConversationNotFound) {
		// No conversation yet; it is created lazily on first message.
		c.JSON(http.StatusOK, detailResponse{Messages: []models.Message{}})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve conversation"})
		return
	}

	msgs, err := h.messages.LatestPage(ctx, conv.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, detailResponse{ConversationID: &conv.ID, Messages: emptyIfNil(msgs)})
}

// LoadMessages pages backward through a conversation. An empty page is
// the only termination signal.
func (h *HistoryHandler) LoadMessages(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	userID := c.GetInt("userID")
	if !h.requireParticipant(c, conversationID, userID) {
		return
	}

	var msgs []models.Message
	if raw := c.Query("cursor_at"); raw != "" {
		cursor, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
		msgs, err = h.messages.PageBefore(c.Request.Context(), conversationID, cursor)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
			return
		}
	} else {
		msgs, err = h.messages.LatestPage(c.Request.Context(), conversationID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"messages": emptyIfNil(msgs)})
}

// GetPeerProfile proxies peer display info from the user service.
func (h *HistoryHandler) GetPeerProfile(c *gin.Context) {
	peerID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	profile, err := h.users.GetUser(c.Request.Context(), peerID)
	if errors.Is(err, clients.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load user info"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":              profile.Name,
		"avatar":            profile.Avatar,
		"avatarCroppedArea": profile.AvatarCroppedArea,
	})
}

func (h *HistoryHandler) requireParticipant(c *gin.Context, conversationID, userID int) bool {
	member, err := h.conversations.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return false
	}
	return true
}

func emptyIfNil(msgs []models.Message) []models.Message {
	if msgs == nil {
		return []models.Message{}
	}
	return msgs
}
