package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Kylemerian/real-time-web-chat/internal/auth"
	"github.com/Kylemerian/real-time-web-chat/internal/config"
	"github.com/Kylemerian/real-time-web-chat/internal/registry"
	"github.com/Kylemerian/real-time-web-chat/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层与连接注册表。
type Handler struct {
	cfg     config.Config
	userSvc *service.UserService
	chatSvc *service.ChatService
	msgSvc  *service.MessageService
	reg     *registry.Registry
}

func NewHandler(cfg config.Config, userSvc *service.UserService, chatSvc *service.ChatService, msgSvc *service.MessageService, reg *registry.Registry) *Handler {
	return &Handler{cfg: cfg, userSvc: userSvc, chatSvc: chatSvc, msgSvc: msgSvc, reg: reg}
}

// Register 处理用户注册。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Nickname string `json:"nickname"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Nickname = strings.TrimSpace(req.Nickname)
	if req.Username == "" || req.Nickname == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Username) < 2 || len(req.Username) > 64 || len(req.Nickname) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username"})
		return
	}
	if len(req.Password) < 4 || len(req.Password) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid password"})
		return
	}
	user, err := h.userSvc.Register(c.Request.Context(), req.Username, req.Nickname, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
		case errors.Is(err, service.ErrNicknameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "nickname taken"})
		default:
			log.Error().Err(err).Str("username", req.Username).Msg("register")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": user.ID, "username": user.Username, "nickname": user.Nickname})
}

// Login 校验口令、签发令牌并写入 access_token cookie。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	token, user, err := h.userSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("access_token", token, h.cfg.AccessTokenTTLMinutes*60, "/", "", false, false)
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"user":         gin.H{"id": user.ID, "username": user.Username, "nickname": user.Nickname},
	})
}

// BindTelegram 绑定用户的 Telegram chat id。
func (h *Handler) BindTelegram(c *gin.Context) {
	var req struct {
		TgID int64 `json:"tg_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.TgID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	uid := auth.GetUserID(c)
	if err := h.userSvc.BindTelegram(c.Request.Context(), uid, req.TgID); err != nil {
		log.Error().Err(err).Uint("user_id", uid).Msg("bind telegram")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to bind telegram"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CreateChat 在两个用户间建立会话，其中一个必须是调用者本人。
func (h *Handler) CreateChat(c *gin.Context) {
	var req struct {
		UserID1 uint `json:"user_id_1"`
		UserID2 uint `json:"user_id_2"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID1 == 0 || req.UserID2 == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	uid := auth.GetUserID(c)
	if req.UserID1 != uid && req.UserID2 != uid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "one of the user ids must belong to the authenticated user"})
		return
	}
	if req.UserID1 == req.UserID2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot create a chat with yourself"})
		return
	}
	chatID, err := h.chatSvc.Create(c.Request.Context(), uid, req.UserID1, req.UserID2)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) || errors.Is(err, service.ErrSameUser) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat participants"})
			return
		}
		log.Error().Err(err).Uint("user_id", uid).Msg("create chat")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create chat"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID})
}

// ListChats 返回调用者的会话列表，对端在线状态按注册表现场填充。
func (h *Handler) ListChats(c *gin.Context) {
	uid := auth.GetUserID(c)
	chats, err := h.chatSvc.ListForUser(c.Request.Context(), uid)
	if err != nil {
		log.Error().Err(err).Uint("user_id", uid).Msg("list chats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list chats"})
		return
	}
	for i := range chats {
		chats[i].Online = h.reg.IsOnline(chats[i].CompanionID)
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// History 返回会话历史；对端 uid 由缓存视图里的成员列表推导。
func (h *Handler) History(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("id"))
	if err != nil || chatID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}
	uid := auth.GetUserID(c)
	view, err := h.msgSvc.History(c.Request.Context(), uint(chatID), uid)
	if err != nil {
		log.Error().Err(err).Int("chat_id", chatID).Msg("chat history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	var anotherUID *uint
	for _, id := range view.MemberIDs {
		if id != uid {
			v := id
			anotherUID = &v
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"uid": uid, "another_uid": anotherUID, "messages": view.Messages})
}
