package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Kylemerian/real-time-web-chat/internal/metrics"
	"github.com/rs/zerolog/log"
)

// TTL 是所有缓存视图的统一过期时间。
const TTL = 5 * time.Minute

// Store 是带 TTL 的 KV 存储抽象，redis 与内存实现均满足。
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

func UserChatsKey(userID uint) string {
	return fmt.Sprintf("user_chats:%d", userID)
}

func ChatHistoryKey(chatID uint) string {
	return fmt.Sprintf("chat_history:%d", chatID)
}

// Cache 在 Store 之上提供 JSON 序列化与按业务键失效。
// 缓存是旁路的：任何错误都按 miss 处理，只记日志不影响主流程。
type Cache struct {
	store Store
}

func New(store Store) *Cache { return &Cache{store: store} }

// GetJSON 命中时反序列化到 v 并返回 true，错误视同 miss。
func (c *Cache) GetJSON(ctx context.Context, key string, v interface{}) bool {
	b, ok, err := c.store.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache get")
		metrics.CacheMisses.Inc()
		return false
	}
	if !ok {
		metrics.CacheMisses.Inc()
		return false
	}
	if err := json.Unmarshal(b, v); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache decode")
		metrics.CacheMisses.Inc()
		return false
	}
	metrics.CacheHits.Inc()
	return true
}

func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache encode")
		return
	}
	if err := c.store.Set(ctx, key, b, TTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache set")
	}
}

// InvalidateUserChats 在会话创建后使创建者的会话列表失效。
func (c *Cache) InvalidateUserChats(ctx context.Context, userID uint) {
	if err := c.store.Del(ctx, UserChatsKey(userID)); err != nil {
		log.Warn().Err(err).Uint("user_id", userID).Msg("invalidate user chats")
	}
}

// InvalidateChatHistory 在消息落库后无条件使历史视图失效。
func (c *Cache) InvalidateChatHistory(ctx context.Context, chatID uint) {
	if err := c.store.Del(ctx, ChatHistoryKey(chatID)); err != nil {
		log.Warn().Err(err).Uint("chat_id", chatID).Msg("invalidate chat history")
	}
}
