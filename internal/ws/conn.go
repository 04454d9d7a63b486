package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Kylemerian/real-time-web-chat/internal/auth"
	"github.com/Kylemerian/real-time-web-chat/internal/config"
	"github.com/Kylemerian/real-time-web-chat/internal/metrics"
	"github.com/Kylemerian/real-time-web-chat/internal/models"
	"github.com/Kylemerian/real-time-web-chat/internal/registry"
	"github.com/Kylemerian/real-time-web-chat/internal/relay"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	readLimit     = 1 << 20 // 1MB
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client 包装 websocket 连接，用互斥锁串行化所有写入。
// gorilla 不允许并发写，推送与心跳都从这里过。
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
	once sync.Once
	done chan struct{}
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn, done: make(chan struct{})}
}

func (c *Client) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteJSON(v)
}

func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	return c.conn.Close()
}

// pingLoop 周期性发心跳维持读超时，写失败即关闭连接。
func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

// Serve 处理实时连接：鉴权先于升级，升级后注册连接并循环读入站消息。
// 一条消息完整走完中继流程后才读下一条；读错误即注销并关闭。
func Serve(cfg config.Config, gdb *gorm.DB, reg *registry.Registry, rel *relay.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := auth.TokenFromRequest(c)
		if tokenStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := auth.ParseAccessToken(tokenStr, cfg.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		var user models.User
		if err := gdb.First(&user, claims.UserID).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := newClient(conn)
		reg.Register(user.ID, client)
		metrics.WsConnections.Inc()
		go client.pingLoop()
		defer func() {
			reg.Unregister(user.ID, client)
			_ = client.Close()
			metrics.WsConnections.Dec()
		}()

		conn.SetReadLimit(readLimit)
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readDeadline))
		})

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
			var in relay.Inbound
			if err := json.Unmarshal(data, &in); err != nil {
				log.Debug().Err(err).Uint("user_id", user.ID).Msg("ws: malformed inbound message")
				continue
			}
			if err := rel.HandleInbound(c.Request.Context(), &user, in); err != nil {
				// 落库失败只影响这一条消息，连接继续存活。
				log.Warn().Err(err).Uint("user_id", user.ID).Uint("chat_id", in.ChatID).Msg("ws: inbound message not relayed")
			}
		}
	}
}
