package registry

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Conn 是注册表对连接的全部要求，*ws.Client 满足该接口。
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type entry struct {
	mu   sync.Mutex
	conn Conn
}

// Registry 维护 user id 到活跃连接的映射，是"用户当前是否可达"的唯一权威。
// 外层锁只保护 map 查找，网络写入在每个 entry 自己的锁下进行，
// 慢连接不会阻塞其他用户的投递。
type Registry struct {
	mu    sync.RWMutex
	conns map[uint]*entry
}

func New() *Registry {
	return &Registry{conns: make(map[uint]*entry)}
}

// Register 安装 uid 的唯一连接，重连时后注册者胜出，被顶替的旧连接直接关闭。
func (r *Registry) Register(userID uint, c Conn) {
	e := &entry{conn: c}
	r.mu.Lock()
	old := r.conns[userID]
	r.conns[userID] = e
	r.mu.Unlock()
	if old != nil {
		_ = old.conn.Close()
		log.Debug().Uint("user_id", userID).Msg("registry: replaced stale connection")
	}
}

// Unregister 仅在 c 仍是当前连接时移除，避免旧连接退出时误删新连接。
func (r *Registry) Unregister(userID uint, c Conn) {
	r.mu.Lock()
	if e, ok := r.conns[userID]; ok && e.conn == c {
		delete(r.conns, userID)
	}
	r.mu.Unlock()
}

func (r *Registry) IsOnline(userID uint) bool {
	r.mu.RLock()
	_, ok := r.conns[userID]
	r.mu.RUnlock()
	return ok
}

// Online 返回当前活跃连接数。
func (r *Registry) Online() int {
	r.mu.RLock()
	n := len(r.conns)
	r.mu.RUnlock()
	return n
}

// Send 向在线用户写入 payload，返回写入是否成功。
// 写失败意味着对端已消失，连接被立即摘除，之后 IsOnline 返回 false。
func (r *Registry) Send(userID uint, payload interface{}) bool {
	r.mu.RLock()
	e := r.conns[userID]
	r.mu.RUnlock()
	if e == nil {
		return false
	}
	e.mu.Lock()
	err := e.conn.WriteJSON(payload)
	e.mu.Unlock()
	if err != nil {
		log.Debug().Err(err).Uint("user_id", userID).Msg("registry: send failed, dropping connection")
		r.drop(userID, e)
		return false
	}
	return true
}

// Broadcast 向所有连接尽力投递，单个连接失败不影响其余。
func (r *Registry) Broadcast(payload interface{}) {
	r.mu.RLock()
	snapshot := make(map[uint]*entry, len(r.conns))
	for uid, e := range r.conns {
		snapshot[uid] = e
	}
	r.mu.RUnlock()
	for uid, e := range snapshot {
		e.mu.Lock()
		err := e.conn.WriteJSON(payload)
		e.mu.Unlock()
		if err != nil {
			r.drop(uid, e)
		}
	}
}

// drop 摘除失效连接，entry 比较保证不会误删重连后的新连接。
func (r *Registry) drop(userID uint, e *entry) {
	r.mu.Lock()
	if cur, ok := r.conns[userID]; ok && cur == e {
		delete(r.conns, userID)
	}
	r.mu.Unlock()
	_ = e.conn.Close()
}
