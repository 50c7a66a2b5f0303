package realtime

import (
	"errors"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/nao1215/socialhub/pkg/apperr"
	"github.com/nao1215/socialhub/pkg/event"
)

// errConnectionClosed は切断処理済みの接続への送信を表す。
var errConnectionClosed = errors.New("接続は切断済みです")

// Sender は1つの接続へイベントを書き込む。
// 実装は同時に呼び出されないことを前提にしてよい。
type Sender interface {
	Send(env *event.Envelope) error
}

// connection はRegistryが所有する1つの接続。
type connection struct {
	id     string
	userID string
	sender Sender
	// rooms は参加中のルーム。Registry.mu で保護する。
	rooms map[string]struct{}

	// mu は送信を直列化し、closed を保護する。
	mu     sync.Mutex
	closed bool
}

// deliver は接続が切断されていなければイベントを送信する。
func (c *connection) deliver(env *event.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnectionClosed
	}
	return c.sender.Send(env)
}

func (c *connection) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Registry は接続とルームのメンバーシップ、ユーザーと接続の対応を管理する。
type Registry struct {
	mu sync.RWMutex
	// conns は接続IDから接続への対応。
	conns map[string]*connection
	// rooms はルームIDから参加接続IDの集合への対応。
	rooms map[string]map[string]struct{}
	// users はユーザーIDから接続IDの集合への対応。
	users map[string]map[string]struct{}
}

// NewRegistry は空のRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*connection),
		rooms: make(map[string]map[string]struct{}),
		users: make(map[string]map[string]struct{}),
	}
}

// Register は認証済みの接続を登録する。ルームへの参加は Join で別途行う。
func (r *Registry) Register(connID, userID string, sender Sender) error {
	if connID == "" || userID == "" {
		return apperr.Validation("接続IDとユーザーIDは必須です")
	}
	if sender == nil {
		return apperr.Validation("送信先が指定されていません")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[connID]; exists {
		return apperr.Validation("接続 %s は登録済みです", connID)
	}
	r.conns[connID] = &connection{
		id:     connID,
		userID: userID,
		sender: sender,
		rooms:  make(map[string]struct{}),
	}
	addMember(r.users, userID, connID)
	return nil
}

// Join は接続をルームに参加させる。参加済みの場合は何もしない。
// 登録されていない接続の場合は apperr.ErrUnknownConnection を返す。
func (r *Registry) Join(connID, room string) error {
	if room == "" {
		return apperr.Validation("ルームIDは必須です")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return apperr.ErrUnknownConnection
	}
	c.rooms[room] = struct{}{}
	addMember(r.rooms, room, connID)
	return nil
}

// Leave は接続をルームから退出させる。参加していない場合や未登録の接続の場合は何もしない。
func (r *Registry) Leave(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(c.rooms, room)
	removeMember(r.rooms, room, connID)
}

// OnDisconnect は接続を参加中のすべてのルームから外し、登録を解除する。
// 戻り値は接続が登録されていたかどうか。2回目以降の呼び出しは何もせずfalseを返す。
// 戻った時点で、この接続への送信は行われない。
func (r *Registry) OnDisconnect(connID string) bool {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	for room := range c.rooms {
		removeMember(r.rooms, room, connID)
	}
	removeMember(r.users, c.userID, connID)
	delete(r.conns, connID)
	r.mu.Unlock()

	// 送信中であれば完了を待ってから閉じる。
	c.close()
	return true
}

// MembersOf はルームに参加している接続IDのスナップショットを返す。
// ルームが存在しない場合は空のスライスを返す。
func (r *Registry) MembersOf(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.rooms[room])
}

// ConnectionsOf はユーザーの接続IDを返す。
func (r *Registry) ConnectionsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.users[userID])
}

// IsOnline はユーザーが1つ以上の接続を持つかどうかを返す。
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// UserOf は接続のユーザーIDを返す。
func (r *Registry) UserOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok {
		return "", false
	}
	return c.userID, true
}

// RoomsOf は接続が参加しているルームIDを返す。
func (r *Registry) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok {
		return []string{}
	}
	return sortedKeys(c.rooms)
}

// ConnectionCount は登録中の接続数を返す。
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// RoomCount はメンバーが1人以上いるルームの数を返す。
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// targets はルームのメンバーの接続をスナップショットとして返す。
func (r *Registry) targets(room string) []*connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	if len(members) == 0 {
		return nil
	}
	return lo.FilterMap(lo.Keys(members), func(id string, _ int) (*connection, bool) {
		c, ok := r.conns[id]
		return c, ok
	})
}

func addMember(index map[string]map[string]struct{}, key, connID string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[connID] = struct{}{}
}

// removeMember は集合から接続を外し、空になった集合を破棄する。
func removeMember(index map[string]map[string]struct{}, key, connID string) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(index, key)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := lo.Keys(set)
	slices.Sort(keys)
	return keys
}
