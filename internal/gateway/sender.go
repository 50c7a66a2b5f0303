package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nao1215/socialhub/pkg/event"
)

// wsSender はWebSocket接続へのイベント書き込み。
// 配信バスからの送信とゲートウェイからの応答が競合しないよう書き込みを直列化する。
type wsSender struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func newWSSender(conn *websocket.Conn, writeTimeout time.Duration) *wsSender {
	return &wsSender{conn: conn, writeTimeout: writeTimeout}
}

// Send はイベントを1フレームのJSONとして書き込む。
func (s *wsSender) Send(env *event.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(env)
}

// ping はpingコントロールフレームを送る。WriteControlは他の書き込みと並行して呼び出せる。
func (s *wsSender) ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout))
}
