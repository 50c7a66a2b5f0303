package event

import (
	"encoding/json"
	"testing"
	"time"
)

// TestNew はNew関数でEnvelopeが正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("TypingDataでEnvelopeを生成できること", func(t *testing.T) {
		t.Parallel()

		data := TypingData{UserID: "user-1", ConversationID: "42"}

		before := time.Now().UTC()
		env, err := New("conversation:42", KindUserTyping, data)
		after := time.Now().UTC()

		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if env.ID == "" {
			t.Error("IDが空文字列")
		}
		if env.Kind != KindUserTyping {
			t.Errorf("Kind = %q, want %q", env.Kind, KindUserTyping)
		}
		if env.Room != "conversation:42" {
			t.Errorf("Room = %q, want %q", env.Room, "conversation:42")
		}
		if env.CreatedAt.Before(before) || env.CreatedAt.After(after) {
			t.Errorf("CreatedAt = %v, 期待する範囲: [%v, %v]", env.CreatedAt, before, after)
		}

		decoded, err := DecodeData[TypingData](env)
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if *decoded != data {
			t.Errorf("decoded = %+v, want %+v", *decoded, data)
		}
	})

	t.Run("生成するたびに異なるIDが割り当てられること", func(t *testing.T) {
		t.Parallel()

		a, err := New("", KindPong, struct{}{})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		b, err := New("", KindPong, struct{}{})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if a.ID == b.ID {
			t.Errorf("IDが重複している: %s", a.ID)
		}
	})

	t.Run("シリアライズできないデータはエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := New("user:1", KindNewNotification, make(chan int)); err == nil {
			t.Error("chanを渡してもエラーにならなかった")
		}
	})

	t.Run("typeキーでKindがシリアライズされること", func(t *testing.T) {
		t.Parallel()

		env, err := New("user:1", KindUnreadCount, UnreadCountData{Count: 3})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		raw, err := json.Marshal(env)
		if err != nil {
			t.Fatalf("json.Marshal()でエラーが発生: %v", err)
		}

		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("json.Unmarshal()でエラーが発生: %v", err)
		}
		if m["type"] != string(KindUnreadCount) {
			t.Errorf("type = %v, want %q", m["type"], KindUnreadCount)
		}
		data, ok := m["data"].(map[string]any)
		if !ok {
			t.Fatalf("dataがオブジェクトではない: %v", m["data"])
		}
		if data["count"] != float64(3) {
			t.Errorf("data.count = %v, want 3", data["count"])
		}
	})
}

// TestDecodeData は不正なデータのデコード失敗を検証する。
func TestDecodeData(t *testing.T) {
	t.Parallel()

	env := &Envelope{Kind: KindUnreadCount, Data: json.RawMessage(`{"count":"many"}`)}
	if _, err := DecodeData[UnreadCountData](env); err == nil {
		t.Error("型が一致しないデータでエラーにならなかった")
	}
}

// TestParseClientMessage はクライアントフレームのデコードを検証する。
func TestParseClientMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    ClientMessage
		wantErr bool
	}{
		{
			name: "join_conversationをデコードできること",
			raw:  `{"type":"join_conversation","conversation_id":"42"}`,
			want: ClientMessage{Type: ClientJoinConversation, ConversationID: "42"},
		},
		{
			name: "send_messageの本文をデコードできること",
			raw:  `{"type":"send_message","conversation_id":"7","content":"hi"}`,
			want: ClientMessage{Type: ClientSendMessage, ConversationID: "7", Content: "hi"},
		},
		{name: "typeが無い場合はエラー", raw: `{"conversation_id":"42"}`, wantErr: true},
		{name: "JSONでない場合はエラー", raw: `join`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseClientMessage([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseClientMessage() = %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClientMessage()でエラーが発生: %v", err)
			}
			if *got != tt.want {
				t.Errorf("ParseClientMessage() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}
