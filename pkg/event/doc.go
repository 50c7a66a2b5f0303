// Package event はWebSocketで配信するイベントの型とシリアライズを提供する。
//
// サーバーからクライアントへ送るフレームはEnvelope、
// クライアントからサーバーへ送るフレームはClientMessageで表現する。
package event
