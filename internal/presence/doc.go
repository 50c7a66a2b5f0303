// Package presence はユーザーのオンライン状態を記録・参照する。
//
// 単一インスタンスでは Registry の接続状況をそのまま使い、
// 複数インスタンス構成では Redis のセットに接続ごとのメンバーを保持する。
package presence
