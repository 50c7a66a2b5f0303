// Package profile はプロフィールサービスからユーザーの表示名を取得する。
// 本サービスはプロフィールを参照するだけで、作成や更新は行わない。
package profile
