package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/nao1215/socialhub/pkg/migration"
)

//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// Store はデータベース接続とトランザクション境界を管理する。
// 埋め込みの *Queries はトランザクション外での読み取りに使用する。
type Store struct {
	*Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// logger はストア用のロガー。
	logger zerolog.Logger
}

// dsn はドライバ固有のパラメータを付与した接続文字列を返す。
func dsn(path string) string {
	params := []string{
		"_time_format=sqlite",
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
	}
	if path != ":memory:" {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

// Open はSQLiteデータベースを開き、未適用のマイグレーションを適用する。
// pathに ":memory:" を指定するとプロセス内のみのデータベースになる。
func Open(ctx context.Context, path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// SQLiteは書き込みが単一のため接続を1本に制限する。
	// :memory: では接続ごとに別のデータベースになるため必須。
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}

	if _, err := migration.Run(ctx, db, migrationsFS, "migrations", logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	return &Store{
		Queries: New(db),
		db:      db,
		logger:  logger,
	}, nil
}

// WithinTx はfnを1つのトランザクション内で実行する。
// fnがエラーを返すかパニックした場合はロールバックし、それ以外はコミットする。
// fnの中では引数のQueries以外でデータベースにアクセスしてはならない。
func (s *Store) WithinTx(ctx context.Context, fn func(q *Queries) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("ロールバックに失敗")
			}
		}
	}()

	if err = fn(s.Queries.WithTx(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

// Ping はデータベースへの疎通を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}
