package profile

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/nao1215/socialhub/pkg/httpclient"
)

// Directory はユーザーIDから表示名を解決する。
// 解決できない場合はユーザーIDをそのまま返し、エラーにはしない。
type Directory interface {
	DisplayName(ctx context.Context, userID string) string
}

// StaticDirectory はメモリ上の対応表で表示名を解決する。
type StaticDirectory struct {
	names map[string]string
}

// NewStaticDirectory は対応表から StaticDirectory を生成する。
func NewStaticDirectory(names map[string]string) *StaticDirectory {
	copied := make(map[string]string, len(names))
	for k, v := range names {
		copied[k] = v
	}
	return &StaticDirectory{names: copied}
}

// DisplayName は表示名を返す。
func (d *StaticDirectory) DisplayName(_ context.Context, userID string) string {
	if name, ok := d.names[userID]; ok && name != "" {
		return name
	}
	return userID
}

// profileResponse はプロフィールサービスのレスポンスのうち使用する項目。
type profileResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// defaultCacheSize はキャッシュする表示名の最大件数。
const defaultCacheSize = 10000

// HTTPDirectory はプロフィールサービスのAPIで表示名を解決する。
// 取得した表示名は件数上限つきで一定時間キャッシュし、同じユーザーの同時取得は1回にまとめる。
type HTTPDirectory struct {
	client *httpclient.Client
	logger zerolog.Logger
	// cache はttlが0以下の場合nil。
	cache *expirable.LRU[string, string]
	group singleflight.Group
}

// NewHTTPDirectory はプロフィールサービスのベースURLから HTTPDirectory を生成する。
// ttlが0以下の場合はキャッシュしない。
func NewHTTPDirectory(baseURL string, ttl time.Duration, logger zerolog.Logger) *HTTPDirectory {
	d := &HTTPDirectory{
		client: httpclient.New(strings.TrimSuffix(baseURL, "/"), httpclient.WithTimeout(3*time.Second)),
		logger: logger.With().Str("component", "profile").Logger(),
	}
	if ttl > 0 {
		d.cache = expirable.NewLRU[string, string](defaultCacheSize, nil, ttl)
	}
	return d
}

// DisplayName は GET /api/v1/profiles/:id で表示名を取得する。
// 通信エラーやプロフィールが存在しない場合はユーザーIDを返す。
func (d *HTTPDirectory) DisplayName(ctx context.Context, userID string) string {
	if d.cache != nil {
		if name, ok := d.cache.Get(userID); ok {
			return name
		}
	}

	v, _, _ := d.group.Do(userID, func() (any, error) {
		return d.fetch(ctx, userID), nil
	})
	return v.(string)
}

func (d *HTTPDirectory) fetch(ctx context.Context, userID string) string {
	var resp profileResponse
	err := d.client.GetJSON(ctx, "/api/v1/profiles/"+url.PathEscape(userID), &resp)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			d.logger.Debug().Str("user_id", userID).Msg("プロフィールが存在しません")
		} else {
			d.logger.Warn().Err(err).Str("user_id", userID).Msg("表示名の取得に失敗")
		}
		return userID
	}

	name := resp.DisplayName
	if name == "" {
		name = resp.Name
	}
	if name == "" {
		return userID
	}
	if d.cache != nil {
		d.cache.Add(userID, name)
	}
	return name
}
