package profile

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/tsudoi/internal/model"
)

// maxAvatarSize はアバター画像の最大サイズ（2MB）。
const maxAvatarSize = 2 * 1024 * 1024

// defaultAvatarTimeout はアバター画像取得のデフォルトタイムアウト。
const defaultAvatarTimeout = 5 * time.Second

// SSRFValidator はSSRF防止機能のうちアバター取得で使う部分のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// AvatarFetcherService はアバター画像取得のインターフェース。
type AvatarFetcherService interface {
	// FetchAvatar は指定URLからアバター画像を取得する。
	// ユーザーが明示的に指定したURLなので、取得失敗は呼び出し元に
	// APIErrorとして返し、UIに原因を表示させる。
	FetchAvatar(ctx context.Context, avatarURL string) (data []byte, mimeType string, err error)
}

// AvatarFetcher はアバター画像取得機能の実装。
type AvatarFetcher struct {
	ssrfGuard SSRFValidator
	// Timeout は取得リクエストのタイムアウト（デフォルト: 5秒）。
	Timeout time.Duration
}

// NewAvatarFetcher はAvatarFetcherの新しいインスタンスを生成する。
func NewAvatarFetcher(ssrfGuard SSRFValidator) *AvatarFetcher {
	return &AvatarFetcher{
		ssrfGuard: ssrfGuard,
		Timeout:   defaultAvatarTimeout,
	}
}

// FetchAvatar は指定URLからアバター画像を取得する。
// httpsのみ許可し、プライベートIP等へのアクセスはSSRF防止でブロックする。
// 画像以外のContent-Typeとサイズ超過は拒否する。
func (f *AvatarFetcher) FetchAvatar(ctx context.Context, avatarURL string) ([]byte, string, error) {
	if avatarURL == "" {
		return nil, "", model.NewInvalidImageURLError("URLが空です")
	}

	if err := f.ssrfGuard.ValidateURL(avatarURL); err != nil {
		return nil, "", model.NewSSRFBlockedError()
	}

	client := f.ssrfGuard.NewSafeClient(f.Timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, avatarURL, nil)
	if err != nil {
		return nil, "", model.NewInvalidImageURLError(err.Error())
	}
	req.Header.Set("User-Agent", "Tsudoi/1.0")

	resp, err := client.Do(req)
	if err != nil {
		// safeurlはDNS解決後のIP検証でもブロックすることがある
		return nil, "", model.NewImageFetchFailedError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", model.NewImageFetchFailedError("HTTPステータス異常")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAvatarSize+1))
	if err != nil {
		return nil, "", model.NewImageFetchFailedError("レスポンスの読み取りに失敗しました")
	}
	if int64(len(body)) > maxAvatarSize {
		return nil, "", model.NewImageFetchFailedError("画像サイズが上限を超えています")
	}

	mimeType := extractMimeType(resp.Header.Get("Content-Type"))
	if !isImageMime(mimeType) {
		return nil, "", model.NewImageFetchFailedError("画像以外のContent-Typeです")
	}

	return body, mimeType, nil
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	// セミコロンの前の部分（charset等を除去）
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

// isImageMime はMIMEタイプが画像かどうかを判定する。
func isImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// compile-time interface check
var _ AvatarFetcherService = (*AvatarFetcher)(nil)
