// Package ratelimit は外部レジストリサーバーへのリクエストレート制御を提供する。
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config はアウトバウンドレート制限の設定を保持する。
type Config struct {
	MinInterval     time.Duration // 同一サーバーキーへの最小リクエスト間隔
	MaxConcurrent   int           // 全サーバー合計の最大同時リクエスト数
	CleanupInterval time.Duration // 未使用キーエントリのクリーンアップ間隔
}

// DefaultConfig はデフォルトのレート制限設定を返す。
// 要件: 同一サーバーへ1 req/sec、全体で同時5リクエストまで
func DefaultConfig() Config {
	return Config{
		MinInterval:     time.Second,
		MaxConcurrent:   5,
		CleanupInterval: 5 * time.Minute,
	}
}

// serverLimiter はサーバーキーごとのレートリミッターとアクセス時刻を保持する。
type serverLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter はサーバーキー（ホスト名）ごとのリクエスト間隔制御と、
// 全体の同時実行数制御を組み合わせたアウトバウンドリミッター。
type Limiter struct {
	config Config

	mu       sync.Mutex
	limiters map[string]*serverLimiter

	sem    chan struct{}
	stopCh chan struct{}
}

// NewLimiter は新しいLimiterを生成する。
// バックグラウンドで未使用キーのクリーンアップを開始する。
func NewLimiter(config Config) *Limiter {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}
	l := &Limiter{
		config:   config,
		limiters: make(map[string]*serverLimiter),
		sem:      make(chan struct{}, config.MaxConcurrent),
		stopCh:   make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (l *Limiter) Stop() {
	close(l.stopCh)
}

// Acquire はserverKeyに対するリクエスト許可を取得する。
// 同一キーの前回リクエストからMinInterval経過するまで待機し、
// さらに全体の同時実行スロットを確保してから戻る。
// 呼び出し側はリクエスト完了後に必ずReleaseを呼ぶこと。
// ctxがキャンセルされた場合は待機を中断しエラーを返す。
func (l *Limiter) Acquire(ctx context.Context, serverKey string) error {
	limiter := l.getOrCreateLimiter(serverKey)

	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release は同時実行スロットを解放する。
func (l *Limiter) Release() {
	<-l.sem
}

// Do はAcquire/Releaseで挟んでfnを実行する。
func (l *Limiter) Do(ctx context.Context, serverKey string, fn func() error) error {
	if err := l.Acquire(ctx, serverKey); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// LimiterCount は現在管理されているサーバーキーのエントリ数を返す。
// テストおよびメトリクス用。
func (l *Limiter) LimiterCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// getOrCreateLimiter はサーバーキーのリミッターを取得または作成する。
func (l *Limiter) getOrCreateLimiter(serverKey string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if sl, exists := l.limiters[serverKey]; exists {
		sl.lastAccess = time.Now()
		return sl.limiter
	}

	// burst=1: 初回は即時、以降はMinInterval間隔で許可
	limiter := rate.NewLimiter(rate.Every(l.config.MinInterval), 1)
	l.limiters[serverKey] = &serverLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで未使用キーを定期的にクリーンアップする。
func (l *Limiter) cleanupLoop() {
	if l.config.CleanupInterval <= 0 {
		return
	}

	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (l *Limiter) cleanup() {
	ttl := l.config.CleanupInterval * 2
	now := time.Now()

	l.mu.Lock()
	for key, sl := range l.limiters {
		if now.Sub(sl.lastAccess) > ttl {
			delete(l.limiters, key)
		}
	}
	l.mu.Unlock()
}
