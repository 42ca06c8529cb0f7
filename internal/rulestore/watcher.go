// Package rulestore file: internal/rulestore/watcher.go
package rulestore

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchMasterlists 监听主列表目录，文件变更后防抖触发对应游戏的重建。
// 编辑器保存往往产生多个事件，500ms 防抖窗口把它们合并为一次重建。
// ctx 取消后停止监听。
func (s *Store) WatchMasterlists(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.listDir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		const debounce = 500 * time.Millisecond
		pending := make(map[string]struct{})
		var timer *time.Timer
		var fire <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				slog.Info("主列表监听已停止")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				name := filepath.Base(event.Name)
				if !strings.HasSuffix(name, ".json") {
					continue
				}
				pending[strings.TrimSuffix(name, ".json")] = struct{}{}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C

			case <-fire:
				fire = nil
				for gameID := range pending {
					if _, err := s.RebuildGame(ctx, gameID); err != nil {
						// 重建失败不影响正在服务的旧快照
						slog.Error("主列表变更后重建失败", "game_id", gameID, "error", err)
					}
				}
				pending = make(map[string]struct{})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("主列表监听错误", "error", err)
			}
		}
	}()
	return nil
}
