package activities

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the prompts file whenever it changes on disk. It blocks until
// ctx is cancelled and is intended to run in its own goroutine. A reload that
// fails validation keeps the previous templates.
func (p *Prompts) Watch(ctx context.Context, path string, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which drops a watch
	// on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := p.LoadFile(path); err != nil {
				logger.Warn("Prompt reload failed, keeping previous templates",
					zap.String("file", path),
					zap.Error(err),
				)
				continue
			}
			logger.Info("Prompt templates reloaded", zap.String("file", path))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Prompt watcher error", zap.Error(err))
		}
	}
}
