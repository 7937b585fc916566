package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	InitialScan bool          // emit files already present
	SkipHidden  bool
	Debounce    time.Duration // coalesce write bursts per file
	Logger      *slog.Logger
}

// Watch emits paths of supported files as they are created or finish being written.
// Both channels close when ctx is done.
func Watch(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no roots provided")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	var initial []string
	addDir := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if cfg.SkipHidden && path != root && isHidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && Supported(path) {
				initial = append(initial, path)
			}
			return nil
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r); err != nil {
			logger.Error("failed to add root directory", "root", r, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)
	for _, p := range initial {
		select {
		case evCh <- p:
		default:
			logger.Warn("initial scan backlog full, dropping file", "path", p)
		}
	}

	go func() {
		var (
			mu      sync.Mutex
			timers  = map[string]*time.Timer{}
			pending sync.WaitGroup
		)
		defer func() {
			mu.Lock()
			for p, t := range timers {
				if t.Stop() {
					pending.Done()
				}
				delete(timers, p)
			}
			mu.Unlock()
			pending.Wait()
			_ = w.Close()
			close(evCh)
			close(errCh)
		}()

		emit := func(p string) {
			select {
			case evCh <- p:
			case <-ctx.Done():
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Has(fsnotify.Create) {
					if st, err := os.Stat(e.Name); err == nil && st.IsDir() {
						if !(cfg.SkipHidden && isHidden(e.Name)) {
							if err := w.Add(e.Name); err != nil {
								logger.Warn("failed to watch new directory", "path", e.Name, "error", err)
							}
						}
						continue
					}
				}
				if !Supported(e.Name) || (cfg.SkipHidden && isHidden(e.Name)) {
					continue
				}
				if !e.Has(fsnotify.Create) && !e.Has(fsnotify.Write) {
					continue
				}
				if cfg.Debounce <= 0 {
					emit(e.Name)
					continue
				}
				name := e.Name
				mu.Lock()
				if t, ok := timers[name]; ok && t.Stop() {
					pending.Done()
				}
				pending.Add(1)
				var t *time.Timer
				t = time.AfterFunc(cfg.Debounce, func() {
					defer pending.Done()
					mu.Lock()
					if timers[name] == t {
						delete(timers, name)
					}
					mu.Unlock()
					emit(name)
				})
				timers[name] = t
				mu.Unlock()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

// Run submits every file Watch reports until ctx is done.
func (i *Ingestor) Run(ctx context.Context, cfg WatchConfig) error {
	if cfg.Logger == nil {
		cfg.Logger = i.logger
	}
	events, errs, err := Watch(ctx, cfg)
	if err != nil {
		return err
	}
	i.logger.Info("watching for timetable files", "roots", cfg.Roots)
	for {
		select {
		case path, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := i.IngestPath(ctx, path); err != nil {
				i.logger.Warn("failed to submit watched file", "path", path, "error", err)
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		}
	}
}
