// Package auth supplies the bearer credential and the language preference of
// the signed-in user. Both are owned by the account backend; the playback
// core only borrows them.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cinethos/config"
	"cinethos/logger"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrNoCredential is returned when no bearer token is configured.
var ErrNoCredential = errors.New("no credential configured")

// Provider hands out the current bearer token.
type Provider interface {
	Credential() (string, error)
}

// Static is a fixed token.
type Static string

func (s Static) Credential() (string, error) {
	token := strings.TrimSpace(string(s))
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

// FileCredential reads the token from a file and reloads it whenever the
// file is rewritten, so an external refresher can rotate it in place.
type FileCredential struct {
	path    string
	log     *zap.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}

	mu    sync.RWMutex
	token string
}

// NewFileCredential loads path and starts watching it.
func NewFileCredential(path string, log *zap.Logger) (*FileCredential, error) {
	if log == nil {
		log = logger.Named("auth")
	}
	path = filepath.Clean(path)
	f := &FileCredential{path: path, log: log, done: make(chan struct{})}
	if err := f.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create credential watcher: %w", err)
	}
	// watch the directory: token refreshers usually replace the file
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	f.watcher = watcher
	go f.watch()
	return f, nil
}

func (f *FileCredential) reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read credential file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
	return nil
}

func (f *FileCredential) watch() {
	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := f.reload(); err != nil {
				f.log.Warn("keeping previous credential", zap.Error(err))
				continue
			}
			f.log.Info("credential reloaded", zap.String("path", f.path))
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.log.Warn("credential watcher error", zap.Error(err))
		case <-f.done:
			return
		}
	}
}

// Credential returns the most recently loaded token.
func (f *FileCredential) Credential() (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.token == "" {
		return "", ErrNoCredential
	}
	return f.token, nil
}

// Close stops watching the file.
func (f *FileCredential) Close() error {
	select {
	case <-f.done:
		return nil
	default:
	}
	close(f.done)
	return f.watcher.Close()
}

// NewProvider picks the credential source from cfg. AuthTokenFile wins over
// AuthToken. The returned close function is never nil.
func NewProvider(cfg *config.Config) (Provider, func() error, error) {
	if cfg.AuthTokenFile != "" {
		f, err := NewFileCredential(cfg.AuthTokenFile, nil)
		if err != nil {
			return nil, func() error { return nil }, err
		}
		return f, f.Close, nil
	}
	return Static(cfg.AuthToken), func() error { return nil }, nil
}
