package repo

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	HistoryKeyPrefix = "restoreserver-restores-"
	HistoryKeySuffix = ".json"
	CurrentKey       = HistoryKeyPrefix + "current" + HistoryKeySuffix
	// fixed width so that lexical order is chronological
	historyKeyLayout = "20060102T150405.000000000Z"
)

type (
	// History keeps the last good restore collections. Every Add writes a
	// timestamped backup plus the current collection, only the newest
	// historyLimit backups survive.
	History struct {
		l            *zap.Logger
		storage      Storage
		clock        clockwork.Clock
		historyDir   string
		historyLimit int
		mu           sync.Mutex
	}
	HistoryOption func(*History)
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func HistoryWithHistoryLimit(v int) HistoryOption {
	return func(o *History) {
		o.historyLimit = v
	}
}

// HistoryWithHistoryDir directory of the filesystem storage used without HistoryWithStorage
func HistoryWithHistoryDir(v string) HistoryOption {
	return func(o *History) {
		o.historyDir = v
	}
}

func HistoryWithStorage(v Storage) HistoryOption {
	return func(o *History) {
		o.storage = v
	}
}

func HistoryWithClock(v clockwork.Clock) HistoryOption {
	return func(o *History) {
		o.clock = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func NewHistory(l *zap.Logger, opts ...HistoryOption) (*History, error) {
	inst := &History{
		l:            l,
		clock:        clockwork.NewRealClock(),
		historyDir:   "/var/lib/restoreserver",
		historyLimit: 2,
	}

	for _, opt := range opts {
		opt(inst)
	}

	if inst.historyLimit < 0 {
		return nil, errors.Errorf("history limit must not be negative: %d", inst.historyLimit)
	}

	if inst.storage == nil {
		storage, err := NewFilesystemStorage(inst.historyDir)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create default filesystem storage")
		}
		inst.storage = storage
	}

	return inst, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Add persists a restore collection as backup and as current collection
func (h *History) Add(ctx context.Context, jsonBytes []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := backupKey(h.clock.Now())
	h.l.Debug("persisting restores", zap.String("backup", key), zap.Int("length", len(jsonBytes)))

	if err := h.storage.Write(ctx, key, jsonBytes); err != nil {
		return errors.Wrapf(err, "failed to write backup %s", key)
	}
	if err := h.storage.Write(ctx, CurrentKey, jsonBytes); err != nil {
		return errors.Wrap(err, "failed to write current restores")
	}
	return errors.Wrap(h.cleanup(ctx), "failed to clean up history")
}

// GetCurrent appends the current collection to buf. Errors wrap
// os.ErrNotExist if nothing was persisted yet.
func (h *History) GetCurrent(ctx context.Context, buf *bytes.Buffer) error {
	data, err := h.storage.Read(ctx, CurrentKey)
	if err != nil {
		return err
	}
	_, err = buf.Write(data)
	return err
}

func (h *History) Close() error {
	return h.storage.Close()
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func backupKey(t time.Time) string {
	return HistoryKeyPrefix + t.UTC().Format(historyKeyLayout) + HistoryKeySuffix
}

func isBackupKey(key string) bool {
	return key != CurrentKey &&
		strings.HasPrefix(key, HistoryKeyPrefix) &&
		strings.HasSuffix(key, HistoryKeySuffix)
}

// backups lists backup keys, newest first
func (h *History) backups(ctx context.Context) ([]string, error) {
	keys, err := h.storage.List(ctx, HistoryKeyPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "could not list history")
	}
	ret := keys[:0]
	for _, key := range keys {
		if isBackupKey(key) {
			ret = append(ret, key)
		}
	}
	return ret, nil
}

// outdated backups beyond the newest limit ones
func (h *History) outdated(ctx context.Context, limit int) ([]string, error) {
	keys, err := h.backups(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) <= limit {
		return nil, nil
	}
	return keys[limit:], nil
}

func (h *History) cleanup(ctx context.Context) error {
	keys, err := h.outdated(ctx, h.historyLimit)
	if err != nil {
		return err
	}
	for _, key := range keys {
		h.l.Debug("removing outdated backup", zap.String("key", key))
		if deleteErr := h.storage.Delete(ctx, key); deleteErr != nil {
			err = multierr.Append(err, errors.Wrapf(deleteErr, "could not remove %s", key))
		}
	}
	return err
}
