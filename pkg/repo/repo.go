package repo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foomo/restoreserver/pkg/metrics"
	"github.com/foomo/restoreserver/pkg/restore"
	"github.com/foomo/restoreserver/requests"
	"github.com/foomo/restoreserver/responses"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Repo restore repository
type (
	Repo struct {
		l                       *zap.Logger
		url                     string
		poll                    bool
		pollInterval            time.Duration
		onLoaded                func()
		loaded                  *atomic.Bool
		updateRequested         atomic.Bool
		history                 *History
		httpClient              *http.Client
		updateInProgressChannel chan chan updateResponse
		directory               map[string]*Namespace
		directoryLock           sync.RWMutex
		jsonBuffer              *bytes.Buffer
		jsonBufferLock          sync.RWMutex
	}
	Option func(*Repo)
)

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func New(l *zap.Logger, url string, history *History, opts ...Option) *Repo {
	inst := &Repo{
		l:                       l.Named("repo"),
		url:                     url,
		poll:                    false,
		loaded:                  &atomic.Bool{},
		pollInterval:            time.Minute,
		history:                 history,
		httpClient:              http.DefaultClient,
		directory:               map[string]*Namespace{},
		updateInProgressChannel: make(chan chan updateResponse),
	}

	for _, opt := range opts {
		opt(inst)
	}

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func WithHTTPClient(v *http.Client) Option {
	return func(o *Repo) {
		o.httpClient = v
	}
}

func WithPoll(v bool) Option {
	return func(o *Repo) {
		o.poll = v
	}
}

func WithPollInterval(v time.Duration) Option {
	return func(o *Repo) {
		o.pollInterval = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Getter
// ------------------------------------------------------------------------------------------------

func (r *Repo) Loaded() bool {
	return r.loaded.Load()
}

func (r *Repo) Directory() map[string]*Namespace {
	r.directoryLock.RLock()
	defer r.directoryLock.RUnlock()
	return r.directory
}

func (r *Repo) SetDirectory(v map[string]*Namespace) {
	r.directoryLock.Lock()
	defer r.directoryLock.Unlock()
	r.directory = v
}

func (r *Repo) JSONBufferBytes() []byte {
	r.jsonBufferLock.RLock()
	defer r.jsonBufferLock.RUnlock()
	if r.jsonBuffer == nil {
		return nil
	}
	return r.jsonBuffer.Bytes()
}

func (r *Repo) SetJSONBuffer(v *bytes.Buffer) {
	r.jsonBufferLock.Lock()
	defer r.jsonBufferLock.Unlock()
	r.jsonBuffer = v
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

func (r *Repo) OnLoaded(fn func()) {
	r.onLoaded = fn
}

// GetLatest returns the latest restore per snapshot of a namespace. Without
// snapshot names the whole namespace index is returned, unknown snapshot
// names are left out.
func (r *Repo) GetLatest(req *requests.Latest) (map[string]*restore.Record, error) {
	if req == nil {
		return nil, errors.New("request must not be nil")
	}
	if req.Namespace == "" {
		return nil, errors.New("request namespace must not be empty")
	}
	ns, ok := r.namespace(req.Namespace)
	if !ok {
		return map[string]*restore.Record{}, nil
	}
	if len(req.SnapshotNames) == 0 {
		ret := make(map[string]*restore.Record, len(ns.Latest))
		for name, record := range ns.Latest {
			ret[name] = record
		}
		return ret, nil
	}
	ret := make(map[string]*restore.Record, len(req.SnapshotNames))
	for _, name := range req.SnapshotNames {
		if record, ok := ns.Latest[name]; ok {
			ret[name] = record
		}
	}
	return ret, nil
}

// GetRestores returns all restores of a namespace in upstream order
func (r *Repo) GetRestores(req *requests.Restores) ([]*restore.Record, error) {
	if req == nil {
		return nil, errors.New("request must not be nil")
	}
	if req.Namespace == "" {
		return nil, errors.New("request namespace must not be empty")
	}
	ns, ok := r.namespace(req.Namespace)
	if !ok {
		return []*restore.Record{}, nil
	}
	return ns.Restores, nil
}

// GetNamespaces returns the sorted names of all indexed namespaces
func (r *Repo) GetNamespaces() []string {
	directory := r.Directory()
	ret := make([]string, 0, len(directory))
	for name := range directory {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// GetIndex get the whole index in all namespaces
func (r *Repo) GetIndex() map[string]map[string]*restore.Record {
	response := make(map[string]map[string]*restore.Record)
	for name, ns := range r.Directory() {
		response[name] = ns.Latest
	}
	return response
}

// WriteRepoBytes writes the raw restore collection to the provided writer.
// It serves from the in-memory buffer, falling back to storage only when empty.
// The result is wrapped as service response, e.g: {"reply": <restoreData>}
func (r *Repo) WriteRepoBytes(ctx context.Context, w io.Writer) error {
	data := r.JSONBufferBytes()

	if len(data) == 0 {
		// cold start or not yet loaded
		var buf bytes.Buffer
		if err := r.history.GetCurrent(ctx, &buf); err != nil {
			return fmt.Errorf("failed to read restores from storage: %w", err)
		}
		data = buf.Bytes()
	}

	if _, err := w.Write([]byte(`{"reply":`)); err != nil {
		return fmt.Errorf("failed to write repo JSON prefix: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write repo JSON data: %w", err)
	}
	if _, err := w.Write([]byte(`}`)); err != nil {
		return fmt.Errorf("failed to write repo JSON suffix: %w", err)
	}
	return nil
}

// Update triggers an update and waits for it. It is rejected while another
// requested update is pending.
func (r *Repo) Update(ctx context.Context) *responses.Update {
	return r.handleUpdate(ctx, r.tryUpdate)
}

func (r *Repo) handleUpdate(ctx context.Context, run func(ctx context.Context) (updateResponse, error)) (updateResponse *responses.Update) {
	floatSeconds := func(nanoSeconds int64) float64 {
		return float64(nanoSeconds) / float64(time.Second)
	}

	r.l.Info("Update triggered")

	start := time.Now()
	res, err := run(ctx)
	updateResponse = &responses.Update{}
	updateResponse.Stats.RepoRuntime = floatSeconds(res.repoRuntime)

	if err != nil {
		updateResponse.Success = false
		updateResponse.Stats.NumberOfNamespaces = -1
		updateResponse.Stats.NumberOfRestores = -1
		updateResponse.Stats.NumberOfSnapshots = -1

		if !errors.Is(err, ErrUpdateRejected) {
			updateResponse.ErrorMessage = err.Error()
			r.l.Error("Failed to update repository", zap.Error(err))

			// the loaded directory is kept on failure, only a cold repo falls back to history
			if len(r.Directory()) == 0 {
				if restoreErr := r.tryToRestoreCurrent(ctx); restoreErr != nil {
					r.l.Error("Failed to restore preceding repository version", zap.Error(restoreErr))
				} else {
					r.l.Info("Successfully restored current repository from history")
				}
			}
		}
	} else {
		updateResponse.Success = true
		if res.skipped {
			r.l.Info("Restores unchanged, kept current index")
		} else if historyErr := r.history.Add(ctx, r.JSONBufferBytes()); historyErr != nil {
			r.l.Error("Could not persist current restores in history", zap.Error(historyErr))
			metrics.HistoryPersistFailedCounter.WithLabelValues().Inc()
		} else {
			r.l.Info("Successfully persisted current restores to history")
		}
		for _, ns := range r.Directory() {
			updateResponse.Stats.NumberOfNamespaces++
			updateResponse.Stats.NumberOfRestores += len(ns.Restores)
			updateResponse.Stats.NumberOfSnapshots += len(ns.Latest)
		}
	}
	updateResponse.Stats.OwnRuntime = floatSeconds(time.Since(start).Nanoseconds()) - updateResponse.Stats.RepoRuntime
	return updateResponse
}

func (r *Repo) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	l := r.l.Named("start")

	up := make(chan bool, 1)
	g.Go(func() error {
		l.Debug("starting update routine")
		up <- true
		return r.UpdateRoutine(gCtx)
	})
	l.Debug("waiting for UpdateRoutine")
	<-up

	l.Debug("trying to restore previous restores")
	if err := r.tryToRestoreCurrent(gCtx); errors.Is(err, os.ErrNotExist) {
		l.Info("previous restores file does not exist")
	} else if err != nil {
		l.Warn("could not restore previous restores", zap.Error(err))
	} else {
		l.Info("restored previous restores")
	}

	if r.poll {
		g.Go(func() error {
			l.Debug("starting poll routine")
			return r.PollRoutine(gCtx)
		})
	}

	if !r.Loaded() {
		l.Debug("trying to update initial state")
		if resp := r.handleUpdate(gCtx, r.enqueueUpdate); !resp.Success {
			l.Error("failed to update initial state",
				zap.String("error", resp.ErrorMessage),
				zap.Float64("own_runtime", resp.Stats.OwnRuntime),
				zap.Float64("repo_runtime", resp.Stats.RepoRuntime),
			)
		}
	}

	return g.Wait()
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (r *Repo) namespace(name string) (*Namespace, bool) {
	ns, ok := r.Directory()[name]
	if !ok {
		r.l.Debug("namespace not indexed", zap.String("namespace", name))
		metrics.UnknownNamespaceRequests.WithLabelValues().Inc()
	}
	return ns, ok
}
