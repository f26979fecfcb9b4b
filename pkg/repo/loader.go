package repo

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/foomo/restoreserver/pkg/metrics"
	"github.com/foomo/restoreserver/pkg/restore"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	json              = jsoniter.ConfigCompatibleWithStandardLibrary
	ErrUpdateRejected = errors.New("update rejected: queue full")
)

type updateResponse struct {
	repoRuntime int64
	skipped     bool
	err         error
}

func (r *Repo) PollRoutine(ctx context.Context) error {
	l := r.l.Named("routine.poll")
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.Debug("routine canceled", zap.Error(ctx.Err()))
			return nil
		case <-ticker.C:
			chanResponse := make(chan updateResponse, 1)
			select {
			case <-ctx.Done():
				return nil
			case r.updateInProgressChannel <- chanResponse:
			}
			response := <-chanResponse
			switch {
			case response.err != nil:
				l.Error("update failed", zap.Error(response.err))
			case response.skipped:
				l.Debug("restores unchanged")
			default:
				l.Info("update success")
			}
		}
	}
}

func (r *Repo) UpdateRoutine(ctx context.Context) error {
	l := r.l.Named("routine.update")
	for {
		select {
		case <-ctx.Done():
			l.Debug("routine canceled", zap.Error(ctx.Err()))
			return nil
		case resChan := <-r.updateInProgressChannel:
			start := time.Now()
			l := l.With(zap.String("run_id", uuid.New().String()))

			l.Info("update started")

			repoRuntime, skipped, err := r.update(context.WithoutCancel(ctx))
			switch {
			case err != nil:
				l.Error("update failed", zap.Error(err))
				metrics.UpdatesFailedCounter.WithLabelValues().Inc()
			case !r.Loaded():
				r.loaded.Store(true)
				l.Info("initial update success")
				if r.onLoaded != nil {
					r.onLoaded()
				}
				metrics.UpdatesCompletedCounter.WithLabelValues().Inc()
			case skipped:
				l.Info("update skipped, restores unchanged")
				metrics.UpdatesSkippedCounter.WithLabelValues().Inc()
			default:
				l.Info("update success")
				metrics.UpdatesCompletedCounter.WithLabelValues().Inc()
			}

			resChan <- updateResponse{
				repoRuntime: repoRuntime,
				skipped:     skipped,
				err:         err,
			}

			metrics.UpdateDuration.WithLabelValues().Observe(time.Since(start).Seconds())
		}
	}
}

// limit resources and allow only one update request at once
func (r *Repo) tryUpdate(ctx context.Context) (updateResponse, error) {
	if !r.updateRequested.CompareAndSwap(false, true) {
		r.l.Info("update request rejected, another update is in progress")
		return updateResponse{}, ErrUpdateRejected
	}
	defer r.updateRequested.Store(false)
	return r.enqueueUpdate(ctx)
}

// enqueueUpdate hands an update to the update routine and waits for its result
func (r *Repo) enqueueUpdate(ctx context.Context) (updateResponse, error) {
	c := make(chan updateResponse, 1)
	select {
	case r.updateInProgressChannel <- c:
		r.l.Debug("update request added to queue")
	case <-ctx.Done():
		return updateResponse{}, ctx.Err()
	}
	select {
	case ur := <-c:
		return ur, ur.err
	case <-ctx.Done():
		return updateResponse{}, ctx.Err()
	}
}

func (r *Repo) update(ctx context.Context) (repoRuntime int64, skipped bool, err error) {
	startTimeRepo := time.Now()

	data, err := r.get(ctx, r.url)
	repoRuntime = time.Since(startTimeRepo).Nanoseconds()
	if err != nil {
		// we have no json to load - the upstream did not reply
		r.l.Debug("failed to load json", zap.Error(err))
		return repoRuntime, false, err
	}

	// index is derived data, the same collection yields the same index
	if r.Loaded() && bytes.Equal(data, r.JSONBufferBytes()) {
		return repoRuntime, true, nil
	}

	r.l.Debug("loading json", zap.String("server", r.url), zap.Int("length", len(data)))
	if err := r.loadJSONBytes(data); err != nil {
		return repoRuntime, false, err
	}
	return repoRuntime, false, nil
}

func (r *Repo) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create get restores request")
	}
	req.Header.Set("Accept", "application/json")
	response, err := r.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get restores")
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, errors.Errorf("bad response code from upstream %q want %d", response.Status, http.StatusOK)
	}

	buffer := &bytes.Buffer{}
	if _, err = io.Copy(buffer, response.Body); err != nil {
		return nil, errors.Wrap(err, "failed to copy IO stream")
	}
	return buffer.Bytes(), nil
}

func (r *Repo) tryToRestoreCurrent(ctx context.Context) error {
	buffer := &bytes.Buffer{}
	if err := r.history.GetCurrent(ctx, buffer); err != nil {
		return err
	}
	return r.loadJSONBytes(buffer.Bytes())
}

// loadJSONBytes decodes and indexes a collection and swaps it in as a whole
func (r *Repo) loadJSONBytes(data []byte) error {
	records, err := restore.DecodeCollection(data)
	if err != nil {
		if len(data) > 10 {
			r.l.Debug("could not parse json",
				zap.String("jsonStart", string(data[:10])),
				zap.String("jsonEnd", string(data[len(data)-10:])),
			)
		}
		return err
	}

	directory, err := buildDirectory(records)
	if err != nil {
		return err
	}

	for name := range r.Directory() {
		if _, ok := directory[name]; !ok {
			r.l.Info("removing orphaned namespace", zap.String("namespace", name))
		}
	}

	r.SetJSONBuffer(bytes.NewBuffer(data))
	r.SetDirectory(directory)

	metrics.IndexedRestoresGauge.Reset()
	for name, ns := range directory {
		metrics.IndexedRestoresGauge.WithLabelValues(name).Set(float64(len(ns.Restores)))
	}
	return nil
}
