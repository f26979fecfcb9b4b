package repo

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/foomo/restoreserver/pkg/metrics"
	"github.com/foomo/restoreserver/pkg/repo/mock"
	"github.com/foomo/restoreserver/requests"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func NewTestRepo(tb testing.TB, l *zap.Logger, url, varDir string, opts ...Option) *Repo {
	tb.Helper()
	h, err := NewHistory(l, HistoryWithHistoryLimit(2), HistoryWithHistoryDir(varDir))
	require.NoError(tb, err)
	r := New(l, url, h, opts...)
	startTestRepo(tb, r)
	return r
}

// startTestRepo runs r until the test is done and waits for it to stop
func startTestRepo(tb testing.TB, r *Repo) {
	tb.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Start(tb.Context())
	}()
	tb.Cleanup(func() { <-done })
}

func getTestRepo(t *testing.T, path string) *Repo {
	t.Helper()
	mockServer, varDir := mock.GetMockData(t)
	r := NewTestRepo(t, zaptest.NewLogger(t), mockServer.URL+path, varDir)
	response := r.Update(t.Context())
	require.True(t, response.Success, "could not load %s: %s", path, response.ErrorMessage)
	return r
}

func TestLoad404(t *testing.T) {
	var (
		mockServer, varDir = mock.GetMockData(t)
		r                  = NewTestRepo(t, zaptest.NewLogger(t), mockServer.URL+"/restores-no-have.json", varDir)
	)

	response := r.Update(t.Context())
	assert.False(t, response.Success, "can not get restores, if the server responds with a 404")
	assert.Contains(t, response.ErrorMessage, "bad response code")
	assert.False(t, r.Loaded())
	assert.Empty(t, r.Directory())
}

func TestLoadBrokenRepo(t *testing.T) {
	for _, path := range []string{"/restores-broken.json", "/restores-no-items.json"} {
		t.Run(path, func(t *testing.T) {
			var (
				mockServer, varDir = mock.GetMockData(t)
				r                  = NewTestRepo(t, zaptest.NewLogger(t), mockServer.URL+path, varDir)
			)
			response := r.Update(t.Context())
			assert.False(t, response.Success, "how could we load a broken json")
			assert.Equal(t, -1, response.Stats.NumberOfRestores)
		})
	}
}

func TestLoadRepo(t *testing.T) {
	r := getTestRepo(t, "/restores-ok.json")

	response := r.Update(t.Context())
	require.True(t, response.Success, "could not load valid restores")
	assert.True(t, r.Loaded())
	assert.Equal(t, 2, response.Stats.NumberOfNamespaces)
	assert.Equal(t, 5, response.Stats.NumberOfRestores)
	assert.Equal(t, 3, response.Stats.NumberOfSnapshots)
	assert.GreaterOrEqual(t, response.Stats.RepoRuntime, 0.05, "the server was too fast")
	assert.Equal(t, []string{"team-a", "team-b"}, r.GetNamespaces())
	assert.InDelta(t, 4.0, testutil.ToFloat64(metrics.IndexedRestoresGauge.WithLabelValues("team-a")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.IndexedRestoresGauge.WithLabelValues("team-b")), 0)
}

func TestLoadRepoDuplicateRestores(t *testing.T) {
	var (
		mockServer, varDir = mock.GetMockData(t)
		r                  = NewTestRepo(t, zaptest.NewLogger(t), mockServer.URL+"/restores-duplicate.json", varDir)
	)

	response := r.Update(t.Context())
	require.False(t, response.Success, "there are duplicates, this update should have failed")
	assert.Contains(t, response.ErrorMessage, "duplicate restore: team-a/restore-a-1")
}

func TestNamespaceHygiene(t *testing.T) {
	mockServer, varDir := mock.GetMockData(t)
	r := NewTestRepo(t, zaptest.NewLogger(t), mockServer.URL+"/restores-ok.json", varDir)

	response := r.Update(t.Context())
	require.True(t, response.Success)
	require.Len(t, r.Directory(), 2)

	r.url = mockServer.URL + "/restores-one-namespace.json"
	response = r.Update(t.Context())
	require.True(t, response.Success)

	assert.Equal(t, []string{"default", "team-a"}, r.GetNamespaces(), "namespace hygiene failed")
}

func TestGetLatest(t *testing.T) {
	r := getTestRepo(t, "/restores-ok.json")

	latest, err := r.GetLatest(mock.MakeLatestRequest())
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "restore-a-2", latest["snap-a"].Metadata.Name)
	assert.Equal(t, "restore-b-1", latest["snap-b"].Metadata.Name)

	latest, err = r.GetLatest(&requests.Latest{Namespace: "team-a", SnapshotNames: []string{"snap-a", "snap-nope"}})
	require.NoError(t, err)
	assert.Len(t, latest, 1)

	latest, err = r.GetLatest(&requests.Latest{Namespace: "team-b"})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "restore-c-1", latest["snap-c"].Metadata.Name)

	latest, err = r.GetLatest(&requests.Latest{Namespace: "team-nope"})
	require.NoError(t, err)
	assert.Empty(t, latest)
}

func TestGetLatestKeepsFirstOnTie(t *testing.T) {
	r := getTestRepo(t, "/restores-one-namespace.json")

	latest, err := r.GetLatest(&requests.Latest{Namespace: "team-a"})
	require.NoError(t, err)
	assert.Equal(t, "restore-a-1", latest["snap-a"].Metadata.Name)

	latest, err = r.GetLatest(&requests.Latest{Namespace: "default"})
	require.NoError(t, err)
	assert.Equal(t, "restore-default", latest["snap-x"].Metadata.Name)
}

func TestGetRestores(t *testing.T) {
	r := getTestRepo(t, "/restores-ok.json")

	restores, err := r.GetRestores(mock.MakeRestoresRequest())
	require.NoError(t, err)
	names := make([]string, 0, len(restores))
	for _, record := range restores {
		names = append(names, record.Metadata.Name)
	}
	assert.Equal(t, []string{"restore-a-1", "restore-b-1", "restore-a-2", "restore-a-3"}, names)

	index := r.GetIndex()
	assert.Len(t, index, 2)
	assert.Len(t, index["team-a"], 2)
}

func TestInvalidRequest(t *testing.T) {
	r := getTestRepo(t, "/restores-ok.json")

	_, err := r.GetLatest(nil)
	require.Error(t, err)
	_, err = r.GetLatest(&requests.Latest{})
	require.Error(t, err)
	_, err = r.GetRestores(nil)
	require.Error(t, err)
	_, err = r.GetRestores(&requests.Restores{})
	require.Error(t, err)
}

func TestUnchangedRestoresSkipRebuild(t *testing.T) {
	r := getTestRepo(t, "/restores-ok.json")
	before := r.Directory()["team-a"]

	response := r.Update(t.Context())
	require.True(t, response.Success)
	assert.Same(t, before, r.Directory()["team-a"])
	assert.Equal(t, 5, response.Stats.NumberOfRestores)
}

func TestUnchangedEmptyRestoresSkipRebuild(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer upstream.Close()

	varDir := t.TempDir()
	r := NewTestRepo(t, zaptest.NewLogger(t), upstream.URL, varDir)
	for i := 0; i < 3; i++ {
		response := r.Update(t.Context())
		require.True(t, response.Success, response.ErrorMessage)
		assert.Equal(t, 0, response.Stats.NumberOfRestores)
	}
	assert.True(t, r.Loaded())

	backups, err := r.history.backups(t.Context())
	require.NoError(t, err)
	assert.Len(t, backups, 1, "an unchanged empty collection is persisted once")
}

func TestFailedUpdateKeepsDirectory(t *testing.T) {
	mockServer, varDir := mock.GetMockData(t)
	r := NewTestRepo(t, zaptest.NewLogger(t), mockServer.URL+"/restores-ok.json", varDir)
	require.True(t, r.Update(t.Context()).Success)

	r.url = mockServer.URL + "/restores-broken.json"
	require.False(t, r.Update(t.Context()).Success)
	assert.Equal(t, []string{"team-a", "team-b"}, r.GetNamespaces())
}

func TestRestoreFromHistory(t *testing.T) {
	mockServer, varDir := mock.GetMockData(t)
	l := zaptest.NewLogger(t)

	first := NewTestRepo(t, l, mockServer.URL+"/restores-ok.json", varDir)
	require.True(t, first.Update(t.Context()).Success)

	second := NewTestRepo(t, l, mockServer.URL+"/restores-no-have.json", varDir)
	require.Eventually(t, func() bool {
		return len(second.Directory()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.False(t, second.Loaded(), "history is not an upstream")

	latest, err := second.GetLatest(mock.MakeLatestRequest())
	require.NoError(t, err)
	assert.Equal(t, "restore-a-2", latest["snap-a"].Metadata.Name)
}

func TestUpdateRejected(t *testing.T) {
	r := getTestRepo(t, "/restores-ok.json")
	r.updateRequested.Store(true)
	defer r.updateRequested.Store(false)

	response := r.Update(t.Context())
	assert.False(t, response.Success)
	assert.Empty(t, response.ErrorMessage)
}

func TestPollRoutine(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[{"metadata":{"name":"r","namespace":"ns"},"spec":{"virtualMachineSnapshotName":"s"},"status":{"restoreTime":"2024-01-01T00:00:00Z"}}]`))
	}))
	defer upstream.Close()

	loaded := make(chan struct{})
	h, err := NewHistory(zaptest.NewLogger(t), HistoryWithHistoryDir(t.TempDir()))
	require.NoError(t, err)
	r := New(zaptest.NewLogger(t), upstream.URL, h, WithPoll(true), WithPollInterval(20*time.Millisecond))
	r.OnLoaded(func() { close(loaded) })
	startTestRepo(t, r)

	select {
	case <-loaded:
	case <-time.After(time.Second):
		t.Fatal("repo did not load")
	}
	require.Eventually(t, func() bool {
		return hits.Load() >= 3
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"ns"}, r.GetNamespaces())
}

func TestWriteRepoBytes(t *testing.T) {
	r := getTestRepo(t, "/restores-one-namespace.json")

	var buf bytes.Buffer
	require.NoError(t, r.WriteRepoBytes(t.Context(), &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte(`{"reply":[`)))

	var reply struct {
		Reply []map[string]interface{} `json:"reply"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &reply))
	assert.Len(t, reply.Reply, 3)
}

func TestWriteRepoBytesRace(t *testing.T) {
	r := getTestRepo(t, "/restores-ok.json")

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				var buf bytes.Buffer
				_ = r.WriteRepoBytes(ctx, &buf)
			}
		}()
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				r.SetJSONBuffer(bytes.NewBufferString(`[]`))
			}
		}()
	}
	wg.Wait()
}

func BenchmarkLoadRepo(b *testing.B) {
	var (
		mockServer, varDir = mock.GetMockData(b)
		r                  = NewTestRepo(b, zaptest.NewLogger(b), mockServer.URL+"/restores-ok.json", varDir)
	)

	b.ReportAllocs()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		response := r.Update(b.Context())
		if !response.Success {
			b.Fatal("could not load valid restores")
		}
	}
}
