package handler_test

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/foomo/restoreserver/pkg/handler"
	"github.com/foomo/restoreserver/pkg/repo"
	"github.com/foomo/restoreserver/pkg/repo/mock"
	"github.com/foomo/restoreserver/pkg/restore"
	"github.com/foomo/restoreserver/pkg/traffic"
	"github.com/foomo/restoreserver/responses"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/nettest"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newTestRepo(t *testing.T) *repo.Repo {
	t.Helper()
	l := zaptest.NewLogger(t)
	server, varDir := mock.GetMockData(t)
	h, err := repo.NewHistory(l, repo.HistoryWithHistoryDir(varDir))
	require.NoError(t, err)
	r := repo.New(l, server.URL+"/restores-ok.json", h)
	startRepo(t, r)
	require.True(t, r.Update(t.Context()).Success)
	return r
}

// startRepo runs r until the test is done and waits for it to stop
func startRepo(tb testing.TB, r *repo.Repo) {
	tb.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Start(tb.Context())
	}()
	tb.Cleanup(func() { <-done })
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeReply(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	reply := struct {
		Reply interface{} `json:"reply"`
	}{Reply: v}
	require.NoError(t, json.Unmarshal(data, &reply), string(data))
}

func TestHTTPRoutes(t *testing.T) {
	h := handler.NewHTTP(zaptest.NewLogger(t), newTestRepo(t))

	t.Run("getLatest", func(t *testing.T) {
		rec := post(t, h, "/restoreserver/getLatest", `{"namespace":"team-a","snapshotNames":["snap-a"]}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var latest map[string]*restore.Record
		decodeReply(t, rec.Body.Bytes(), &latest)
		require.Len(t, latest, 1)
		assert.Equal(t, "restore-a-2", latest["snap-a"].Metadata.Name)
	})

	t.Run("getRestores", func(t *testing.T) {
		rec := post(t, h, "/restoreserver/getRestores", `{"namespace":"team-b"}`)
		var restores []*restore.Record
		decodeReply(t, rec.Body.Bytes(), &restores)
		require.Len(t, restores, 1)
		assert.Equal(t, "restore-c-1", restores[0].Metadata.Name)
	})

	t.Run("getNamespaces", func(t *testing.T) {
		rec := post(t, h, "/restoreserver/getNamespaces", `{}`)
		var namespaces []string
		decodeReply(t, rec.Body.Bytes(), &namespaces)
		assert.Equal(t, []string{"team-a", "team-b"}, namespaces)
	})

	t.Run("getIndex", func(t *testing.T) {
		rec := post(t, h, "/restoreserver/getIndex", `{}`)
		var index map[string]map[string]*restore.Record
		decodeReply(t, rec.Body.Bytes(), &index)
		assert.Len(t, index["team-a"], 2)
		assert.Len(t, index["team-b"], 1)
	})

	t.Run("getTraffic", func(t *testing.T) {
		body, err := json.Marshal(mock.MakeTrafficRequest())
		require.NoError(t, err)
		rec := post(t, h, "/restoreserver/getTraffic", string(body))
		var summaries map[string]traffic.Summary
		decodeReply(t, rec.Body.Bytes(), &summaries)
		assert.Equal(t, "60%", summaries["rev-1"].Label)
		assert.Equal(t, []string{"https://rev-1.example.com"}, summaries["rev-1"].URLs)
		assert.Equal(t, int64(40), summaries["rev-2"].Percent)
	})

	t.Run("update", func(t *testing.T) {
		rec := post(t, h, "/restoreserver/update", `{}`)
		var update responses.Update
		decodeReply(t, rec.Body.Bytes(), &update)
		assert.True(t, update.Success)
		assert.Equal(t, 5, update.Stats.NumberOfRestores)
	})

	t.Run("getRepo", func(t *testing.T) {
		rec := post(t, h, "/restoreserver/getRepo", `{}`)
		require.Equal(t, http.StatusOK, rec.Code)
		var list map[string]interface{}
		decodeReply(t, rec.Body.Bytes(), &list)
		assert.Equal(t, "List", list["kind"])
	})
}

func TestHTTPErrors(t *testing.T) {
	h := handler.NewHTTP(zaptest.NewLogger(t), newTestRepo(t), handler.WithBasePath("/api/"))

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/getNamespaces", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	tests := map[string]struct {
		path string
		body string
		code int
	}{
		"unknown route": {path: "/api/getContent", body: `{}`, code: responses.ErrorCodeUnknownRoute},
		"invalid json":  {path: "/api/getLatest", body: `{"namespace":`, code: responses.ErrorCodeInvalidJSON},
		"api error":     {path: "/api/getLatest", body: `{"namespace":""}`, code: responses.ErrorCodeInternal},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := post(t, h, tt.path, tt.body)
			require.Equal(t, http.StatusOK, rec.Code)
			var e responses.Error
			decodeReply(t, rec.Body.Bytes(), &e)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, 500, e.Status)
		})
	}
}

func socketRequest(t *testing.T, conn net.Conn, reader *bufio.Reader, route, body string) []byte {
	t.Helper()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	_, err := fmt.Fprintf(conn, "%s:%d%s", route, len(body), body)
	require.NoError(t, err)

	header, err := reader.ReadString('{')
	require.NoError(t, err)
	length, err := strconv.Atoi(strings.TrimSuffix(header, "{"))
	require.NoError(t, err)

	reply := make([]byte, length)
	reply[0] = '{'
	_, err = io.ReadFull(reader, reply[1:])
	require.NoError(t, err)
	return reply
}

func TestSocket(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)

	s := handler.NewSocket(zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)), newTestRepo(t))
	go s.Serve(t.Context(), ln) //nolint:errcheck

	conn, err := net.Dial(ln.Addr().Network(), ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	// several requests on one open connection
	var namespaces []string
	decodeReply(t, socketRequest(t, conn, reader, "getNamespaces", `{}`), &namespaces)
	assert.Equal(t, []string{"team-a", "team-b"}, namespaces)

	var latest map[string]*restore.Record
	decodeReply(t, socketRequest(t, conn, reader, "getLatest", `{"namespace":"team-a"}`), &latest)
	assert.Equal(t, "restore-b-1", latest["snap-b"].Metadata.Name)

	var e responses.Error
	decodeReply(t, socketRequest(t, conn, reader, "getNothing", `{}`), &e)
	assert.Equal(t, responses.ErrorCodeUnknownRoute, e.Code)

	var list map[string]interface{}
	decodeReply(t, socketRequest(t, conn, reader, "getRepo", `{}`), &list)
	assert.Equal(t, "List", list["kind"])
}

func TestSocketInvalidHeader(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)

	s := handler.NewSocket(zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)), newTestRepo(t))
	go s.Serve(t.Context(), ln) //nolint:errcheck

	for name, header := range map[string]string{
		"no length":   "getNamespaces{}",
		"zero length": "getNamespaces:0{}",
		"too large":   "update:99999999999{",
		"over limit":  "update:" + strconv.Itoa(handler.MaxRequestSize+1) + "{",
	} {
		t.Run(name, func(t *testing.T) {
			conn, err := net.Dial(ln.Addr().Network(), ln.Addr().String())
			require.NoError(t, err)
			defer conn.Close()
			require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

			_, err = io.WriteString(conn, header)
			require.NoError(t, err)

			reader := bufio.NewReader(conn)
			replyHeader, err := reader.ReadString('{')
			require.NoError(t, err)
			length, err := strconv.Atoi(strings.TrimSuffix(replyHeader, "{"))
			require.NoError(t, err)
			reply := make([]byte, length)
			reply[0] = '{'
			_, err = io.ReadFull(reader, reply[1:])
			require.NoError(t, err)

			var e responses.Error
			decodeReply(t, reply, &e)
			assert.Equal(t, responses.ErrorCodeInvalidHeader, e.Code)

			// the server hangs up after an invalid header
			_, err = reader.ReadByte()
			assert.Error(t, err)
		})
	}
}
