package mock

import (
	"net/http"
	"net/http/httptest"
	"path"
	"runtime"
	"testing"
	"time"

	"github.com/foomo/restoreserver/pkg/traffic"
	"github.com/foomo/restoreserver/requests"
)

// GetMockData serves the json files next to this file like an upstream would
func GetMockData(tb testing.TB) (*httptest.Server, string) {
	tb.Helper()
	_, filename, _, _ := runtime.Caller(0)
	mockDir := path.Dir(filename)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		time.Sleep(time.Millisecond * 50)
		mockFilename := path.Join(mockDir, path.Base(req.URL.Path))
		if path.Ext(mockFilename) != ".json" {
			http.NotFound(w, req)
			return
		}
		http.ServeFile(w, req, mockFilename)
	}))
	tb.Cleanup(server.Close)

	return server, tb.TempDir()
}

// MakeLatestRequest asks for two snapshots of team-a
func MakeLatestRequest() *requests.Latest {
	return &requests.Latest{
		Namespace:     "team-a",
		SnapshotNames: []string{"snap-a", "snap-b"},
	}
}

// MakeRestoresRequest all restores of team-a
func MakeRestoresRequest() *requests.Restores {
	return &requests.Restores{
		Namespace: "team-a",
	}
}

// MakeTrafficRequest a service splitting traffic between two revisions
func MakeTrafficRequest() *requests.Traffic {
	sixty, forty := int64(60), int64(40)
	return &requests.Traffic{
		Traffic: []traffic.Target{
			{RevisionName: "rev-1", Percent: &sixty, URL: "https://rev-1.example.com"},
			{RevisionName: "rev-2", Percent: &forty},
		},
		Revisions: []string{"rev-1", "rev-2"},
	}
}
