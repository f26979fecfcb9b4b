package main

import (
	"net/http"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// testServer serves a restore collection file like an upstream would
type testServer struct {
	l    *zap.Logger
	file string
}

func main() {
	var (
		flagJSONFile = pflag.String("json-file", "", "provide a json source file")
		flagAddress  = pflag.String("addr", ":1234", "set the webserver address")
	)
	pflag.Parse()

	l := zap.Must(zap.NewDevelopment())
	defer func() { _ = l.Sync() }()

	if *flagJSONFile == "" {
		l.Fatal("json source file must be provided")
	}

	ts := &testServer{
		l:    l,
		file: *flagJSONFile,
	}

	l.Info("start test server", zap.String("address", *flagAddress), zap.String("file", ts.file))
	l.Fatal("test server stopped", zap.Error(http.ListenAndServe(*flagAddress, ts))) //nolint:gosec
}

func (ts *testServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ts.l.Debug("serving restores", zap.String("remote", r.RemoteAddr))
	w.Header().Set("Content-Type", "application/json")
	http.ServeFile(w, r, ts.file)
}
