package main

import (
	"context"
	"sync"
	"time"

	"github.com/foomo/restoreserver/client"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var (
	flagAddr      = pflag.String("addr", "http://127.0.0.1:8080/restoreserver", "http url or socket host:port of the restore server")
	flagSocket    = pflag.Bool("socket", false, "use the socket transport")
	flagNamespace = pflag.String("namespace", "default", "namespace to ask for the latest restores")
	flagGetRepo   = pflag.Bool("get-repo", false, "get repo")
	flagUpdate    = pflag.Bool("update", true, "trigger restore update")
	flagNum       = pflag.Int("num", 100, "num repetitions")
	flagDelay     = pflag.Duration("delay", 2*time.Second, "delay between repetitions")
)

func main() {
	pflag.Parse()

	l := zap.Must(zap.NewDevelopment())
	defer func() { _ = l.Sync() }()

	c, err := newClient()
	if err != nil {
		l.Fatal("failed to create client", zap.Error(err))
	}
	defer c.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 1; i <= *flagNum; i++ {
		l := l.With(zap.Int("num", i))

		if *flagUpdate {
			wg.Add(1)
			go func() {
				defer wg.Done()
				resp, err := c.Update(ctx)
				if err != nil {
					l.Error("update failed", zap.Error(err))
					return
				}
				l.Info("update done", zap.Bool("success", resp.Success), zap.Int("restores", resp.Stats.NumberOfRestores))
			}()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			latest, err := c.GetLatest(ctx, *flagNamespace, nil)
			if err != nil {
				l.Error("get latest failed", zap.Error(err))
				return
			}
			for snapshot, record := range latest {
				l.Info("latest restore",
					zap.String("snapshot", snapshot),
					zap.String("restore", record.Metadata.Name),
					zap.String("restore_time", record.Status.RestoreTime.String()),
				)
			}
		}()

		if *flagGetRepo {
			wg.Add(1)
			go func() {
				defer wg.Done()
				records, err := c.GetRepo(ctx)
				if err != nil {
					l.Error("failed to get repo", zap.Error(err))
					return
				}
				l.Info("get repo done", zap.Int("restores", len(records)))
			}()
		}

		time.Sleep(*flagDelay)
	}
	wg.Wait()

	l.Info("done!")
}

func newClient() (*client.Client, error) {
	if *flagSocket {
		return client.New(client.NewSocketTransport(*flagAddr, 10, 5*time.Second)), nil
	}
	return client.NewHTTPClient(*flagAddr)
}
