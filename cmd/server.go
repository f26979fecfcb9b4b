package cmd

import (
	"context"
	"strings"

	"github.com/foomo/keel"
	"github.com/foomo/keel/healthz"
	keelhttp "github.com/foomo/keel/net/http"
	"github.com/foomo/keel/service"
	"github.com/foomo/restoreserver/pkg/repo"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// supportedBlobSchemes lists the URL schemes supported by blob storage
var supportedBlobSchemes = []string{"gs://", "s3://", "azblob://"}

func urlArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var comps []string
	if len(args) == 0 {
		comps = cobra.AppendActiveHelp(comps, "You must specify the URL serving the restores")
	} else {
		comps = cobra.AppendActiveHelp(comps, "This command does not take any more arguments")
	}
	return comps, cobra.ShellCompDirectiveNoFileComp
}

func newServer(v *viper.Viper) *keel.Server {
	service.DefaultHTTPPProfAddr = ":6060"
	return keel.NewServer(
		keel.WithHTTPPrometheusService(servicePrometheusEnabledFlag(v)),
		keel.WithHTTPHealthzService(serviceHealthzEnabledFlag(v)),
		keel.WithPrometheusMeter(servicePrometheusEnabledFlag(v)),
		keel.WithGracefulPeriod(gracefulPeriodFlag(v)),
		keel.WithOTLPGRPCTracer(otelEnabledFlag(v)),
		keel.WithHTTPPProfService(servicePProfEnabledFlag(v)),
	)
}

// newRepo wires history and repository and registers them with svr
func newRepo(ctx context.Context, svr *keel.Server, v *viper.Viper, url string) (*repo.Repo, error) {
	l := svr.Logger()

	storage, err := createStorage(ctx, v, l)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create storage")
	}

	history, err := repo.NewHistory(l.Named("inst.history"),
		repo.HistoryWithStorage(storage),
		repo.HistoryWithHistoryDir(historyDirFlag(v)),
		repo.HistoryWithHistoryLimit(historyLimitFlag(v)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create history")
	}

	r := repo.New(l.Named("inst.repo"),
		url,
		history,
		repo.WithHTTPClient(
			keelhttp.NewHTTPClient(
				keelhttp.HTTPClientWithTimeout(repositoryTimeoutFlag(v)),
				keelhttp.HTTPClientWithTelemetry(),
			),
		),
		repo.WithPollInterval(pollIntervalFlag(v)),
		repo.WithPoll(pollFlag(v)),
	)

	isLoadedHealthzerFn := healthz.NewHealthzerFn(func(ctx context.Context) error {
		if !r.Loaded() {
			return errors.New("repo not loaded yet")
		}
		return nil
	})
	svr.AddStartupHealthzers(isLoadedHealthzerFn)
	svr.AddReadinessHealthzers(isLoadedHealthzerFn)

	svr.AddClosers(func(ctx context.Context) error {
		return history.Close()
	})

	svr.AddServices(
		service.NewGoRoutine(l.Named("go.repo"), "repo", func(ctx context.Context, l *zap.Logger) error {
			return r.Start(ctx)
		}),
	)

	return r, nil
}

// createStorage creates a storage backend based on the configuration
func createStorage(ctx context.Context, v *viper.Viper, l *zap.Logger) (repo.Storage, error) {
	storageType := storageTypeFlag(v)
	blobBucket := storageBlobBucketFlag(v)
	blobPrefix := storageBlobPrefixFlag(v)

	if storageType != "blob" && (blobBucket != "" || blobPrefix != "") {
		l.Warn("blob storage flags are set but storage-type is not 'blob'; blob config will be ignored",
			zap.String("storage-type", storageType),
			zap.String("blob-bucket", blobBucket),
			zap.String("blob-prefix", blobPrefix),
		)
	}

	switch storageType {
	case "blob":
		if blobBucket == "" {
			return nil, errors.Errorf("blob bucket URL is required when storage-type is 'blob' (supported schemes: %s)", strings.Join(supportedBlobSchemes, ", "))
		}
		provider := detectBlobProvider(blobBucket)
		if provider == "" {
			return nil, errors.Errorf("unsupported blob storage URL scheme in %q; supported schemes: %s", blobBucket, strings.Join(supportedBlobSchemes, ", "))
		}
		l.Info("using blob storage",
			zap.String("bucket", blobBucket),
			zap.String("prefix", blobPrefix),
			zap.String("provider", provider),
		)
		return repo.NewBlobStorage(ctx, blobBucket, blobPrefix)
	case "filesystem", "":
		dir := historyDirFlag(v)
		l.Info("using filesystem storage", zap.String("dir", dir))
		return repo.NewFilesystemStorage(dir)
	default:
		return nil, errors.Errorf("unknown storage type: %s (supported: filesystem, blob)", storageType)
	}
}

// detectBlobProvider returns a human-readable provider name from the URL
// scheme, empty for unsupported schemes
func detectBlobProvider(bucketURL string) string {
	switch {
	case strings.HasPrefix(bucketURL, "gs://"):
		return "Google Cloud Storage"
	case strings.HasPrefix(bucketURL, "s3://"):
		return "AWS S3"
	case strings.HasPrefix(bucketURL, "azblob://"):
		return "Azure Blob Storage"
	default:
		return ""
	}
}
