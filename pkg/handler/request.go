package handler

import (
	"context"
	"time"

	"github.com/foomo/restoreserver/pkg/metrics"
	"github.com/foomo/restoreserver/pkg/repo"
	"github.com/foomo/restoreserver/pkg/traffic"
	"github.com/foomo/restoreserver/requests"
	"github.com/foomo/restoreserver/responses"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func handleRequest(ctx context.Context, l *zap.Logger, r *repo.Repo, route Route, jsonBytes []byte, source string) ([]byte, error) {
	start := time.Now()

	reply, err := executeRequest(ctx, l, r, route, jsonBytes, source)
	result := "success"
	if err != nil {
		result = "error"
	}

	metrics.ServiceRequestCounter.WithLabelValues(string(route), result, source).Inc()
	metrics.ServiceRequestDuration.WithLabelValues(string(route), result, source).Observe(time.Since(start).Seconds())

	return reply, err
}

func executeRequest(ctx context.Context, l *zap.Logger, r *repo.Repo, route Route, jsonBytes []byte, source string) ([]byte, error) {
	var (
		reply             interface{}
		apiErr            error
		jsonErr           error
		processIfJSONIsOk = func(err error, processingFunc func()) {
			if err != nil {
				jsonErr = err
				return
			}
			processingFunc()
		}
	)
	metrics.RequestCounter.WithLabelValues(source).Inc()

	// RouteGetRepo is written straight to the connection by the callers
	switch route {
	case RouteGetLatest:
		req := &requests.Latest{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			reply, apiErr = r.GetLatest(req)
		})
	case RouteGetRestores:
		req := &requests.Restores{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			reply, apiErr = r.GetRestores(req)
		})
	case RouteGetNamespaces:
		req := &requests.Namespaces{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			reply = r.GetNamespaces()
		})
	case RouteGetIndex:
		req := &requests.Index{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			reply = r.GetIndex()
		})
	case RouteGetTraffic:
		req := &requests.Traffic{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			reply = traffic.ByRevision(req.Traffic, req.Revisions)
		})
	case RouteUpdate:
		req := &requests.Update{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			reply = r.Update(ctx)
		})
	default:
		reply = responses.NewError(responses.ErrorCodeUnknownRoute, "unknown handler: "+string(route))
	}

	if jsonErr != nil {
		l.Error("could not read incoming json", zap.Error(jsonErr))
		reply = responses.NewError(responses.ErrorCodeInvalidJSON, "could not read incoming json "+jsonErr.Error())
	} else if apiErr != nil {
		l.Error("an API error occurred", zap.Error(apiErr))
		reply = responses.NewError(responses.ErrorCodeInternal, "internal error "+apiErr.Error())
	}

	return encodeReply(l, reply)
}

// encodeReply wraps reply as {"reply": reply}
func encodeReply(l *zap.Logger, reply interface{}) ([]byte, error) {
	bytes, err := json.Marshal(map[string]interface{}{
		"reply": reply,
	})
	if err != nil {
		l.Error("could not encode reply", zap.Error(err))
	}
	return bytes, err
}
