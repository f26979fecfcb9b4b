package client

import (
	"bytes"
	"context"

	"github.com/foomo/restoreserver/pkg/handler"
	"github.com/foomo/restoreserver/responses"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Transport carries a request for a route to a restore server and decodes
// the reply into response
type Transport interface {
	Call(ctx context.Context, route handler.Route, request interface{}, response interface{}) error
	Close()
}

type serverResponse struct {
	Reply jsoniter.RawMessage `json:"reply"`
}

type remoteError struct {
	Status  *int    `json:"status"`
	Code    *int    `json:"code"`
	Message *string `json:"message"`
}

// decodeResponse unwraps {"reply": ...} and turns error replies into
// responses.Error
func decodeResponse(data []byte, response interface{}) error {
	var sr serverResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return errors.Wrap(err, "could not unmarshal response")
	}
	if len(sr.Reply) == 0 {
		return errors.New("response carries no reply")
	}
	if bytes.HasPrefix(bytes.TrimSpace(sr.Reply), []byte("{")) {
		var re remoteError
		if err := json.Unmarshal(sr.Reply, &re); err == nil && re.Status != nil && re.Code != nil && re.Message != nil {
			return responses.Error{Status: *re.Status, Code: *re.Code, Message: *re.Message}
		}
	}
	if err := json.Unmarshal(sr.Reply, response); err != nil {
		return errors.Wrap(err, "could not unmarshal reply")
	}
	return nil
}
