package client

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/foomo/restoreserver/pkg/handler"
	"github.com/pkg/errors"
)

type socketTransport struct {
	connPool *connectionPool
}

// NewSocketTransport talks to a socket server at addr using up to
// connectionPoolSize connections. Calls wait at most waitTimeout for a free one.
func NewSocketTransport(addr string, connectionPoolSize int, waitTimeout time.Duration) Transport {
	return &socketTransport{
		connPool: newConnectionPool(addr, connectionPoolSize, waitTimeout),
	}
}

func (st *socketTransport) Close() {
	st.connPool.close()
}

func (st *socketTransport) Call(ctx context.Context, route handler.Route, request interface{}, response interface{}) error {
	jsonBytes, err := json.Marshal(request)
	if err != nil {
		return errors.Wrap(err, "could not marshal request")
	}

	conn, err := st.connPool.get(ctx)
	if err != nil {
		return err
	}

	responseBytes, err := st.roundTrip(ctx, conn, route, jsonBytes)
	st.connPool.put(conn, err)
	if err != nil {
		return err
	}
	return decodeResponse(responseBytes, response)
}

func (st *socketTransport) roundTrip(ctx context.Context, conn *poolConn, route handler.Route, jsonBytes []byte) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, errors.Wrap(err, "could not set deadline")
		}
	}

	// write header result will be like handler:2{}
	if _, err := fmt.Fprintf(conn, "%s:%d%s", route, len(jsonBytes), jsonBytes); err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}

	header, err := conn.r.ReadString('{')
	if err != nil {
		return nil, errors.Wrap(err, "an error occurred while reading the response")
	}
	responseLength, err := strconv.Atoi(strings.TrimSuffix(header, "{"))
	if err != nil {
		return nil, errors.Wrap(err, "could not read response length")
	}
	if responseLength < 1 {
		return nil, errors.Errorf("invalid response length %d", responseLength)
	}

	responseBytes := make([]byte, responseLength)
	responseBytes[0] = '{'
	if _, err := io.ReadFull(conn.r, responseBytes[1:]); err != nil {
		return nil, errors.Wrap(err, "an error occurred while reading the response")
	}
	return responseBytes, nil
}
