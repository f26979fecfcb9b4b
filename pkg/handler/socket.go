package handler

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/foomo/restoreserver/pkg/metrics"
	"github.com/foomo/restoreserver/pkg/repo"
	"github.com/foomo/restoreserver/responses"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MaxRequestSize limits the json length a request header may announce
const MaxRequestSize = 16 << 20

type Socket struct {
	l    *zap.Logger
	repo *repo.Repo
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// NewSocket returns a shiny new socket server
func NewSocket(l *zap.Logger, repo *repo.Repo) *Socket {
	inst := &Socket{
		l:    l.Named("socket"),
		repo: repo,
	}

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Serve accepts connections on ln until ctx is done or ln is closed
func (h *Socket) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		// this blocks until connection or error
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			h.l.Error("could not accept connection", zap.Error(err))
			continue
		}

		go func() {
			h.l.Debug("accepted connection", zap.String("source", conn.RemoteAddr().String()))
			h.ServeConn(ctx, conn)
			if err := conn.Close(); err != nil {
				h.l.Debug("failed to close connection", zap.Error(err))
			}
		}()
	}
}

// ServeConn answers requests on conn until the client hangs up or sends
// something unreadable. Connections stay open between requests.
func (h *Socket) ServeConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			h.l.Error("panic in handle connection", zap.String("error", fmt.Sprint(r)))
		}
	}()

	remote := conn.RemoteAddr().String()
	metrics.NumSocketsGauge.WithLabelValues(remote).Inc()
	defer metrics.NumSocketsGauge.WithLabelValues(remote).Dec()

	reader := bufio.NewReader(conn)
	for {
		// the header runs up to the opening brace of the json
		header, err := reader.ReadString('{')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.l.Debug("looks like the client closed the connection", zap.Error(err))
			}
			return
		}

		route, jsonLength, err := h.extractRouteAndJSONLength(strings.TrimSuffix(header, "{"))
		if err != nil {
			h.l.Error("invalid request could not read header", zap.Error(err))
			if reply, encodingErr := encodeReply(h.l, responses.NewError(responses.ErrorCodeInvalidHeader, "invalid header "+err.Error())); encodingErr == nil {
				h.writeResponse(conn, reply)
			}
			return
		}

		h.l.Debug("found json", zap.Int("length", jsonLength))

		jsonBytes := make([]byte, jsonLength)
		jsonBytes[0] = '{'
		if _, err := io.ReadFull(reader, jsonBytes[1:]); err != nil {
			h.l.Error("could not read json - giving up with this client connection", zap.Error(err))
			return
		}

		h.writeResponse(conn, h.execute(ctx, route, jsonBytes))
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (h *Socket) extractRouteAndJSONLength(header string) (Route, int, error) {
	headerParts := strings.Split(header, ":")
	if len(headerParts) != 2 || headerParts[0] == "" {
		return "", 0, errors.Errorf("invalid header %q", header)
	}
	jsonLength, err := strconv.Atoi(headerParts[1])
	if err != nil {
		return "", 0, errors.Errorf("could not parse length in header: %q", header)
	}
	if jsonLength < 1 || jsonLength > MaxRequestSize {
		return "", 0, errors.Errorf("invalid json length in header: %q", header)
	}
	return Route(headerParts[0]), jsonLength, nil
}

func (h *Socket) execute(ctx context.Context, route Route, jsonBytes []byte) []byte {
	h.l.Debug("incoming json buffer", zap.Int("length", len(jsonBytes)))

	if route == RouteGetRepo {
		var b bytes.Buffer
		if err := h.repo.WriteRepoBytes(ctx, &b); err != nil {
			h.l.Error("could not write repo", zap.Error(err))
			reply, _ := encodeReply(h.l, responses.NewError(responses.ErrorCodeInternal, "internal error "+err.Error()))
			return reply
		}
		return b.Bytes()
	}

	reply, err := handleRequest(ctx, h.l, h.repo, route, jsonBytes, sourceSocketServer)
	if err != nil {
		h.l.Error("execute failed", zap.Error(err))
	}
	return reply
}

func (h *Socket) writeResponse(conn net.Conn, reply []byte) {
	reply = append([]byte(strconv.Itoa(len(reply))), reply...)
	n, err := conn.Write(reply)
	if err != nil {
		h.l.Error("could not write reply", zap.Error(err))
		return
	}
	if n < len(reply) {
		h.l.Error("write too short",
			zap.Int("got", n),
			zap.Int("expected", len(reply)),
		)
		return
	}
	h.l.Debug("replied. waiting for next request on open connection")
}
