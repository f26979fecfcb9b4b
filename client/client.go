package client

import (
	"context"
	"net/http"

	"github.com/foomo/restoreserver/pkg/handler"
	"github.com/foomo/restoreserver/pkg/restore"
	"github.com/foomo/restoreserver/pkg/traffic"
	"github.com/foomo/restoreserver/pkg/utils"
	"github.com/foomo/restoreserver/requests"
	"github.com/foomo/restoreserver/responses"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Client a restore server client
type Client struct {
	t Transport
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func New(t Transport) *Client {
	return &Client{
		t: t,
	}
}

// NewHTTPClient talks to the webserver at server, e.g. http://localhost:8080/restoreserver
func NewHTTPClient(server string) (*Client, error) {
	if !utils.IsValidUrl(server) {
		return nil, errors.Errorf("invalid server url: %q", server)
	}
	return New(NewHTTPTransport(server, http.DefaultClient)), nil
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Update tell the server to update itself
func (c *Client) Update(ctx context.Context) (*responses.Update, error) {
	response := &responses.Update{}
	if err := c.t.Call(ctx, handler.RouteUpdate, &requests.Update{}, response); err != nil {
		return nil, err
	}
	return response, nil
}

// GetLatest latest restore per snapshot of a namespace, all snapshots if
// snapshotNames is empty
func (c *Client) GetLatest(ctx context.Context, namespace string, snapshotNames []string) (map[string]*restore.Record, error) {
	var response map[string]*restore.Record
	req := &requests.Latest{
		Namespace:     namespace,
		SnapshotNames: snapshotNames,
	}
	if err := c.t.Call(ctx, handler.RouteGetLatest, req, &response); err != nil {
		return nil, err
	}
	return response, nil
}

// GetRestores all restores of a namespace
func (c *Client) GetRestores(ctx context.Context, namespace string) ([]*restore.Record, error) {
	var response []*restore.Record
	if err := c.t.Call(ctx, handler.RouteGetRestores, &requests.Restores{Namespace: namespace}, &response); err != nil {
		return nil, err
	}
	return response, nil
}

func (c *Client) GetNamespaces(ctx context.Context) ([]string, error) {
	var response []string
	if err := c.t.Call(ctx, handler.RouteGetNamespaces, &requests.Namespaces{}, &response); err != nil {
		return nil, err
	}
	return response, nil
}

// GetIndex latest restores of all namespaces
func (c *Client) GetIndex(ctx context.Context) (map[string]map[string]*restore.Record, error) {
	var response map[string]map[string]*restore.Record
	if err := c.t.Call(ctx, handler.RouteGetIndex, &requests.Index{}, &response); err != nil {
		return nil, err
	}
	return response, nil
}

// GetTraffic summarize targets for every revision
func (c *Client) GetTraffic(ctx context.Context, targets []traffic.Target, revisions []string) (map[string]traffic.Summary, error) {
	var response map[string]traffic.Summary
	req := &requests.Traffic{
		Traffic:   targets,
		Revisions: revisions,
	}
	if err := c.t.Call(ctx, handler.RouteGetTraffic, req, &response); err != nil {
		return nil, err
	}
	return response, nil
}

// GetRepo the raw restore collection the server indexed
func (c *Client) GetRepo(ctx context.Context) ([]*restore.Record, error) {
	var response jsoniter.RawMessage
	if err := c.t.Call(ctx, handler.RouteGetRepo, &requests.Repo{}, &response); err != nil {
		return nil, err
	}
	return restore.DecodeCollection(response)
}

func (c *Client) Close() {
	c.t.Close()
}
