package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	fspath "path"
	"time"

	"github.com/gorilla/websocket"

	"github.com/andydunstall/murmur/pkg/gossip"
	"github.com/andydunstall/murmur/pkg/status"
	servergossip "github.com/andydunstall/murmur/server/gossip"
)

// Client queries the status API of a node.
type Client struct {
	httpClient *http.Client

	url *url.URL
}

func NewClient(url *url.URL) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Second * 15,
		},
		url: url,
	}
}

func (c *Client) GossipMembers() ([]servergossip.MemberStatus, error) {
	var members []servergossip.MemberStatus
	if err := c.get("/status/gossip/members", &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *Client) AvailableEndpoints() ([]string, error) {
	var endpoints []string
	if err := c.get("/status/gossip/members/available", &endpoints); err != nil {
		return nil, err
	}
	return endpoints, nil
}

func (c *Client) Latency() ([]gossip.Latency, error) {
	var latency []gossip.Latency
	if err := c.get("/status/gossip/latency", &latency); err != nil {
		return nil, err
	}
	return latency, nil
}

func (c *Client) Digest() (*servergossip.DigestStatus, error) {
	var digest servergossip.DigestStatus
	if err := c.get("/status/gossip/digest", &digest); err != nil {
		return nil, err
	}
	return &digest, nil
}

// WatchEvents streams membership events from the node, calling onEvent for
// each event, until ctx is cancelled or the connection closes.
func (c *Client) WatchEvents(ctx context.Context, onEvent func(e servergossip.Event)) error {
	url := new(url.URL)
	*url = *c.url

	switch url.Scheme {
	case "https":
		url.Scheme = "wss"
	default:
		url.Scheme = "ws"
	}
	url.Path = fspath.Join(url.Path, "/status/gossip/events")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stopCh := make(chan struct{})
	defer close(stopCh)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stopCh:
		}
	}()

	for {
		var e servergossip.Event
		if err := conn.ReadJSON(&e); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		onEvent(e)
	}
}

func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) get(path string, v any) error {
	r, err := c.request(path)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) request(path string) (io.ReadCloser, error) {
	url := new(url.URL)
	*url = *c.url

	url.Path = fspath.Join(url.Path, path)

	req, err := http.NewRequest(http.MethodGet, url.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		errInfo := status.NewErrorInfo(resp.StatusCode, "")
		// The body may not contain an error message, such as if the request
		// was rejected by a proxy.
		_ = json.NewDecoder(resp.Body).Decode(errInfo)
		return nil, fmt.Errorf("request: %w", errInfo)
	}

	return resp.Body, nil
}
