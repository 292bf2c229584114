package gossip

import (
	"cmp"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint is the address a node advertises to the cluster. It is also the
// nodes identity.
type Endpoint struct {
	Host string `json:"host" codec:"host"`
	Port int    `json:"port" codec:"port"`
}

// ParseEndpoint parses an endpoint in the form 'host:port'.
func ParseEndpoint(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint: %s: %w", s, err)
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("invalid endpoint: %s: missing host", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 0xffff {
		return Endpoint{}, fmt.Errorf("invalid endpoint: %s: invalid port", s)
	}
	return Endpoint{
		Host: host,
		Port: port,
	}, nil
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Compare orders endpoints by host then port.
func (e Endpoint) Compare(o Endpoint) int {
	if c := strings.Compare(e.Host, o.Host); c != 0 {
		return c
	}
	return cmp.Compare(e.Port, o.Port)
}

// EndpointSet is a set of endpoints.
type EndpointSet map[Endpoint]struct{}

func NewEndpointSet(endpoints ...Endpoint) EndpointSet {
	s := make(EndpointSet, len(endpoints))
	for _, e := range endpoints {
		s[e] = struct{}{}
	}
	return s
}

func (s EndpointSet) Add(e Endpoint) {
	s[e] = struct{}{}
}

func (s EndpointSet) Contains(e Endpoint) bool {
	_, ok := s[e]
	return ok
}
