package admin

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/murmur/pkg/log"
	"github.com/andydunstall/murmur/server/status"
)

type fakeStatus struct {
}

func (s *fakeStatus) Register(group *gin.RouterGroup) {
	group.GET("/foo", s.fooRoute)
	group.GET("/panic", s.panicRoute)
}

func (s *fakeStatus) fooRoute(c *gin.Context) {
	c.String(http.StatusOK, "foo")
}

func (s *fakeStatus) panicRoute(_ *gin.Context) {
	panic("status panic")
}

var _ status.Handler = &fakeStatus{}

func startServer(t *testing.T) (*Server, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer(
		prometheus.NewRegistry(),
		log.NewNopLogger(),
	)
	s.AddStatus("/mystatus", &fakeStatus{})

	go func() {
		assert.NoError(t, s.Serve(ln))
	}()
	t.Cleanup(func() {
		_ = s.Shutdown(context.TODO())
	})

	return s, ln.Addr().String()
}

func TestServer_AdminRoutes(t *testing.T) {
	_, addr := startServer(t)

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("metrics", func(t *testing.T) {
		// Make a request first so the request metrics are populated.
		resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
		require.NoError(t, err)
		resp.Body.Close()

		resp, err = http.Get(fmt.Sprintf("http://%s/metrics", addr))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(b), "murmur_admin_http_requests_total"))
	})

	t.Run("not found", func(t *testing.T) {
		resp, err := http.Get(fmt.Sprintf("http://%s/foo", addr))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"error":"route not found"}`, string(b))
	})
}

func TestServer_StatusRoutes(t *testing.T) {
	_, addr := startServer(t)

	t.Run("status ok", func(t *testing.T) {
		resp, err := http.Get(fmt.Sprintf("http://%s/status/mystatus/foo", addr))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "foo", string(b))
	})

	t.Run("panic recovered", func(t *testing.T) {
		resp, err := http.Get(fmt.Sprintf("http://%s/status/mystatus/panic", addr))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("not found", func(t *testing.T) {
		resp, err := http.Get(fmt.Sprintf("http://%s/status/notfound", addr))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
