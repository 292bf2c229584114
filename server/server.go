// Copyright 2024 Andrew Dunstall. All rights reserved.
//
// Use of this source code is governed by a MIT style license that can be
// found in the LICENSE file.

package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/go-sockaddr"
	rungroup "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/andydunstall/murmur/pkg/backoff"
	"github.com/andydunstall/murmur/pkg/gossip"
	"github.com/andydunstall/murmur/pkg/log"
	"github.com/andydunstall/murmur/server/admin"
	"github.com/andydunstall/murmur/server/config"
	servergossip "github.com/andydunstall/murmur/server/gossip"
)

// Server is a murmur node. It gossips with the other members of the cluster
// and serves the admin API.
type Server struct {
	gossip *gossip.Gossip

	stream *servergossip.EventStream

	adminLn     net.Listener
	adminServer *admin.Server

	conf *config.Config

	logger log.Logger
}

func NewServer(conf *config.Config, logger log.Logger) (*Server, error) {
	registry := prometheus.NewRegistry()

	conn, err := net.ListenPacket("udp", conf.Gossip.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("gossip listen: %s: %w", conf.Gossip.BindAddr, err)
	}

	if conf.Gossip.AdvertiseAddr == "" {
		advertiseAddr, err := advertiseAddrFromBindAddr(conn.LocalAddr().String())
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("gossip: %w", err)
		}
		conf.Gossip.AdvertiseAddr = advertiseAddr
	}
	self, err := gossip.ParseEndpoint(conf.Gossip.AdvertiseAddr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("gossip: advertise addr: %w", err)
	}

	adminLn, err := net.Listen("tcp", conf.Admin.BindAddr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("admin listen: %s: %w", conf.Admin.BindAddr, err)
	}
	adminServer := admin.NewServer(registry, logger)

	g := gossip.New(self, &conf.Gossip, conn, logger)
	g.Metrics().Register(registry)

	events := servergossip.NewEventLogger(logger)
	events.Register(registry)
	g.AddWatcher(events)

	stream := servergossip.NewEventStream(logger)
	g.AddWatcher(stream)

	adminServer.AddStatus("/gossip", servergossip.NewStatus(g))
	adminServer.AddStatus("/gossip", stream)

	return &Server{
		gossip:      g,
		stream:      stream,
		adminLn:     adminLn,
		adminServer: adminServer,
		conf:        conf,
		logger:      logger,
	}, nil
}

// Gossip returns the nodes gossip state.
func (s *Server) Gossip() *gossip.Gossip {
	return s.gossip
}

// AdminAddr returns the address the admin server is listening on.
func (s *Server) AdminAddr() string {
	return s.adminLn.Addr().String()
}

// Run joins the cluster and serves the admin API until ctx is cancelled.
//
// When ctx is cancelled, the node gracefully leaves the cluster and shuts
// down within the configured grace period.
func (s *Server) Run(ctx context.Context) error {
	if err := s.join(ctx); err != nil {
		s.shutdownGossip()
		s.adminLn.Close()
		return err
	}

	var group rungroup.Group

	// Termination handler.
	runCtx, runCancel := context.WithCancel(ctx)
	group.Add(func() error {
		<-runCtx.Done()

		if ctx.Err() == nil {
			// Another actor failed so skip leaving.
			return nil
		}

		s.logger.Info("shutting down")

		leaveCtx, cancel := context.WithTimeout(
			context.Background(),
			s.conf.GracePeriod,
		)
		defer cancel()

		// Leave as soon as we're asked to shutdown so other nodes stop
		// routing to this node.
		if err := s.gossip.Leave(leaveCtx); err != nil {
			s.logger.Warn("failed to gracefully leave cluster", zap.Error(err))
		}
		return nil
	}, func(error) {
		runCancel()
	})

	// Admin server.
	group.Add(func() error {
		if err := s.adminServer.Serve(s.adminLn); err != nil {
			return fmt.Errorf("admin server serve: %w", err)
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.conf.GracePeriod,
		)
		defer cancel()

		// Event subscribers are hijacked connections so aren't closed by
		// the admin server shutdown.
		s.stream.Close()

		if err := s.adminServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("failed to gracefully shutdown admin server", zap.Error(err))
		}

		s.logger.Info("admin server shut down")
	})

	err := group.Run()
	s.shutdownGossip()
	if err != nil {
		return err
	}

	s.logger.Info("shutdown complete")

	return nil
}

func (s *Server) join(ctx context.Context) error {
	if len(s.conf.Cluster.Join) == 0 {
		return nil
	}

	joinCtx, cancel := context.WithTimeout(ctx, s.conf.Cluster.JoinTimeout)
	defer cancel()

	// Retry until the seeds resolve, such as when the cluster domain doesn't
	// have any records yet. Note if 'join' is a domain that doesn't map to
	// any entries (except ourselves), then join will succeed since it means
	// we're the first member.
	retry := backoff.New(0, time.Millisecond*100, time.Second*5)
	var seeds []gossip.Endpoint
	for {
		var err error
		seeds, err = s.gossip.Join(joinCtx, s.conf.Cluster.Join)
		if err == nil {
			break
		}

		s.logger.Warn(
			"failed to join cluster; retrying",
			zap.Int("attempts", retry.Attempts()),
			zap.Error(err),
		)
		if !retry.Wait(joinCtx) {
			if s.conf.Cluster.AbortIfJoinFails {
				return fmt.Errorf("join cluster: %w", err)
			}
			s.logger.Warn("failed to join cluster", zap.Error(err))
			return nil
		}
	}
	if len(seeds) == 0 {
		s.logger.Info("no other members found; starting new cluster")
		return nil
	}

	var addrs []string
	for _, seed := range seeds {
		addrs = append(addrs, seed.String())
	}
	s.logger.Info("joined cluster", zap.Strings("seeds", addrs))
	return nil
}

func (s *Server) shutdownGossip() {
	if err := s.gossip.Close(); err != nil {
		s.logger.Warn("failed to close gossip", zap.Error(err))
	}
}

func advertiseAddrFromBindAddr(bindAddr string) (string, error) {
	host, port, err := net.SplitHostPort(bindAddr)
	if err != nil {
		return "", fmt.Errorf("invalid bind addr: %s: %w", bindAddr, err)
	}

	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		ip, err := sockaddr.GetPrivateIP()
		if err != nil {
			return "", fmt.Errorf("get interface addr: %w", err)
		}
		if ip == "" {
			return "", fmt.Errorf("no private ip found")
		}
		return net.JoinHostPort(ip, port), nil
	}
	return bindAddr, nil
}
