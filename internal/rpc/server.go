// Package rpc serves the gRPC health service for the daemon.
package rpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServiceName is the health service name of the gate. The empty name
// reports the same status.
const ServiceName = "pulljoy.Gate"

// ServerConfig holds configuration for the gRPC server.
type ServerConfig struct {
	// ListenAddr is the address to listen on (e.g., "localhost:10009").
	ListenAddr string

	// ServerPingTime is the duration after which the server pings the
	// client.
	ServerPingTime time.Duration

	// ServerPingTimeout is the duration the server waits for ping ack.
	ServerPingTimeout time.Duration

	// ClientPingMinWait is the minimum time between client pings.
	ClientPingMinWait time.Duration

	// ClientAllowPingWithoutStream allows pings even without active
	// streams.
	ClientAllowPingWithoutStream bool

	// ProbeInterval is how often Probe runs.
	ProbeInterval time.Duration

	// Probe checks a dependency of the gate, typically the state store.
	// A failing probe reports NOT_SERVING until it passes again. Nil
	// means always serving.
	Probe func(ctx context.Context) error
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:                   "localhost:10009",
		ServerPingTime:               5 * time.Minute,
		ServerPingTimeout:            1 * time.Minute,
		ClientPingMinWait:            5 * time.Second,
		ClientAllowPingWithoutStream: true,
		ProbeInterval:                30 * time.Second,
	}
}

// Server is the gRPC server.
type Server struct {
	cfg ServerConfig

	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener

	started bool
	mu      sync.RWMutex

	// quit is closed when the server is shutting down.
	quit chan struct{}
	wg   sync.WaitGroup
}

// NewServer creates a new gRPC server instance.
func NewServer(cfg ServerConfig) *Server {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultServerConfig().ProbeInterval
	}

	return &Server{
		cfg:    cfg,
		health: health.NewServer(),
		quit:   make(chan struct{}),
	}
}

// Start starts the gRPC server.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("server already started")
	}

	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w",
			s.cfg.ListenAddr, err)
	}
	s.listener = lis

	s.grpcServer = grpc.NewServer(s.buildServerOptions()...)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)

	s.setStatus(healthpb.HealthCheckResponse_SERVING)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		log.InfoS(context.Background(), "gRPC server listening",
			"addr", lis.Addr().String())

		if err := s.grpcServer.Serve(lis); err != nil {
			select {
			case <-s.quit:
			default:
				log.ErrorS(context.Background(), "gRPC server "+
					"error", err)
			}
		}
	}()

	if s.cfg.Probe != nil {
		s.wg.Add(1)
		go s.probeLoop()
	}

	s.started = true

	return nil
}

// Stop reports NOT_SERVING and gracefully stops the gRPC server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.health.Shutdown()
	close(s.quit)
	s.grpcServer.GracefulStop()
	s.wg.Wait()

	s.started = false
	log.InfoS(context.Background(), "gRPC server stopped")

	return nil
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// probeLoop runs the probe until shutdown.
func (s *Server) probeLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()

	healthy := true
	for {
		ctx, cancel := context.WithTimeout(
			context.Background(), s.cfg.ProbeInterval,
		)
		err := s.cfg.Probe(ctx)
		cancel()

		switch {
		case err != nil && healthy:
			log.WarnS(ctx, "Health probe failed", err)
			s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
			healthy = false

		case err == nil && !healthy:
			log.InfoS(ctx, "Health probe recovered")
			s.setStatus(healthpb.HealthCheckResponse_SERVING)
			healthy = true
		}

		select {
		case <-ticker.C:
		case <-s.quit:
			return
		}
	}
}

// buildServerOptions creates gRPC server options with keepalive and
// interceptors.
func (s *Server) buildServerOptions() []grpc.ServerOption {
	serverKeepalive := keepalive.ServerParameters{
		Time:    s.cfg.ServerPingTime,
		Timeout: s.cfg.ServerPingTimeout,
	}

	clientKeepalive := keepalive.EnforcementPolicy{
		MinTime:             s.cfg.ClientPingMinWait,
		PermitWithoutStream: s.cfg.ClientAllowPingWithoutStream,
	}

	return []grpc.ServerOption{
		grpc.KeepaliveParams(serverKeepalive),
		grpc.KeepaliveEnforcementPolicy(clientKeepalive),
		grpc.ChainUnaryInterceptor(
			s.loggingUnaryInterceptor,
			s.shutdownUnaryInterceptor,
		),
		grpc.ChainStreamInterceptor(
			s.loggingStreamInterceptor,
		),
	}
}

// loggingUnaryInterceptor logs all unary RPC calls.
func (s *Server) loggingUnaryInterceptor(ctx context.Context, req any,
	info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	start := time.Now()
	resp, err := handler(ctx, req)

	if err != nil {
		log.WarnS(ctx, "RPC failed", err, "method", info.FullMethod,
			"duration", time.Since(start))
	} else {
		log.TraceS(ctx, "RPC completed", "method", info.FullMethod,
			"duration", time.Since(start))
	}

	return resp, err
}

// shutdownUnaryInterceptor refuses calls once shutdown has begun.
func (s *Server) shutdownUnaryInterceptor(ctx context.Context, req any,
	_ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	select {
	case <-s.quit:
		return nil, status.Error(codes.Unavailable,
			"server is shutting down")
	default:
	}

	return handler(ctx, req)
}

// loggingStreamInterceptor logs streaming RPC calls such as health
// watches.
func (s *Server) loggingStreamInterceptor(srv any, ss grpc.ServerStream,
	info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {

	start := time.Now()
	err := handler(srv, ss)

	if err != nil {
		log.DebugS(ss.Context(), "Stream RPC ended", "method",
			info.FullMethod, "duration", time.Since(start),
			"err", err)
	}

	return err
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.started
}
