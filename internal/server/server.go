// Package server implements UDP ingress (C5) and the queue/worker
// pool/lifecycle (C6): it binds the listening socket, hands each datagram
// to a bounded queue, and runs a fixed pool of workers that resolve and
// answer each query.
//
// The worker pool and queue are sized directly from WORKER_COUNT/QUEUE_SIZE
// rather than from NumCPU: one UDP socket, one bounded channel, and a fixed
// number of worker goroutines draining it.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/nullbind/dohgate/internal/cache"
	"github.com/nullbind/dohgate/internal/dnsutil"
	"github.com/nullbind/dohgate/internal/pool"
)

// maxDatagramSize covers the largest UDP DNS message this proxy accepts;
// a larger datagram is truncated to this size when recvLoop reads it.
const maxDatagramSize = 4096

var bufferPool = pool.New(func() *[]byte {
	buf := make([]byte, maxDatagramSize)
	return &buf
})

// Resolver is the subset of *resolver.Resolver the server depends on, kept
// as an interface so tests can substitute a fake.
type Resolver interface {
	Resolve(ctx context.Context, query []byte) (response []byte, ttl time.Duration, err error)
}

// job is one datagram queued for a worker.
type job struct {
	bufPtr *[]byte
	n      int
	peer   *net.UDPAddr
}

// Server owns the UDP socket, the bounded job queue, and the worker pool.
type Server struct {
	Logger      *slog.Logger
	Resolver    Resolver
	Cache       *cache.Cache
	WorkerCount int
	QueueSize   int

	stats Stats

	conn *net.UDPConn
	jobs chan job
	wg   sync.WaitGroup
}

// New constructs a Server. WorkerCount and QueueSize must already be
// positive (config.Load clamps them). logger may be nil (warnings are then
// discarded); c must be non-nil.
func New(logger *slog.Logger, res Resolver, c *cache.Cache, workerCount, queueSize int) *Server {
	return &Server{
		Logger:      logger,
		Resolver:    res,
		Cache:       c,
		WorkerCount: workerCount,
		QueueSize:   queueSize,
		jobs:        make(chan job, queueSize),
	}
}

// ListenAndServe binds addr and runs until ctx is cancelled, then drains the
// in-flight workers within drainTimeout before returning.
func (s *Server) ListenAndServe(ctx context.Context, addr string, drainTimeout time.Duration) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	s.conn = conn

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.recvLoop(ctx, conn)
	}()

	for i := 0; i < s.WorkerCount; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.workerLoop(ctx)
		}()
	}

	<-ctx.Done()
	_ = conn.Close()
	close(s.jobs)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(drainTimeout):
		return errors.New("server: timeout draining in-flight workers")
	}
}

// recvLoop reads datagrams off conn and enqueues them for the worker pool.
// A full queue drops the datagram rather than blocking the receive path.
func (s *Server) recvLoop(ctx context.Context, conn *net.UDPConn) {
	for {
		bufPtr := bufferPool.Get()
		buf := *bufPtr

		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			bufferPool.Put(bufPtr)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		s.stats.RecordReceived()

		select {
		case s.jobs <- job{bufPtr: bufPtr, n: n, peer: peer}:
		default:
			bufferPool.Put(bufPtr)
			s.stats.RecordDropped()
			s.logWarn("queue full, dropping query", "peer", peer.String())
		}
	}
}

// workerLoop pulls jobs off the queue and answers them until the channel is
// closed (post-shutdown drain).
func (s *Server) workerLoop(ctx context.Context) {
	for j := range s.jobs {
		s.handle(ctx, j)
	}
}

// handle runs the lookup/resolve/insert/respond pipeline for one query.
func (s *Server) handle(ctx context.Context, j job) {
	defer bufferPool.Put(j.bufPtr)

	raw := (*j.bufPtr)[:j.n]
	start := time.Now()

	txid, question, err := dnsutil.ExtractQuestion(raw)
	if err != nil {
		s.stats.RecordError()
		s.logWarn("dropping malformed query", "peer", j.peer.String(), "err", err.Error())
		return
	}

	if cached, _, ok := s.Cache.Lookup(question); ok {
		s.stats.RecordCacheHit()
		s.respond(j.peer, dnsutil.PatchTransactionID(cached, txid))
		s.stats.RecordLatency(time.Since(start))
		return
	}
	s.stats.RecordCacheMiss()

	answer, ttl, err := s.Resolver.Resolve(ctx, raw)
	if err != nil {
		s.stats.RecordError()
		s.logWarn("resolve failed", "name", question.Name, "err", err.Error())
		return
	}

	s.Cache.Insert(question, answer, ttl)
	s.respond(j.peer, dnsutil.PatchTransactionID(answer, txid))
	s.stats.RecordLatency(time.Since(start))
}

func (s *Server) respond(peer *net.UDPAddr, payload []byte) {
	if _, err := s.conn.WriteToUDP(payload, peer); err != nil {
		s.logWarn("write failed", "peer", peer.String(), "err", err.Error())
	}
}

func (s *Server) logWarn(msg string, args ...any) {
	if s.Logger != nil {
		s.Logger.Warn(msg, args...)
	}
}

// Stats returns a point-in-time snapshot of server counters, for the
// periodic stats reporter in cmd/dohgate.
func (s *Server) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}
