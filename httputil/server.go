// Copyright (c) 2025 BVK Chaitanya

// Package httputil runs the daemon's local http endpoint. Handlers can be
// added and removed dynamically while the server is running.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/bvk/buydips/ctxutil"
	"github.com/google/uuid"
)

type Server struct {
	cg ctxutil.CloseGroup

	opts Options

	server *http.Server

	mux atomic.Pointer[http.ServeMux]

	mutex      sync.Mutex
	handlerMap map[string]http.Handler
}

// New creates a http server. The server doesn't listen on any address until
// StartTCP is called.
func New(opts *Options) (*Server, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}

	s := &Server{
		opts:       *opts,
		handlerMap: make(map[string]http.Handler),
	}
	s.updateHandlerMux()
	return s, nil
}

func (s *Server) Close() error {
	if s.server != nil {
		s.server.Close()
	}
	s.cg.Close()
	return nil
}

// StartTCP starts serving on the given TCP address. When the address has no
// port, an unused port is picked and assigned back into addr. Returns after
// confirming the server is responding with a test request.
func (s *Server) StartTCP(ctx context.Context, addr *net.TCPAddr) (status error) {
	if s.server != nil {
		return fmt.Errorf("server is already started")
	}

	l, err := net.Listen("tcp", addr.String())
	if err != nil {
		return err
	}
	defer func() {
		if status != nil {
			l.Close()
		}
	}()

	if addr.Port == 0 {
		laddr, ok := l.Addr().(*net.TCPAddr)
		if !ok {
			return fmt.Errorf("created listener addr is not *net.TCPAddr type")
		}
		addr.Port = laddr.Port
	}

	testPath := "/" + uuid.New().String()
	testHandler := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		log.Printf("%s: received test request from %q", addr, r.RemoteAddr)
	})
	s.AddHandler(testPath, testHandler)
	defer s.RemoveHandler(testPath)

	server := &http.Server{
		Handler: s,
		BaseContext: func(net.Listener) context.Context {
			return s.cg.Context()
		},
	}
	defer func() {
		if status != nil {
			server.Close()
		}
	}()

	s.cg.Go(func(ctx context.Context) {
		if err := server.Serve(l); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				slog.ErrorContext(ctx, "http server failed", "error", err)
			}
		}
	})

	c := http.Client{
		Timeout: s.opts.ServerCheckTimeout,
	}
	u := url.URL{
		Scheme: "http",
		Host:   l.Addr().String(),
		Path:   testPath,
	}

	tctx, tcancel := context.WithTimeout(ctx, s.opts.ServerCheckTimeout)
	defer tcancel()

	for tctx.Err() == nil {
		r, err := http.NewRequestWithContext(tctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		resp, err := c.Do(r)
		if err != nil {
			ctxutil.Sleep(tctx, s.opts.ServerCheckRetryInterval)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			ctxutil.Sleep(tctx, s.opts.ServerCheckRetryInterval)
			continue
		}
		break
	}
	if err := context.Cause(tctx); err != nil {
		return fmt.Errorf("could not invoke test handler: %w", err)
	}

	s.server = server
	return nil
}

func (s *Server) AddHandler(pattern string, handler http.Handler) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.handlerMap[pattern] = handler
	s.updateHandlerMux()
}

func (s *Server) RemoveHandler(pattern string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.handlerMap[pattern]; !ok {
		return false
	}
	delete(s.handlerMap, pattern)
	s.updateHandlerMux()
	return true
}

func (s *Server) updateHandlerMux() {
	m := http.NewServeMux()
	for k, v := range s.handlerMap {
		m.Handle(k, v)
	}
	s.mux.Store(m)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.Load().ServeHTTP(w, r)
}
