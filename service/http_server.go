package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// httpServer binds its listener before serving so that callers learn about
// port conflicts synchronously and can read back the bound address.
type httpServer struct {
	handler  http.Handler
	server   *http.Server
	listener net.Listener
}

func (s *httpServer) Listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = l
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Serve blocks until the server is shut down
func (s *httpServer) Serve() error {
	if s.server == nil {
		return errors.New("server is not listening")
	}
	return s.server.Serve(s.listener)
}

// Addr returns the bound address, or "" before Listen
func (s *httpServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server and releases the listener
func (s *httpServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	// http.Server only tracks listeners passed to Serve
	if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
		err = cerr
	}
	return err
}
