//go:build !linux

package server

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("the limbo event loop requires Linux epoll")

type reactor struct{}

func (s *Server) Listen() error {
	return errUnsupported
}

func (s *Server) Serve(ctx context.Context) error {
	return errUnsupported
}
