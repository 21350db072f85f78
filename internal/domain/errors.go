package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrNoTick        = errors.New("no current tick")
	ErrUnavailable   = errors.New("data unavailable")
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrSessionDown   = errors.New("broker session unavailable")
)
