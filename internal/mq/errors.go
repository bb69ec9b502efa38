package mq

import "errors"

var (
	// ErrNoChannel — соединение не открыто или в процессе reconnect.
	ErrNoChannel = errors.New("no channel available")

	// ErrRejected — сообщение отвергнуто окончательно (уходит в DLQ без retry).
	ErrRejected = errors.New("message rejected")
)
