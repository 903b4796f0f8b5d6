package worker

import "errors"

var (
	ErrIllegalMove = errors.New("worker rejected move as illegal") // 400, 422
	ErrUnavailable = errors.New("worker unavailable")              // timeout, transport, 5xx
	ErrRejected    = errors.New("worker rejected request")         // other 4xx, malformed reply
)
