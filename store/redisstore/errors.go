package redisstore

import (
	"context"
	"errors"
	"net"

	goredis "github.com/redis/go-redis/v9"

	"github.com/arloliu/changefeed/store"
)

// mapError converts a go-redis error into a store fault.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return store.Canceled(err, op)
	case errors.Is(err, goredis.Nil):
		return store.WrapError(store.StatusNotFound, store.SubStatusNotFound, err, "%s", op)
	case errors.Is(err, goredis.ErrClosed), errors.As(err, &netErr):
		return store.WrapError(store.StatusServiceUnavailable, store.SubStatusNone, err, "%s", op)
	case errors.Is(err, goredis.TxFailedErr):
		return store.WrapError(store.StatusPreconditionFailed, store.SubStatusNone, err, "%s", op)
	default:
		return store.WrapError(store.StatusInternalError, store.SubStatusNone, err, "%s", op)
	}
}

// scriptStatus maps the negative status codes returned by the document scripts.
func scriptStatus(op, id string, code int64) error {
	switch code {
	case -store.StatusNotFound:
		return store.NewError(store.StatusNotFound, store.SubStatusNotFound, "%s %s: not found", op, id)
	case -store.StatusConflict:
		return store.NewError(store.StatusConflict, store.SubStatusNone, "%s %s: already exists", op, id)
	case -store.StatusPreconditionFailed:
		return store.NewError(store.StatusPreconditionFailed, store.SubStatusNone, "%s %s: etag mismatch", op, id)
	default:
		return store.NewError(store.StatusInternalError, store.SubStatusNone, "%s %s: unexpected script result %d", op, id, code)
	}
}
