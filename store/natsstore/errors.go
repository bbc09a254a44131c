package natsstore

import (
	"errors"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/changefeed/internal/natsutil"
	"github.com/arloliu/changefeed/store"
)

// mapError converts a NATS client error into a store fault.
//
// A failed revision check maps to 412; CreateDocument turns it into 409 itself
// since kv.Create reports an existing key the same way.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case natsutil.IsCanceled(err):
		return store.Canceled(err, op)
	case errors.Is(err, jetstream.ErrKeyNotFound), errors.Is(err, jetstream.ErrMsgNotFound):
		return store.WrapError(store.StatusNotFound, store.SubStatusNotFound, err, "%s", op)
	case natsutil.IsWrongRevision(err):
		return store.WrapError(store.StatusPreconditionFailed, store.SubStatusNone, err, "%s", op)
	case errors.Is(err, jetstream.ErrInvalidKey):
		return store.WrapError(store.StatusBadRequest, store.SubStatusNone, err, "%s", op)
	case natsutil.IsConnectivityError(err):
		return store.WrapError(store.StatusServiceUnavailable, store.SubStatusNone, err, "%s", op)
	}

	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return store.WrapError(store.StatusTooManyRequests, store.SubStatusNone, err, "%s", op)
		case apiErr.Code >= http.StatusInternalServerError:
			return store.WrapError(store.StatusServiceUnavailable, store.SubStatusNone, err, "%s", op)
		case apiErr.Code == http.StatusBadRequest:
			return store.WrapError(store.StatusBadRequest, store.SubStatusNone, err, "%s", op)
		}
	}

	return store.WrapError(store.StatusInternalError, store.SubStatusNone, err, "%s", op)
}
