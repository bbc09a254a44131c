package natsstore

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/changefeed/internal/kvutil"
	"github.com/arloliu/changefeed/store"
)

// headerDocumentID carries the document ID of a feed message.
const headerDocumentID = "Changefeed-Document-Id"

func subject(coll store.Collection, partitionID string) string {
	return "feed." + sanitize(coll.Database) + "." + sanitize(coll.Collection) + "." + partitionID
}

func (s *Store) feed(ctx context.Context, coll store.Collection) (jetstream.Stream, error) {
	if st, ok := s.streams.Load(coll); ok {
		return st, nil
	}

	st, err := kvutil.EnsureStreamWithRetry(ctx, s.js, jetstream.StreamConfig{
		Name:     s.cfg.BucketPrefix + "_FEED_" + name(coll),
		Subjects: []string{"feed." + sanitize(coll.Database) + "." + sanitize(coll.Collection) + ".>"},
		Storage:  s.cfg.Storage,
		Replicas: s.cfg.Replicas,
		MaxAge:   s.cfg.FeedMaxAge,
	}, s.cfg.BootstrapRetries)
	if err != nil {
		return nil, mapError("open feed", err)
	}
	st, _ = s.streams.LoadOrStore(coll, st)

	return st, nil
}

// Append publishes documents to a partition's change feed and returns the
// continuation after the last one.
func (s *Store) Append(ctx context.Context, coll store.Collection, partitionID string, docs ...store.Document) (string, error) {
	if err := s.checkReadable(ctx, coll, partitionID); err != nil {
		return "", err
	}
	if _, err := s.feed(ctx, coll); err != nil {
		return "", err
	}

	var cont string
	for _, d := range docs {
		msg := nats.NewMsg(subject(coll, partitionID))
		msg.Header.Set(headerDocumentID, d.ID)
		msg.Data = d.Body

		ack, err := s.js.PublishMsg(ctx, msg)
		if err != nil {
			return "", mapError("append", err)
		}
		cont = strconv.FormatUint(ack.Sequence, 10)
	}

	return cont, nil
}

// ReadChanges implements store.Reader.
//
// Reads on a split partition fail with 410/Splitting, reads on a removed or
// unknown partition with 404/NotFound.
func (s *Store) ReadChanges(ctx context.Context, coll store.Collection, opts store.ChangeFeedOptions) (*store.ChangePage, error) {
	if err := s.checkReadable(ctx, coll, opts.PartitionID); err != nil {
		return nil, err
	}

	st, err := s.feed(ctx, coll)
	if err != nil {
		return nil, err
	}

	after, err := s.startSeq(ctx, st, opts)
	if err != nil {
		return nil, err
	}

	limit := opts.MaxItemCount
	if limit <= 0 {
		limit = s.cfg.DefaultMaxItemCount
	}

	subj := subject(coll, opts.PartitionID)
	page := &store.ChangePage{Continuation: strconv.FormatUint(after, 10)}
	next := after + 1
	for {
		msg, err := st.GetMsg(ctx, next, jetstream.WithGetMsgSubject(subj))
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			break
		}
		if err != nil {
			return nil, mapError("read changes", err)
		}

		if len(page.Documents) == limit {
			page.HasMoreResults = true
			break
		}
		page.Documents = append(page.Documents, store.Document{
			ID:        msg.Header.Get(headerDocumentID),
			ETag:      strconv.FormatUint(msg.Sequence, 10),
			Timestamp: msg.Time,
			Body:      slices.Clone(msg.Data),
		})
		page.Continuation = strconv.FormatUint(msg.Sequence, 10)
		next = msg.Sequence + 1
	}
	page.SessionToken = page.Continuation

	return page, nil
}

// startSeq returns the sequence the read continues after.
func (s *Store) startSeq(ctx context.Context, st jetstream.Stream, opts store.ChangeFeedOptions) (uint64, error) {
	switch {
	case opts.Continuation != "":
		seq, err := strconv.ParseUint(opts.Continuation, 10, 64)
		if err != nil {
			return 0, store.NewError(store.StatusBadRequest, store.SubStatusNone, "invalid continuation %q", opts.Continuation)
		}

		return seq, nil
	case opts.StartFromBeginning:
		return 0, nil
	}

	info, err := st.Info(ctx)
	if err != nil {
		return 0, mapError("stream info", err)
	}
	if opts.StartTime.IsZero() {
		return info.State.LastSeq, nil
	}

	return s.seqAtTime(ctx, st, info.State.FirstSeq, info.State.LastSeq, opts.StartTime)
}

// seqAtTime binary-searches [first, last] for the first message stored at or
// after t and returns the sequence before it.
func (s *Store) seqAtTime(ctx context.Context, st jetstream.Stream, first, last uint64, t time.Time) (uint64, error) {
	if last == 0 || first > last {
		return last, nil
	}

	lo, hi := first, last+1
	for lo < hi {
		mid := lo + (hi-lo)/2

		msg, err := st.GetMsg(ctx, mid)
		if err != nil && !errors.Is(err, jetstream.ErrMsgNotFound) {
			return 0, mapError("stream seek", err)
		}
		if err != nil || msg.Time.Before(t) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	return lo - 1, nil
}
