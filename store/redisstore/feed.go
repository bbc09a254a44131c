package redisstore

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/changefeed/store"
)

// Stream entry fields.
const (
	fieldID   = "id"
	fieldBody = "body"
)

func (s *Store) feedKey(coll store.Collection, partitionID string) string {
	return s.base(coll) + "feed:" + partitionID
}

// Append adds documents to a partition's change feed and returns the
// continuation after the last one.
//
// The first entry of a partition split from a parent is placed above the
// parent's last entry, so a child read from a parent continuation starts at
// the child's first entry.
func (s *Store) Append(ctx context.Context, coll store.Collection, partitionID string, docs ...store.Document) (string, error) {
	rec, err := s.readable(ctx, coll, partitionID)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", nil
	}

	first := ""
	if rec.Floor != "" {
		floor, err := parseStreamID(rec.Floor)
		if err != nil {
			return "", err
		}
		first = firstChildID(floor, s.now()).String()
	}

	args := make([]any, 0, 1+2*len(docs))
	args = append(args, first)
	for _, d := range docs {
		args = append(args, d.ID, d.Body)
	}

	last, err := appendScript.Run(ctx, s.rdb, []string{s.feedKey(coll, partitionID)}, args...).Text()
	if err != nil {
		return "", mapError("append", err)
	}

	return last, nil
}

// firstChildID returns the ID of a child partition's first entry: the
// current millisecond, or the entry right above floor if the clock has not
// moved past it.
func firstChildID(floor streamID, now time.Time) streamID {
	id := streamID{ms: uint64(now.UnixMilli())} //nolint:gosec
	if id.ms > floor.ms {
		return id
	}
	next, _ := parseStreamID(nextID(floor))

	return next
}

// ReadChanges implements store.Reader.
//
// Reads on a split partition fail with 410/Splitting, reads on a removed or
// unknown partition with 404/NotFound.
func (s *Store) ReadChanges(ctx context.Context, coll store.Collection, opts store.ChangeFeedOptions) (*store.ChangePage, error) {
	if err := s.checkReadable(ctx, coll, opts.PartitionID); err != nil {
		return nil, err
	}

	key := s.feedKey(coll, opts.PartitionID)
	after, err := s.startID(ctx, key, opts)
	if err != nil {
		return nil, err
	}

	limit := opts.MaxItemCount
	if limit <= 0 {
		limit = s.cfg.DefaultMaxItemCount
	}

	msgs, err := s.rdb.XRangeN(ctx, key, nextID(after), "+", int64(limit)+1).Result()
	if err != nil {
		return nil, mapError("read changes", err)
	}

	page := &store.ChangePage{Continuation: after.String()}
	if len(msgs) > limit {
		page.HasMoreResults = true
		msgs = msgs[:limit]
	}
	for _, m := range msgs {
		id, err := parseStreamID(m.ID)
		if err != nil {
			return nil, err
		}
		page.Documents = append(page.Documents, store.Document{
			ID:        stringValue(m.Values[fieldID]),
			ETag:      m.ID,
			Timestamp: time.UnixMilli(int64(id.ms)).UTC(), //nolint:gosec
			Body:      []byte(stringValue(m.Values[fieldBody])),
		})
		page.Continuation = m.ID
	}
	page.SessionToken = page.Continuation

	return page, nil
}

// startID returns the stream ID the read continues after.
func (s *Store) startID(ctx context.Context, key string, opts store.ChangeFeedOptions) (streamID, error) {
	switch {
	case opts.Continuation != "":
		return parseStreamID(opts.Continuation)
	case opts.StartFromBeginning:
		return streamID{}, nil
	case !opts.StartTime.IsZero():
		ms := opts.StartTime.UnixMilli()
		if ms <= 0 {
			return streamID{}, nil
		}

		return streamID{ms: uint64(ms) - 1, seq: math.MaxUint64}, nil //nolint:gosec
	}

	last, err := s.rdb.XRevRangeN(ctx, key, "+", "-", 1).Result()
	if err != nil {
		return streamID{}, mapError("read changes", err)
	}
	if len(last) == 0 {
		return streamID{}, nil
	}

	return parseStreamID(last[0].ID)
}

// streamID is a parsed Redis stream entry ID.
type streamID struct {
	ms  uint64
	seq uint64
}

func (id streamID) String() string {
	return strconv.FormatUint(id.ms, 10) + "-" + strconv.FormatUint(id.seq, 10)
}

func parseStreamID(s string) (streamID, error) {
	msPart, seqPart, ok := strings.Cut(s, "-")
	ms, err1 := strconv.ParseUint(msPart, 10, 64)
	seq, err2 := strconv.ParseUint(seqPart, 10, 64)
	if !ok || err1 != nil || err2 != nil {
		return streamID{}, store.NewError(store.StatusBadRequest, store.SubStatusNone, "invalid continuation %q", s)
	}

	return streamID{ms: ms, seq: seq}, nil
}

// nextID returns the smallest stream ID greater than id.
func nextID(id streamID) string {
	if id.seq == math.MaxUint64 {
		return streamID{ms: id.ms + 1}.String()
	}

	return streamID{ms: id.ms, seq: id.seq + 1}.String()
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(slices.Clone(t))
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
