package main

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/arloliu/changefeed/processor"
	"github.com/arloliu/changefeed/store"
)

// changeLine is one printed change.
type changeLine struct {
	Partition string          `json:"partition"`
	ID        string          `json:"id"`
	ETag      string          `json:"etag"`
	Timestamp time.Time       `json:"timestamp"`
	Body      json.RawMessage `json:"body,omitempty"`
	Raw       string          `json:"raw,omitempty"`
}

// printHandler writes every change as a JSON line and checkpoints each batch.
type printHandler struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newPrintHandler(w io.Writer) *printHandler {
	return &printHandler{enc: json.NewEncoder(w)}
}

func (h *printHandler) HandleChanges(ctx context.Context, cc *processor.ChangeContext, docs []store.Document) error {
	h.mu.Lock()
	for _, d := range docs {
		line := changeLine{Partition: cc.PartitionID, ID: d.ID, ETag: d.ETag, Timestamp: d.Timestamp}
		if json.Valid(d.Body) {
			line.Body = d.Body
		} else {
			line.Raw = string(d.Body)
		}
		if err := h.enc.Encode(line); err != nil {
			h.mu.Unlock()
			return err
		}
	}
	h.mu.Unlock()

	return cc.Checkpoint(ctx)
}
