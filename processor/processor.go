package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/changefeed/classify"
	"github.com/arloliu/changefeed/internal/logger"
	"github.com/arloliu/changefeed/internal/metrics"
	"github.com/arloliu/changefeed/store"
	"github.com/arloliu/changefeed/types"
)

// Option configures optional Processor dependencies.
type Option func(*processorOptions)

type processorOptions struct {
	logger     types.Logger
	metrics    types.ProcessorMetrics
	classifier classify.Classifier
}

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(o *processorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the processor metrics sink.
func WithMetrics(m types.ProcessorMetrics) Option {
	return func(o *processorOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClassifier overrides the fault classifier (default classify.Default).
func WithClassifier(c classify.Classifier) Option {
	return func(o *processorOptions) {
		o.classifier = c
	}
}

// Processor runs the change-feed loop for one partition.
type Processor struct {
	settings     Settings
	reader       store.Reader
	handler      ChangeHandler
	checkpointer Checkpointer
	logger       types.Logger
	metrics      types.ProcessorMetrics
	classifier   classify.Classifier

	// wait pauses for d and reports false if ctx ended first.
	wait func(ctx context.Context, d time.Duration) bool
}

// cursor is the loop-owned request state.
type cursor struct {
	continuation string
	session      string
	maxItems     int
	dispatch     *dispatchState
}

// New creates a Processor.
//
// Parameters:
//   - settings: Partition loop settings (partition and collection are required)
//   - reader: Store change-feed reader
//   - handler: Change handler receiving batches
//   - checkpointer: Persists continuations into the partition's lease
//   - opts: Optional logger, metrics and classifier
//
// Returns:
//   - *Processor: The loop, ready to Run
//   - error: ErrInvalidConfig if settings are invalid or a dependency is nil
func New(settings Settings, reader store.Reader, handler ChangeHandler, checkpointer Checkpointer, opts ...Option) (*Processor, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if reader == nil {
		return nil, types.ErrStoreClientRequired
	}
	if handler == nil {
		return nil, types.ErrHandlerRequired
	}
	if checkpointer == nil {
		return nil, fmt.Errorf("%w: checkpointer is required", types.ErrInvalidConfig)
	}

	o := processorOptions{
		logger:     logger.NewNop(),
		metrics:    metrics.NewNop(),
		classifier: classify.Default,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Processor{
		settings:     settings.withDefaults(),
		reader:       reader,
		handler:      handler,
		checkpointer: checkpointer,
		logger:       o.logger,
		metrics:      o.metrics,
		classifier:   o.classifier,
		wait:         sleep,
	}, nil
}

// Run processes the partition until ctx is canceled or the loop terminates.
//
// Returns:
//   - nil: ctx was canceled (graceful shutdown)
//   - *TerminatedError: partition not found, partition split, lease lost or handler failure
//   - any other error: an unclassified store fault, returned unmodified
//
// Store calls observe ctx. A store call whose transport ignores cancellation
// cannot block Run past ctx's end: each read runs in its own goroutine and
// Run stops waiting for it when ctx is done. Such an abandoned read keeps its
// goroutine until the transport returns and its result is discarded.
func (p *Processor) Run(ctx context.Context) error {
	cur := &cursor{
		continuation: p.settings.Continuation,
		session:      p.settings.SessionToken,
		maxItems:     p.settings.MaxItemCount,
		dispatch:     &dispatchState{},
	}
	start := p.settings.Continuation
	cur.dispatch.checkpointed.Store(&start)

	p.logger.Info("processor started", "partition_id", p.settings.PartitionID, "continuation", cur.continuation)
	p.metrics.RecordMaxItemCount(p.settings.PartitionID, cur.maxItems)

	err := p.loop(ctx, cur)

	reason := ReasonOf(err)
	p.metrics.RecordProcessorExit(p.settings.PartitionID, string(reason))
	p.logger.Info("processor stopped", "partition_id", p.settings.PartitionID,
		"reason", string(reason), "continuation", cur.continuation)

	return err
}

func (p *Processor) loop(ctx context.Context, cur *cursor) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		delay, err := p.poll(ctx, cur)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		if !p.wait(ctx, delay) {
			return nil
		}
	}
}

// poll drains the partition: it reads pages until the store reports no more
// results, then returns the delay before the next cycle. A store fault ends
// the cycle early with either a retry delay or a terminal error.
func (p *Processor) poll(ctx context.Context, cur *cursor) (time.Duration, error) {
	for {
		page, err := p.read(ctx, cur)
		if err != nil {
			return p.handleFault(ctx, cur, err)
		}

		if len(page.Documents) > 0 {
			if err := p.dispatch(ctx, cur, page); err != nil {
				return 0, err
			}
			if ctx.Err() != nil {
				return 0, nil
			}
		}
		if page.Continuation != "" {
			cur.continuation = page.Continuation
		}
		if page.SessionToken != "" {
			cur.session = page.SessionToken
		}

		if !page.HasMoreResults || ctx.Err() != nil {
			break
		}
	}

	if cur.maxItems != p.settings.MaxItemCount {
		p.logger.Debug("restoring max item count", "partition_id", p.settings.PartitionID,
			"from", cur.maxItems, "to", p.settings.MaxItemCount)
		cur.maxItems = p.settings.MaxItemCount
		p.metrics.RecordMaxItemCount(p.settings.PartitionID, cur.maxItems)
	}

	return p.settings.FeedPollDelay, nil
}

type readResult struct {
	page *store.ChangePage
	err  error
}

func (p *Processor) read(ctx context.Context, cur *cursor) (*store.ChangePage, error) {
	opts := store.ChangeFeedOptions{
		PartitionID:  p.settings.PartitionID,
		Continuation: cur.continuation,
		MaxItemCount: cur.maxItems,
		SessionToken: cur.session,
	}
	if cur.continuation == "" {
		opts.StartFromBeginning = p.settings.StartFromBeginning
		opts.StartTime = p.settings.StartTime
	}

	done := make(chan readResult, 1)
	go func() {
		page, err := p.reader.ReadChanges(ctx, p.settings.Collection, opts)
		done <- readResult{page: page, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil && r.page == nil {
			r.page = &store.ChangePage{}
		}

		return r.page, r.err
	case <-ctx.Done():
		return nil, store.Canceled(ctx.Err(), "read changes")
	}
}

func (p *Processor) dispatch(ctx context.Context, cur *cursor, page *store.ChangePage) error {
	cont := page.Continuation
	if cont == "" {
		cont = cur.continuation
	}

	cc := &ChangeContext{
		PartitionID:  p.settings.PartitionID,
		Continuation: cont,
		checkpointer: p.checkpointer,
		state:        cur.dispatch,
	}

	started := time.Now()
	err := p.handler.HandleChanges(ctx, cc, page.Documents)
	p.metrics.RecordBatch(p.settings.PartitionID, len(page.Documents), time.Since(started).Seconds())

	if cur.dispatch.leaseLost.Load() || errors.Is(err, types.ErrLeaseLost) {
		if err == nil {
			err = types.ErrLeaseLost
		}

		return p.terminate(ReasonLeaseLost, cur, err)
	}
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			p.logger.Debug("handler interrupted by shutdown", "partition_id", p.settings.PartitionID)
			return nil
		}

		return p.terminate(ReasonHandlerError, cur, err)
	}

	return nil
}

func (p *Processor) handleFault(ctx context.Context, cur *cursor, err error) (time.Duration, error) {
	partitionID := p.settings.PartitionID

	if store.IsOperationCanceled(err) || errors.Is(err, context.Canceled) {
		if ctx.Err() != nil {
			return 0, nil
		}
		p.logger.Warn("store operation canceled, retrying", "partition_id", partitionID, "error", err)
		p.metrics.RecordPollError(partitionID, "canceled")

		return p.settings.FeedPollDelay, nil
	}

	category := p.classifier.Classify(err)
	p.metrics.RecordPollError(partitionID, category.String())

	switch category {
	case classify.PartitionNotFound:
		return 0, p.terminate(ReasonPartitionNotFound, cur, err)

	case classify.PartitionSplit:
		return 0, p.terminate(ReasonPartitionSplit, cur, err)

	case classify.RequestTooLarge:
		switch {
		case cur.maxItems == 0:
			cur.maxItems = DefaultMaxItemCount
		case cur.maxItems <= 1:
			p.logger.Error("request too large at minimum max item count", "partition_id", partitionID,
				"max_item_count", cur.maxItems, "error", err)

			return 0, err
		default:
			cur.maxItems /= 2
		}
		p.logger.Warn("request too large, reducing max item count", "partition_id", partitionID,
			"max_item_count", cur.maxItems)
		p.metrics.RecordMaxItemCount(partitionID, cur.maxItems)

		return p.settings.FeedPollDelay, nil

	case classify.TransientError:
		delay := classify.RetryAfter(err)
		if delay <= 0 {
			delay = p.settings.FeedPollDelay
		}
		p.logger.Debug("transient store fault, retrying", "partition_id", partitionID,
			"delay", delay, "error", err)

		return delay, nil

	default:
		p.logger.Error("unclassified store fault", "partition_id", partitionID, "error", err)
		return 0, err
	}
}

func (p *Processor) terminate(reason Reason, cur *cursor, err error) error {
	checkpointed := ""
	if c := cur.dispatch.checkpointed.Load(); c != nil {
		checkpointed = *c
	}

	return &TerminatedError{
		Reason:       reason,
		PartitionID:  p.settings.PartitionID,
		Continuation: cur.continuation,
		Checkpointed: checkpointed,
		Err:          err,
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
