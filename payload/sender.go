package payload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	delivery "github.com/JohnPlummer/jp-go-delivery"
)

// State is the activity state of a Sender.
type State int

const (
	// StateIdle means no send is in flight and sending is allowed.
	StateIdle State = iota

	// StateSending means one payload send is in flight.
	StateSending

	// StatePaused means sending is paused and nothing is in flight.
	StatePaused

	// StateDraining means sending is paused while a send started earlier is
	// still in flight.
	StateDraining
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StatePaused:
		return "paused"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Reasons an advance attempt did not start a send.
var (
	ErrNoService   = errors.New("payload service not attached")
	ErrPaused      = errors.New("payload sender is paused")
	ErrSendPending = errors.New("another payload is being sent")
	ErrQueueEmpty  = errors.New("payload queue is empty")
)

// ErrServicePanicked is the cause reported when a Service panics while
// starting a send. The payload stays queued.
var ErrServicePanicked = errors.New("payload service panicked")

// SenderConfig holds Sender configuration.
type SenderConfig struct {
	// Queue runs every state transition of the sender. Completion callbacks
	// from the service are dispatched onto it as well.
	// Default: a SerialQueue owned by the sender
	Queue delivery.ExecutionQueue

	// IsPermanent decides whether a failed payload is deleted (true) or kept
	// at the head of the queue for a later attempt (false).
	// Default: IsRejected
	IsPermanent func(err error) bool

	// Metrics records sender outcomes. Nil disables metrics.
	Metrics *SenderMetrics

	// Logger for sender operations.
	// Default: slog.Default()
	Logger *slog.Logger

	// StoreTimeout bounds each queue operation. Zero means no bound.
	StoreTimeout time.Duration
}

// SenderOption is a functional option for configuring a Sender.
type SenderOption func(*SenderConfig)

// WithSenderQueue sets the execution queue owning the sender's state.
func WithSenderQueue(queue delivery.ExecutionQueue) SenderOption {
	return func(c *SenderConfig) {
		c.Queue = queue
	}
}

// WithPermanentFailure replaces the rule deciding which failures delete a payload.
func WithPermanentFailure(fn func(err error) bool) SenderOption {
	return func(c *SenderConfig) {
		c.IsPermanent = fn
	}
}

// WithSenderMetrics enables sender metrics.
func WithSenderMetrics(metrics *SenderMetrics) SenderOption {
	return func(c *SenderConfig) {
		c.Metrics = metrics
	}
}

// WithSenderLogger sets the sender logger.
func WithSenderLogger(logger *slog.Logger) SenderOption {
	return func(c *SenderConfig) {
		c.Logger = logger
	}
}

// WithStoreTimeout bounds each queue operation.
func WithStoreTimeout(timeout time.Duration) SenderOption {
	return func(c *SenderConfig) {
		c.StoreTimeout = timeout
	}
}

// Sender delivers queued payloads one at a time in FIFO order.
//
// At most one send is in flight. A successful or permanently failed payload
// is deleted and the next one is sent right away. Any other failure leaves
// the payload at the head of the queue and stops the sender until Trigger,
// Resume or SetService asks for another attempt.
type Sender struct {
	store       Queue
	callback    func(Result)
	exec        delivery.ExecutionQueue
	ownedExec   *delivery.SerialQueue
	isPermanent func(err error) bool
	metrics     *SenderMetrics
	logger      *slog.Logger
	timeout     time.Duration

	mu      sync.Mutex
	state   State
	service Service
}

// NewSender creates a sender draining store. callback receives the outcome
// of every payload send; failures are always *SendError values.
func NewSender(store Queue, callback func(Result), opts ...SenderOption) *Sender {
	config := &SenderConfig{
		IsPermanent: IsRejected,
		Logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.IsPermanent == nil {
		config.IsPermanent = IsRejected
	}
	if callback == nil {
		callback = func(Result) {}
	}

	s := &Sender{
		store:       store,
		callback:    callback,
		exec:        config.Queue,
		isPermanent: config.IsPermanent,
		metrics:     config.Metrics,
		logger:      config.Logger,
		timeout:     config.StoreTimeout,
		state:       StateIdle,
	}
	if s.exec == nil {
		s.ownedExec = delivery.NewSerialQueue("payloads", config.Logger)
		s.exec = s.ownedExec
	}
	return s
}

// Close stops the sender's execution queue if the sender created it.
func (s *Sender) Close() {
	if s.ownedExec != nil {
		s.ownedExec.Stop()
	}
}

// Submit converts p to a record, appends it to the queue and attempts to
// send. A payload that cannot be converted is logged, dropped and its error
// returned; it never reaches the queue. A record the queue refuses is
// reported to the callback as a *SendError.
func (s *Sender) Submit(p Payload) error {
	record, err := p.ToRecord()
	if err == nil && record == nil {
		err = ErrEmptyRecord
	}
	if err != nil {
		s.logger.Error("exception while creating payload record", "error", err)
		s.metrics.recordDropped()
		return err
	}

	s.exec.Dispatch(func() {
		ctx, cancel := s.storeContext()
		defer cancel()

		if err := s.store.Enqueue(ctx, record); err != nil {
			s.logger.Error("unable to enqueue payload",
				"payload", record.String(),
				"error", err)
			s.metrics.recordDropped()
			s.notify(Result{Record: record, Err: wrapSendError(record, err)})
			return
		}
		s.metrics.recordEnqueued()
		s.sendNextUnsent()
	})
	return nil
}

// Pause stops new sends from starting. A send already in flight completes.
func (s *Sender) Pause() {
	s.exec.Dispatch(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch s.state {
		case StateIdle:
			s.state = StatePaused
		case StateSending:
			s.state = StateDraining
		}
	})
}

// Resume re-enables sending. Resuming a paused sender makes one send
// attempt; resuming an active sender does nothing.
func (s *Sender) Resume() {
	s.exec.Dispatch(func() {
		s.mu.Lock()
		prev := s.state
		switch prev {
		case StatePaused:
			s.state = StateIdle
		case StateDraining:
			s.state = StateSending
		}
		s.mu.Unlock()

		if prev == StatePaused {
			s.sendNextUnsent()
		}
	})
}

// SetService attaches the service used to send payloads and attempts to send.
func (s *Sender) SetService(service Service) {
	s.exec.Dispatch(func() {
		s.mu.Lock()
		s.service = service
		s.mu.Unlock()
		s.sendNextUnsent()
	})
}

// Trigger makes one send attempt, e.g. after connectivity is restored.
func (s *Sender) Trigger() {
	s.exec.Dispatch(s.sendNextUnsent)
}

// HasService reports whether a service is attached.
func (s *Sender) HasService() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.service != nil
}

// State returns the current sender state.
func (s *Sender) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// sendNextUnsent starts sending the oldest record unless one of the skip
// conditions applies. It must run on the sender's queue.
func (s *Sender) sendNextUnsent() {
	service, err := s.checkReady()
	if err != nil {
		s.skip(err)
		return
	}

	ctx, cancel := s.storeContext()
	record, err := s.store.PeekOldest(ctx)
	cancel()
	if err != nil {
		s.logger.Error("unable to read payload queue", "error", err)
		return
	}
	if record == nil {
		s.skip(ErrQueueEmpty)
		return
	}

	s.mu.Lock()
	s.state = StateSending
	s.mu.Unlock()

	s.logger.Debug("start sending payload", "payload", record.String())
	s.metrics.recordStarted()

	var once sync.Once
	err = startSend(service, record, func(result Result) {
		fired := false
		once.Do(func() { fired = true })
		if !fired {
			panic(delivery.ErrAlreadyResolved)
		}
		s.exec.Dispatch(func() {
			s.handleResult(record, result.Err)
		})
	})
	if err == nil {
		return
	}

	s.logger.Error("payload service panicked", "payload", record.String(), "error", err)
	fired := false
	once.Do(func() { fired = true })
	if fired {
		s.handleResult(record, err)
	}
}

// startSend hands record to service, turning a panic into an error. A second
// completion is a caller bug and keeps panicking.
func startSend(service Service, record *Record, onComplete func(Result)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if r == delivery.ErrAlreadyResolved {
				panic(r)
			}
			err = fmt.Errorf("%w: %v", ErrServicePanicked, r)
		}
	}()
	service.SendPayload(record, onComplete)
	return nil
}

func (s *Sender) checkReady() (Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.service == nil:
		return nil, ErrNoService
	case s.state == StatePaused || s.state == StateDraining:
		return nil, ErrPaused
	case s.state == StateSending:
		return nil, ErrSendPending
	}
	return s.service, nil
}

func (s *Sender) skip(reason error) {
	s.logger.Debug("unable to send payload", "reason", reason)
	s.metrics.recordSkipped(reason)
}

func (s *Sender) handleResult(record *Record, err error) {
	s.mu.Lock()
	if s.state == StateDraining {
		s.state = StatePaused
	} else {
		s.state = StateIdle
	}
	s.mu.Unlock()

	s.logger.Debug("payload send finished", "payload", record.String(), "error", err)

	if err == nil {
		deleted := s.delete(record)
		s.metrics.recordSent()
		s.notify(Result{Record: record})
		if deleted {
			s.sendNextUnsent()
		}
		return
	}

	if s.isPermanent(err) {
		s.logger.Warn("payload permanently failed, deleting",
			"payload", record.String(),
			"error", err)
		deleted := s.delete(record)
		s.metrics.recordFailed(true)
		s.notify(Result{Record: record, Err: wrapSendError(record, err)})
		if deleted {
			s.sendNextUnsent()
		}
		return
	}

	s.logger.Warn("payload send failed, keeping it for a later attempt",
		"payload", record.String(),
		"error", err)
	s.metrics.recordFailed(false)
	s.notify(Result{Record: record, Err: wrapSendError(record, err)})
}

// delete removes record and reports whether the queue may advance. A record
// that could not be deleted would be sent again by the next advance, so the
// sender stops until an external trigger instead.
func (s *Sender) delete(record *Record) bool {
	ctx, cancel := s.storeContext()
	defer cancel()
	if err := s.store.Delete(ctx, record); err != nil {
		s.logger.Error("unable to delete payload",
			"payload", record.String(),
			"error", err)
		return false
	}
	return true
}

func (s *Sender) notify(result Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("payload callback panicked",
				"payload", result.Record.String(),
				"panic", r)
		}
	}()
	s.callback(result)
}

func (s *Sender) storeContext() (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(context.Background(), s.timeout)
	}
	return context.WithCancel(context.Background())
}

func wrapSendError(record *Record, err error) error {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return err
	}
	return &SendError{Record: record, Cause: err}
}
