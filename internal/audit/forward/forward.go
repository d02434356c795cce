// Package forward ships audit and login records to an external queue through a
// bounded worker pool. Records that do not fit in the queue are dropped.
package forward

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/employee-management/internal/core/events"
	"github.com/frahmantamala/employee-management/pkg/metrics"
)

type Job struct {
	EventID    string
	EventType  string
	OccurredAt time.Time
	Body       []byte
}

// Publisher delivers a single job to the external system.
type Publisher interface {
	Publish(ctx context.Context, job Job) error
	Close() error
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker forwarding record", "worker_id", w.ID, "event_id", job.EventID)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type Config struct {
	MaxWorkers     int
	JobQueueSize   int
	PublishTimeout time.Duration
}

type Forwarder struct {
	publisher      Publisher
	metrics        *metrics.Registry
	logger         *slog.Logger
	publishTimeout time.Duration

	jobQueue   chan Job
	workerPool chan chan Job
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewForwarder(cfg Config, publisher Publisher, m *metrics.Registry, logger *slog.Logger) *Forwarder {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	jobQueueSize := cfg.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 1000
	}
	publishTimeout := cfg.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}

	f := &Forwarder{
		publisher:      publisher,
		metrics:        m,
		logger:         logger,
		publishTimeout: publishTimeout,
		jobQueue:       make(chan Job, jobQueueSize),
		workerPool:     make(chan chan Job, maxWorkers),
		maxWorkers:     maxWorkers,
		ctx:            ctx,
		cancel:         cancel,
	}
	f.start()
	return f
}

func (f *Forwarder) start() {
	f.once.Do(func() {
		for i := 0; i < f.maxWorkers; i++ {
			NewWorker(i, f.workerPool, f.logger).Start(f.ctx, &f.wg, f.process)
		}

		f.wg.Add(1)
		go f.dispatch()

		f.logger.Info("audit forwarder started",
			"max_workers", f.maxWorkers,
			"queue_size", cap(f.jobQueue))
	})
}

func (f *Forwarder) dispatch() {
	defer f.wg.Done()
	for {
		select {
		case job := <-f.jobQueue:
			select {
			case jobChannel := <-f.workerPool:
				select {
				case jobChannel <- job:
				case <-f.ctx.Done():
					return
				}
			case <-f.ctx.Done():
				return
			}
		case <-f.ctx.Done():
			f.logger.Info("audit forwarder dispatcher shutting down")
			return
		}
	}
}

func (f *Forwarder) process(job Job) {
	ctx, cancel := context.WithTimeout(f.ctx, f.publishTimeout)
	defer cancel()

	if err := f.publisher.Publish(ctx, job); err != nil {
		f.logger.Error("failed to forward audit record",
			"event_id", job.EventID,
			"event_type", job.EventType,
			"error", err)
		return
	}
	f.logger.Debug("audit record forwarded", "event_id", job.EventID, "event_type", job.EventType)
}

type envelope struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// Enqueue serialises the event and hands it to the pool without blocking.
// It reports false when the record was dropped.
func (f *Forwarder) Enqueue(event events.Event) bool {
	body, err := json.Marshal(envelope{
		ID:         event.EventID(),
		Type:       event.EventType(),
		OccurredAt: event.OccurredAt().UTC(),
		Data:       event.Payload(),
	})
	if err != nil {
		f.logger.Error("failed to encode audit record", "event_id", event.EventID(), "error", err)
		return false
	}

	job := Job{
		EventID:    event.EventID(),
		EventType:  event.EventType(),
		OccurredAt: event.OccurredAt(),
		Body:       body,
	}

	select {
	case <-f.ctx.Done():
		return false
	default:
	}

	select {
	case f.jobQueue <- job:
		return true
	default:
		f.metrics.ForwardDropped()
		f.logger.Warn("audit forward queue full, dropping record",
			"event_id", job.EventID,
			"event_type", job.EventType)
		return false
	}
}

// Subscribe registers the forwarder for audit and login events.
func (f *Forwarder) Subscribe(bus *events.EventBus) {
	handler := func(_ context.Context, event events.Event) error {
		f.Enqueue(event)
		return nil
	}
	bus.Subscribe(events.EventTypeAuditRecorded, handler)
	bus.Subscribe(events.EventTypeLoginRecorded, handler)
}

func (f *Forwarder) Shutdown() {
	f.logger.Info("shutting down audit forwarder")
	f.cancel()
	f.wg.Wait()
	if err := f.publisher.Close(); err != nil {
		f.logger.Warn("failed to close audit publisher", "error", err)
	}
	f.logger.Info("audit forwarder shutdown complete")
}
