package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/maxpert/mirrordb/cfg"
	"github.com/maxpert/mirrordb/telemetry"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultTopic is used by sinks that configure no topic
	DefaultTopic = "mirrordb.membership"

	DefaultRetryInitial    = 100 * time.Millisecond
	DefaultRetryMax        = 5 * time.Second
	DefaultRetryMultiplier = 2.0
	DefaultMaxRetries      = 5
)

// WorkerConfig configures delivery of hub events to one sink
type WorkerConfig struct {
	Name            string
	Topic           string
	Sink            Sink
	Filter          *Filter
	RetryInitial    time.Duration
	RetryMax        time.Duration
	RetryMultiplier float64
	MaxRetries      int
}

// Worker drains its own hub subscription into one sink, so a slow sink
// never holds back the others
type Worker struct {
	config WorkerConfig
	events <-chan Event
	cancel func()
	stopCh chan struct{}
	doneCh chan struct{}
}

func newWorker(hub *Hub, config WorkerConfig) (*Worker, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("worker name is required")
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if config.Filter == nil {
		config.Filter = &Filter{}
	}
	if config.Topic == "" {
		config.Topic = DefaultTopic
	}
	if config.RetryInitial <= 0 {
		config.RetryInitial = DefaultRetryInitial
	}
	if config.RetryMax <= 0 {
		config.RetryMax = DefaultRetryMax
	}
	if config.RetryMultiplier <= 0 {
		config.RetryMultiplier = DefaultRetryMultiplier
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}

	events, cancel := hub.Subscribe()
	return &Worker{
		config: config,
		events: events,
		cancel: cancel,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

func (w *Worker) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case e, ok := <-w.events:
			if !ok {
				return
			}
			w.deliver(e)
		}
	}
}

func (w *Worker) deliver(e Event) {
	if !w.config.Filter.Match(e.Database) {
		telemetry.EventsPublishedTotal.With(w.config.Name, "filtered").Inc()
		return
	}

	value, err := e.Encode()
	if err != nil {
		log.Error().Err(err).Str("sink", w.config.Name).Msg("Failed to encode membership event")
		telemetry.EventsPublishedTotal.With(w.config.Name, "failed").Inc()
		return
	}

	delay := w.config.RetryInitial
	for attempt := 1; ; attempt++ {
		err = w.config.Sink.Publish(w.config.Topic, e.Key(), value)
		if err == nil {
			telemetry.EventsPublishedTotal.With(w.config.Name, "success").Inc()
			return
		}
		if attempt >= w.config.MaxRetries {
			break
		}

		log.Warn().
			Err(err).
			Str("sink", w.config.Name).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("Failed to publish membership event, retrying")

		select {
		case <-w.stopCh:
			telemetry.EventsPublishedTotal.With(w.config.Name, "failed").Inc()
			return
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * w.config.RetryMultiplier)
		if delay > w.config.RetryMax {
			delay = w.config.RetryMax
		}
	}

	log.Error().
		Err(err).
		Str("sink", w.config.Name).
		Str("cluster", e.Cluster).
		Str("database", e.Database).
		Str("type", string(e.Type)).
		Msg("Dropping membership event after retries")
	telemetry.EventsPublishedTotal.With(w.config.Name, "failed").Inc()
}

// stop waits for the event being delivered, then closes the sink
func (w *Worker) stop() {
	close(w.stopCh)
	w.cancel()
	<-w.doneCh
	if err := w.config.Sink.Close(); err != nil {
		log.Warn().Err(err).Str("sink", w.config.Name).Msg("Failed to close sink")
	}
}

// Publisher owns one Worker per configured sink
type Publisher struct {
	hub     *Hub
	workers []*Worker
	mu      sync.Mutex
	running bool
}

// NewPublisher creates sinks for configs. Nothing is delivered until Start.
func NewPublisher(hub *Hub, configs []cfg.SinkConfiguration) (*Publisher, error) {
	p := &Publisher{hub: hub}
	for _, c := range configs {
		if err := p.AddSink(c); err != nil {
			p.closeSinks()
			return nil, fmt.Errorf("failed to add sink %q: %w", c.Name, err)
		}
	}
	return p, nil
}

// AddSink creates the sink described by config and a worker for it
func (p *Publisher) AddSink(config cfg.SinkConfiguration) error {
	filter, err := NewFilter(config.Databases)
	if err != nil {
		return err
	}

	snk, err := createSink(config)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}

	if err := p.AddWorker(WorkerConfig{
		Name:   config.Name,
		Topic:  config.Topic,
		Sink:   snk,
		Filter: filter,
	}); err != nil {
		snk.Close()
		return err
	}
	return nil
}

// AddWorker registers a worker for an already constructed sink. A worker
// added after Start starts immediately.
func (p *Publisher) AddWorker(config WorkerConfig) error {
	w, err := newWorker(p.hub, config)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.workers = append(p.workers, w)
	if p.running {
		go w.run()
	}
	return nil
}

func (p *Publisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

func (p *Publisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	for _, w := range p.workers {
		go w.run()
	}
	log.Info().Int("sinks", len(p.workers)).Msg("Membership event publisher started")
}

// Stop stops every worker and closes its sink. A stopped Publisher
// cannot be restarted.
func (p *Publisher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		p.closeSinksLocked()
		return
	}
	p.running = false
	for _, w := range p.workers {
		w.stop()
	}
	p.workers = nil
	log.Info().Msg("Membership event publisher stopped")
}

func (p *Publisher) closeSinks() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeSinksLocked()
}

func (p *Publisher) closeSinksLocked() {
	for _, w := range p.workers {
		w.cancel()
		w.config.Sink.Close()
	}
	p.workers = nil
}
