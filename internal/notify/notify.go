// Package notify pushes new history entries to external sinks: HTTP
// webhooks and an NSQ topic.
package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"suratline/internal/config"
	"suratline/internal/domain"
	"suratline/internal/repo"
)

const (
	defaultInterval = 2 * time.Second
	defaultBatch    = 100
)

// Sink receives history entries one at a time, oldest first.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, entry domain.HistoryEntry) error
}

type target struct {
	sink   Sink
	filter typeFilter
}

// Dispatcher polls the history ledger and forwards each new entry to every
// sink whose type filter matches. Each sink has its own cursor; a failed
// delivery is retried on the next tick.
type Dispatcher struct {
	Repo     repo.Repo
	Log      *zap.Logger
	Interval time.Duration

	targets []target
	mu      sync.Mutex
	cursors map[int]int64
}

func NewDispatcher(r repo.Repo, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{Repo: r, Log: log, Interval: defaultInterval, cursors: map[int]int64{}}
}

// Add registers a sink for the given entry types; no types means all.
func (d *Dispatcher) Add(s Sink, types []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets = append(d.targets, target{sink: s, filter: newTypeFilter(types)})
}

func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.targets)
}

// Run dispatches until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	interval := d.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce delivers everything pending for every sink.
func (d *Dispatcher) DispatchOnce(ctx context.Context) {
	d.mu.Lock()
	targets := append([]target(nil), d.targets...)
	d.mu.Unlock()
	for i, t := range targets {
		d.dispatch(ctx, i, t)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, idx int, t target) {
	cursor := d.cursorFor(ctx, idx)
	entries, err := d.Repo.HistoryAfter(ctx, defaultBatch, cursor, repo.HistoryFilters{})
	if err != nil {
		d.Log.Warn("notify: fetch history failed", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if t.filter.match(entry.Type) {
			if err := t.sink.Deliver(ctx, entry); err != nil {
				d.Log.Warn("notify: delivery failed",
					zap.String("sink", t.sink.Name()),
					zap.Int64("seq", entry.Seq),
					zap.Error(err))
				return
			}
		}
		d.setCursor(idx, entry.Seq)
	}
}

// cursorFor starts a new sink at the head of the ledger so only entries
// written after startup are sent.
func (d *Dispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.Repo.LatestHistorySeq(ctx)
	if err != nil {
		d.Log.Warn("notify: init cursor failed", zap.Error(err))
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *Dispatcher) setCursor(idx int, seq int64) {
	d.mu.Lock()
	d.cursors[idx] = seq
	d.mu.Unlock()
}

// FromConfig builds a dispatcher with every enabled sink in cfg. The
// returned close func stops NSQ producers.
func FromConfig(cfg config.NotifyConfig, r repo.Repo, log *zap.Logger) (*Dispatcher, func(), error) {
	d := NewDispatcher(r, log)
	closers := []func(){}
	for _, hook := range cfg.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.Add(NewWebhookSink(hook), hook.Events)
	}
	if cfg.NSQ != nil {
		sink, err := NewNSQSink(*cfg.NSQ)
		if err != nil {
			return nil, func() {}, err
		}
		d.Add(sink, cfg.NSQ.Events)
		closers = append(closers, sink.Stop)
	}
	return d, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

type typeFilter struct {
	all bool
	set map[string]struct{}
}

func newTypeFilter(types []string) typeFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		key := strings.TrimSpace(t)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return typeFilter{all: true}
	}
	return typeFilter{set: set}
}

func (f typeFilter) match(t string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[t]
	return ok
}
