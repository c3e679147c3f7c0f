// Package shadow evaluates a candidate ("shadow") topology against live traffic.
//
// Decorator wraps a production router and a shadow router behind routing.Router. The
// production path only ever schedules a detached task; nothing that happens in the
// shadow path can change, delay or fail the production result.
package shadow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/zhangyunhao116/fastrand"

	"shardroute/pkg/metrics"
	"shardroute/pkg/routing"
	"shardroute/pkg/shardkey"
	"shardroute/pkg/topology"
	"shardroute/pkg/types"
)

// DefaultTimeout bounds a single shadow task.
const DefaultTimeout = 2 * time.Second

// Writer performs a write against one shard. The same Writer is replayed against the
// shadow shard, so it must not capture per-shard state.
type Writer func(ctx context.Context, shard topology.ShardInfo) error

// Reader performs a read against one shard and returns its payload.
type Reader func(ctx context.Context, shard topology.ShardInfo) ([]byte, error)

// Router is routing.Router extended with shadow inspection.
type Router interface {
	routing.Router
	RouteShadow(key shardkey.CompoundKey) (types.ShardID, error)
	Compare(key shardkey.CompoundKey) ComparisonResult
}

type Decorator struct {
	production routing.Router
	shadow     routing.Router

	scheduler Scheduler
	ownPool   *Pool
	rec       recorder
	clock     clock.Clock
	logger    *slog.Logger
	timeout   time.Duration
	readPct   float64
	sample    func() float64

	onDiscrepancy func(ComparisonResult)
	onTask        func(TaskReport)
}

var _ Router = (*Decorator)(nil)

type Option func(*Decorator)

// WithScheduler replaces the decorator's own Pool.
func WithScheduler(s Scheduler) Option {
	return func(d *Decorator) { d.scheduler = s }
}

func WithMaxInFlight(n int64) Option {
	return func(d *Decorator) { d.ownPool = NewPool(n) }
}

func WithTelemetry(c metrics.Collector) Option {
	return func(d *Decorator) { d.rec = recorder{c: c} }
}

func WithClock(c clock.Clock) Option {
	return func(d *Decorator) { d.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Decorator) { d.logger = l }
}

func WithTimeout(t time.Duration) Option {
	return func(d *Decorator) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithReadPercentage mirrors roughly pct percent of successful reads. Clamped to [0, 100].
func WithReadPercentage(pct float64) Option {
	return func(d *Decorator) { d.readPct = min(max(pct, 0), 100) }
}

// WithSampler replaces the uniform [0, 100) draw used for read sampling.
func WithSampler(f func() float64) Option {
	return func(d *Decorator) { d.sample = f }
}

// WithDiscrepancyHandler is called from a background task whenever routing or payloads
// disagree. Panics inside it are recovered.
func WithDiscrepancyHandler(f func(ComparisonResult)) Option {
	return func(d *Decorator) { d.onDiscrepancy = f }
}

// WithTaskObserver is called off the caller's goroutine for every finished or dropped task.
func WithTaskObserver(f func(TaskReport)) Option {
	return func(d *Decorator) { d.onTask = f }
}

func New(production, shadow routing.Router, opts ...Option) *Decorator {
	d := &Decorator{
		production: production,
		shadow:     shadow,
		rec:        recorder{c: metrics.Nop{}},
		clock:      clock.New(),
		logger:     slog.Default(),
		timeout:    DefaultTimeout,
		sample:     func() float64 { return fastrand.Float64() * 100 },
	}
	for _, o := range opts {
		o(d)
	}
	if d.scheduler == nil {
		if d.ownPool == nil {
			d.ownPool = NewPool(DefaultMaxInFlight)
		}
		d.scheduler = d.ownPool
	}
	return d
}

// Close cancels and waits for tasks of the decorator's own pool. A scheduler passed with
// WithScheduler is left to its owner.
func (d *Decorator) Close() {
	if d.ownPool != nil {
		d.ownPool.Close()
	}
}

func (d *Decorator) Route(key shardkey.CompoundKey) (types.ShardID, error) {
	return d.production.Route(key)
}

func (d *Decorator) RouteAll(partial shardkey.PartialKey) ([]types.ShardID, error) {
	return d.production.RouteAll(partial)
}

func (d *Decorator) Locate(key shardkey.CompoundKey) (topology.ShardInfo, error) {
	return d.production.Locate(key)
}

func (d *Decorator) Topology() *topology.Topology { return d.production.Topology() }

func (d *Decorator) RouteShadow(key shardkey.CompoundKey) (types.ShardID, error) {
	return d.shadow.Route(key)
}

// ShadowTopology is the candidate topology.
func (d *Decorator) ShadowTopology() *topology.Topology { return d.shadow.Topology() }

// Compare routes key through both routers synchronously.
func (d *Decorator) Compare(key shardkey.CompoundKey) ComparisonResult {
	res := ComparisonResult{ShardKey: key.String()}
	res.ProductionShardID, res.ProductionErr = d.production.Route(key)
	res.ShadowShardID, res.ShadowErr = d.shadow.Route(key)
	res.RoutingMatch = res.ProductionErr == nil && res.ShadowErr == nil &&
		res.ProductionShardID == res.ShadowShardID
	d.rec.comparison(res.RoutingMatch)
	return res
}

// Write runs w against the production shard and returns its result. On success the same
// write is mirrored to the shadow shard in the background.
func (d *Decorator) Write(ctx context.Context, key shardkey.CompoundKey, w Writer) error {
	start := d.clock.Now()
	shard, err := d.production.Locate(key)
	if err != nil {
		return err
	}
	if err := w(ctx, shard); err != nil {
		return err
	}

	d.schedule(OpWrite, key, shard.ID, d.clock.Since(start), func(ctx context.Context, s topology.ShardInfo) (*bool, error) {
		return nil, w(ctx, s)
	})
	return nil
}

// Read runs r against the production shard and returns its result. A sampled share of
// successful reads is mirrored to the shadow shard and the payloads are compared.
func (d *Decorator) Read(ctx context.Context, key shardkey.CompoundKey, r Reader) ([]byte, error) {
	start := d.clock.Now()
	shard, err := d.production.Locate(key)
	if err != nil {
		return nil, err
	}
	data, err := r(ctx, shard)
	if err != nil {
		return nil, err
	}

	if d.shouldSample() {
		sum := xxhash.Sum64(data)
		d.schedule(OpRead, key, shard.ID, d.clock.Since(start), func(ctx context.Context, s topology.ShardInfo) (*bool, error) {
			shadowData, err := r(ctx, s)
			if err != nil {
				return nil, err
			}
			match := xxhash.Sum64(shadowData) == sum
			return &match, nil
		})
	}
	return data, nil
}

func (d *Decorator) shouldSample() bool {
	return d.readPct > 0 && d.sample() < d.readPct
}

type shadowBody func(ctx context.Context, shard topology.ShardInfo) (*bool, error)

type task struct {
	id           string
	op           Op
	key          shardkey.CompoundKey
	productionID types.ShardID
	prodLatency  time.Duration
	body         shadowBody
}

func (d *Decorator) schedule(op Op, key shardkey.CompoundKey, productionID types.ShardID, prodLatency time.Duration, body shadowBody) {
	t := &task{
		id:           uuid.NewString(),
		op:           op,
		key:          key,
		productionID: productionID,
		prodLatency:  prodLatency,
		body:         body,
	}
	if !d.scheduler.Submit(func(ctx context.Context) { d.run(ctx, t) }) {
		go d.isolate(func() {
			d.rec.dropped(op)
			d.report(TaskReport{ID: t.id, Op: op, State: StateDropped})
		})
	}
}

type outcome struct {
	shardID types.ShardID
	match   *bool
	err     error
}

// run is the body of every shadow task. Nothing escapes it.
func (d *Decorator) run(parent context.Context, t *task) {
	rep := TaskReport{ID: t.id, Op: t.op}
	defer func() {
		if r := recover(); r != nil {
			rep.State = StateFailed
			rep.Err = fmt.Errorf("shadow task panicked: %v", r)
			d.isolate(func() { d.finish(t, rep) })
		}
	}()

	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()

	if d.ownPool != nil {
		d.rec.inFlight(d.ownPool.InFlight())
	}
	start := d.clock.Now()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("shadow path panicked: %v", r)}
			}
		}()
		shard, err := d.shadow.Locate(t.key)
		if err != nil {
			done <- outcome{err: fmt.Errorf("route shadow: %w", err)}
			return
		}
		match, err := t.body(ctx, shard)
		done <- outcome{shardID: shard.ID, match: match, err: err}
	}()

	rep.Comparison = ComparisonResult{
		ShardKey:          t.key.String(),
		ProductionShardID: t.productionID,
	}

	settled := false
	select {
	case o := <-done:
		settled = true
		rep.Comparison.ShadowShardID = o.shardID
		rep.Comparison.RoutingMatch = o.shardID != "" && o.shardID == t.productionID
		rep.Comparison.ResultsMatch = o.match
		if o.err != nil {
			rep.State = StateFailed
			rep.Err = o.err
			rep.Comparison.ShadowErr = o.err
		} else {
			rep.State = StateCompleted
			rep.LatencyDelta = d.clock.Since(start) - t.prodLatency
		}
	case <-ctx.Done():
		rep.Err = ctx.Err()
		if errors.Is(rep.Err, context.DeadlineExceeded) {
			rep.State = StateTimedOut
		} else {
			rep.State = StateFailed
		}
		rep.Comparison.ShadowErr = rep.Err
	}

	d.finish(t, rep)

	// A shadow path that ignores ctx holds its scheduler slot until it returns or the
	// scheduler shuts down.
	if !settled {
		select {
		case <-done:
		case <-parent.Done():
		}
	}
}

func (d *Decorator) finish(t *task, rep TaskReport) {
	if rep.Comparison.ShadowShardID != "" {
		d.rec.comparison(rep.Comparison.RoutingMatch)
	}
	d.rec.finished(rep)

	if rep.State != StateCompleted {
		d.logger.Warn("shadow task did not complete",
			"task_id", rep.ID, "op", string(rep.Op), "state", rep.State.String(),
			"key", rep.Comparison.ShardKey, "error", rep.Err)
	} else if rep.Comparison.Discrepant() {
		d.logger.Info("shadow discrepancy",
			"task_id", rep.ID, "op", string(rep.Op), "key", rep.Comparison.ShardKey,
			"production_shard", rep.Comparison.ProductionShardID,
			"shadow_shard", rep.Comparison.ShadowShardID)
		if d.onDiscrepancy != nil {
			d.isolate(func() { d.onDiscrepancy(rep.Comparison) })
		}
	}
	d.report(rep)
}

func (d *Decorator) report(rep TaskReport) {
	if d.onTask != nil {
		d.isolate(func() { d.onTask(rep) })
	}
}

// isolate runs f and swallows any panic.
func (d *Decorator) isolate(f func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("shadow: callback panicked", "panic", r)
		}
	}()
	f()
}
