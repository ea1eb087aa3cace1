package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polyquote/quoterd/internal/domain"
	"github.com/polyquote/quoterd/internal/gateway"
	"github.com/polyquote/quoterd/internal/metrics"
)

const (
	jitterWindowCycles = 10
	jitterWarnStddev   = 100 * time.Millisecond
)

// Alerter receives session lifecycle notifications (kill switch, halt,
// winddown). Implementations must not block for long.
type Alerter interface {
	Notify(ctx context.Context, event, message string) error
}

// SchedulerConfig holds the loop timing parameters.
type SchedulerConfig struct {
	LoopInterval time.Duration
	// CycleTimeout bounds each quote manager invocation.
	CycleTimeout time.Duration
	// BurstTimeoutCount consecutive timeouts trigger a pause-and-resync.
	BurstTimeoutCount int
	// ResyncPause is the pause after a timeout burst.
	ResyncPause  time.Duration
	WinddownLead time.Duration
}

// Scheduler drives the fixed-interval quoting loop: fetch both books
// concurrently, gate on toxic flow and terminal state, check winddown, run
// each quote manager under a bounded timeout, then sleep out the interval.
type Scheduler struct {
	gw       gateway.Gateway
	session  *Session
	quoters  []*QuoteManager
	winddown *Winddown
	market   domain.Market
	cfg      SchedulerConfig
	metrics  *metrics.Metrics
	alerts   Alerter // nil disables notifications
	log      *slog.Logger
	now      func() time.Time

	lastTops     map[string]domain.BookTop
	cycleTimes   []time.Duration
	timeoutBurst int
}

// NewScheduler wires the loop for one market session.
func NewScheduler(
	gw gateway.Gateway,
	session *Session,
	quoters []*QuoteManager,
	winddown *Winddown,
	market domain.Market,
	cfg SchedulerConfig,
	m *metrics.Metrics,
	alerts Alerter,
	log *slog.Logger,
) *Scheduler {
	return &Scheduler{
		gw:       gw,
		session:  session,
		quoters:  quoters,
		winddown: winddown,
		market:   market,
		cfg:      cfg,
		metrics:  m,
		alerts:   alerts,
		log:      log.With("component", "scheduler"),
		now:      time.Now,
		lastTops: make(map[string]domain.BookTop),
	}
}

// Run loops until the context is cancelled, the market winds down, or a
// terminal risk condition fires. Terminal conditions are returned as
// domain.ErrKillSwitch or domain.ErrSessionHalted after a best-effort
// cancel-all.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("starting quoting loop",
		"market", s.market.Slug,
		"loop_interval", s.cfg.LoopInterval,
		"resolution", s.market.EndDate)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := s.now()

		tops := s.fetchBooks(ctx)
		yesTop := tops[s.market.YesTokenID]

		if s.session.ToxicFlow(domain.TokenYes, yesTop) {
			if err := s.gw.CancelAll(ctx); err != nil {
				s.log.Warn("cancel all during toxic flow failed", "err", err)
			}
			if stop := s.finishCycle(ctx, start); stop != nil {
				return stop
			}
			continue
		}

		if s.winddownDue() {
			s.winddown.Run(ctx, s.states(), tops)
			s.alert(ctx, "winddown", "session wound down before resolution")
			return nil
		}

		timedOut := false
		for _, q := range s.quoters {
			cctx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
			err := q.Cycle(cctx, tops[q.State().TokenID])
			cancel()
			if errors.Is(err, domain.ErrCycleTimeout) {
				timedOut = true
				s.metrics.CycleTimeout()
				s.log.Warn("cycle timed out", "token", q.State().Label)
				break
			}
			if err != nil {
				s.log.Error("cycle error", "token", q.State().Label, "err", err)
			}
		}
		if timedOut {
			s.timeoutBurst++
			if s.timeoutBurst >= s.cfg.BurstTimeoutCount {
				s.log.Warn("timeout burst, pausing to resync", "count", s.timeoutBurst)
				s.timeoutBurst = 0
				if stop := sleepCtx(ctx, s.cfg.ResyncPause); stop != nil {
					return stop
				}
			}
		} else {
			s.timeoutBurst = 0
		}

		if s.session.KillTriggered {
			s.shutdownOrders(ctx)
			s.alert(ctx, "kill_switch",
				fmt.Sprintf("estimated P&L %.2f breached max loss", s.session.EstimatedPnl()))
			return domain.ErrKillSwitch
		}
		if s.session.Halted {
			s.shutdownOrders(ctx)
			s.alert(ctx, "halted", "too many consecutive gateway failures")
			return domain.ErrSessionHalted
		}
		if s.session.TrialCapBreached() {
			s.shutdownOrders(ctx)
			s.log.Info("trial cap reached, ending session",
				"orders", s.session.OrdersPlaced, "notional", s.session.EstimatedNotional)
			return nil
		}

		if stop := s.finishCycle(ctx, start); stop != nil {
			return stop
		}
	}
}

// fetchBooks fetches both tokens' books concurrently. Failed or one-sided
// fetches fall back per side to the last observed value, so a transient
// empty book does not zero out quoting prices.
func (s *Scheduler) fetchBooks(ctx context.Context) map[string]domain.BookTop {
	fresh := make([]domain.BookTop, len(s.quoters))
	errs := make([]error, len(s.quoters))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range s.quoters {
		g.Go(func() error {
			fresh[i], errs[i] = s.gw.FetchOrderBook(gctx, q.State().TokenID)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]domain.BookTop, len(s.quoters))
	for i, q := range s.quoters {
		id := q.State().TokenID
		top := s.lastTops[id]
		if errs[i] == nil {
			if fresh[i].BestBid > 0 {
				top.BestBid = fresh[i].BestBid
			}
			if fresh[i].BestAsk > 0 {
				top.BestAsk = fresh[i].BestAsk
			}
		} else {
			s.log.Debug("book fetch failed, reusing last top", "token", q.State().Label, "err", errs[i])
		}
		s.lastTops[id] = top
		out[id] = top
	}
	return out
}

func (s *Scheduler) winddownDue() bool {
	if s.market.EndDate.IsZero() || s.cfg.WinddownLead <= 0 {
		return false
	}
	return !s.now().Before(s.market.EndDate.Add(-s.cfg.WinddownLead))
}

func (s *Scheduler) states() []*TokenState {
	states := make([]*TokenState, len(s.quoters))
	for i, q := range s.quoters {
		states[i] = q.State()
	}
	return states
}

// shutdownOrders best-effort cancels everything on a terminal stop.
func (s *Scheduler) shutdownOrders(ctx context.Context) {
	if err := s.gw.CancelAll(ctx); err != nil {
		s.log.Warn("final cancel all failed", "err", err)
	}
}

// finishCycle records jitter stats and sleeps out the rest of the interval.
func (s *Scheduler) finishCycle(ctx context.Context, start time.Time) error {
	elapsed := s.now().Sub(start)
	s.metrics.CycleCompleted(elapsed.Seconds())

	s.cycleTimes = append(s.cycleTimes, elapsed)
	if len(s.cycleTimes) > jitterWindowCycles {
		s.cycleTimes = s.cycleTimes[1:]
	}
	if len(s.cycleTimes) >= jitterWindowCycles {
		mean, stddev := jitterStats(s.cycleTimes)
		if stddev > jitterWarnStddev {
			s.log.Warn("high cycle jitter", "stddev", stddev, "mean", mean)
		}
	}

	if remaining := s.cfg.LoopInterval - elapsed; remaining > 0 {
		return sleepCtx(ctx, remaining)
	}
	return nil
}

// jitterStats returns the mean and population standard deviation of the
// recent cycle durations.
func jitterStats(times []time.Duration) (mean, stddev time.Duration) {
	n := len(times)
	if n == 0 {
		return 0, 0
	}
	var sum time.Duration
	for _, t := range times {
		sum += t
	}
	mean = sum / time.Duration(n)
	if n < 2 {
		return mean, 0
	}
	var variance float64
	for _, t := range times {
		d := float64(t - mean)
		variance += d * d
	}
	variance /= float64(n)
	return mean, time.Duration(math.Sqrt(variance))
}

func (s *Scheduler) alert(ctx context.Context, event, message string) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Notify(ctx, event, message); err != nil {
		s.log.Warn("notification failed", "event", event, "err", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
