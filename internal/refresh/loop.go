// Package refresh drives the watch-mode dashboard: render the current
// reading, wait a fixed interval, render again.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/clock"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/trend"
)

// DefaultInterval is the wait between two renders.
const DefaultInterval = 30 * time.Second

// State is the loop's position in its two-state cycle.
type State int

const (
	StateRender State = iota
	StateWait
)

func (s State) String() string {
	switch s {
	case StateRender:
		return "render"
	case StateWait:
		return "wait"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Fetcher returns the current reading for a city.
type Fetcher interface {
	GetOrFetch(ctx context.Context, city string) (models.Reading, error)
}

// Renderer draws one frame of the dashboard, or the failure frame.
type Renderer interface {
	Render(r models.Reading, points []models.TrendPoint) error
	RenderError(cause error) error
}

// Options tune a Loop. Zero values take the defaults.
type Options struct {
	Interval    time.Duration
	TrendPoints int
	TrendStep   time.Duration
	Sleep       clock.SleepFunc
	Logger      *zap.Logger
}

// Loop alternates RENDER and WAIT for one city. It is not safe for
// concurrent use.
type Loop struct {
	city     string
	fetcher  Fetcher
	renderer Renderer
	interval time.Duration
	points   int
	step     time.Duration
	sleep    clock.SleepFunc
	logger   *zap.Logger

	state  State
	cycles int
}

// New creates a Loop starting in StateRender.
func New(city string, fetcher Fetcher, renderer Renderer, opts Options) *Loop {
	l := &Loop{
		city:     city,
		fetcher:  fetcher,
		renderer: renderer,
		interval: opts.Interval,
		points:   opts.TrendPoints,
		step:     opts.TrendStep,
		sleep:    opts.Sleep,
		logger:   opts.Logger,
		state:    StateRender,
	}
	if l.interval <= 0 {
		l.interval = DefaultInterval
	}
	if l.points <= 0 {
		l.points = trend.DefaultPoints
	}
	if l.step <= 0 {
		l.step = trend.DefaultStep
	}
	if l.sleep == nil {
		l.sleep = clock.Sleep
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l
}

// State reports the state the next Step will execute.
func (l *Loop) State() State { return l.state }

// Cycles reports how many successful renders have happened.
func (l *Loop) Cycles() int { return l.cycles }

// Step executes the current state and moves to the next. A fetch failure
// is rendered and returned; the loop does not advance past it.
func (l *Loop) Step(ctx context.Context) error {
	switch l.state {
	case StateRender:
		reading, err := l.fetcher.GetOrFetch(ctx, l.city)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			l.logger.Error("fetch failed, stopping refresh", zap.String("city", l.city), zap.Error(err))
			if rerr := l.renderer.RenderError(err); rerr != nil {
				l.logger.Warn("render error frame failed", zap.Error(rerr))
			}
			return err
		}
		if err := l.renderer.Render(reading, trend.Synthesize(reading, l.points, l.step)); err != nil {
			return fmt.Errorf("render dashboard: %w", err)
		}
		l.cycles++
		observability.RefreshCyclesTotal.Inc()
		l.logger.Debug("dashboard rendered", zap.String("city", l.city), zap.Int("cycle", l.cycles))
		l.state = StateWait
	case StateWait:
		if err := l.sleep(ctx, l.interval); err != nil {
			return err
		}
		l.state = StateRender
	default:
		return fmt.Errorf("refresh loop in unknown state %v", l.state)
	}
	return nil
}

// Run steps until a fetch fails or ctx is done. It never returns nil.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.Step(ctx); err != nil {
			return err
		}
	}
}
