// Package observe runs the long-lived polling loops that turn upstream
// state into deduplicated notifications: campus-presence transitions for
// watched peers, and one-shot announcements for upcoming events.
package observe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/campuswatch/campuswatch/internal/cache"
	"github.com/campuswatch/campuswatch/internal/intra"
	"github.com/campuswatch/campuswatch/internal/messenger"
	"github.com/campuswatch/campuswatch/internal/store"
)

// PeerAPI is the slice of the intra client the observer needs.
type PeerAPI interface {
	GetPeer(ctx context.Context, login string) (*intra.Peer, error)
}

// Messenger delivers one notification to one recipient.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) (messenger.Result, error)
}

// SubjectSource pages the working set of (subject, watcher-set) pairs
// and removes watchers whose deliveries fail permanently.
type SubjectSource interface {
	ListObserved(ctx context.Context, limit, offset int) ([]store.Observed, error)
	DeleteWatcher(ctx context.Context, userID int64) error
}

// Config holds observation loop settings.
type Config struct {
	PageSize  int           // default 100
	Cycle     time.Duration // target cycle length, default 10m
	SendDelay time.Duration // pause between deliveries, default 50ms
	Logger    *slog.Logger
	Now       func() time.Time // injectable for testing
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.Cycle <= 0 {
		c.Cycle = 10 * time.Minute
	}
	if c.SendDelay <= 0 {
		c.SendDelay = 50 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Observer polls watched subjects and notifies their watchers of
// presence transitions. One failing subject never aborts a cycle.
type Observer struct {
	cfg    Config
	api    PeerAPI
	cache  cache.Store
	source SubjectSource
	msgr   Messenger
	logger *slog.Logger
}

// NewObserver creates an Observer.
func NewObserver(cfg Config, api PeerAPI, st cache.Store, source SubjectSource, msgr Messenger) *Observer {
	cfg = cfg.withDefaults()
	return &Observer{
		cfg:    cfg,
		api:    api,
		cache:  st,
		source: source,
		msgr:   msgr,
		logger: cfg.Logger.With("component", "observe"),
	}
}

func locationKey(login string) string {
	return cache.Key("location", login)
}

// Run executes observation cycles until ctx is cancelled. When a full
// pass finishes under the target cycle length, the remainder is slept;
// otherwise the next pass starts immediately.
func (o *Observer) Run(ctx context.Context) error {
	for {
		start := o.cfg.Now()
		o.runCycle(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if remaining := o.cfg.Cycle - o.cfg.Now().Sub(start); remaining > 0 {
			o.logger.Info("observation cycle complete", "sleep", remaining)
			sleepCtx(ctx, remaining)
		} else {
			o.logger.Info("observation cycle overran target, starting next pass")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// runCycle pages the working set until an empty page.
func (o *Observer) runCycle(ctx context.Context) {
	offset := 0
	for {
		if ctx.Err() != nil {
			return
		}

		page, err := o.source.ListObserved(ctx, o.cfg.PageSize, offset)
		if err != nil {
			o.logger.Error("listing observed subjects failed", "offset", offset, "error", err)
			return
		}
		if len(page) == 0 {
			return
		}

		for _, subject := range page {
			if ctx.Err() != nil {
				return
			}
			o.processSubject(ctx, subject)
		}
		offset += o.cfg.PageSize
	}
}

// processSubject polls one subject, computes the transition against the
// cached previous state, and fans out. The cache write happens before
// fan-out: if fan-out is interrupted partway, the next cycle must not
// recompute the same transition and re-notify.
func (o *Observer) processSubject(ctx context.Context, subject store.Observed) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic while observing subject", "login", subject.Login, "panic", r)
		}
	}()

	peer, err := o.api.GetPeer(ctx, subject.Login)
	if err != nil {
		// NotFound/Timeout/Unknown: skip this subject, keep the cycle going.
		o.logger.Error("fetching subject failed", "login", subject.Login, "error", err)
		return
	}

	previous := ""
	if raw, ok, err := o.cache.Get(ctx, locationKey(subject.Login)); err != nil {
		o.logger.Error("reading previous state failed", "login", subject.Login, "error", err)
		return
	} else if ok {
		previous = string(raw)
	}

	current := peer.Location
	if current == previous {
		return
	}

	if err := o.cache.Set(ctx, locationKey(subject.Login), []byte(current), 0); err != nil {
		// Without the state write, fan-out would repeat next cycle.
		o.logger.Error("writing subject state failed", "login", subject.Login, "error", err)
		return
	}
	o.logger.Info("subject state changed",
		"login", subject.Login,
		"previous", previous,
		"current", current,
	)

	if current != "" {
		text := fmt.Sprintf("<b>%s</b> is on campus!\nWorkstation: <code>%s</code>", subject.Login, current)
		o.fanOut(ctx, subject.Watchers, false, text, "entered")
		return
	}

	// Departure notices go only to watchers who opted in.
	text := fmt.Sprintf("<b>%s</b> left the campus.\nLast workstation: <code>%s</code>", subject.Login, previous)
	o.fanOut(ctx, subject.Watchers, true, text, "left")
}

func (o *Observer) fanOut(ctx context.Context, watchers []store.Watcher, leftOnly bool, text, kind string) {
	ids := make([]int64, 0, len(watchers))
	for _, w := range watchers {
		if leftOnly && !w.LeftNotice {
			continue
		}
		ids = append(ids, w.ID)
	}
	deliver(ctx, o.msgr, o.source, o.logger, ids, text, kind, o.cfg.SendDelay)
}
