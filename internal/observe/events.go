package observe

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/campuswatch/campuswatch/internal/cache"
	"github.com/campuswatch/campuswatch/internal/intra"
	"github.com/campuswatch/campuswatch/internal/store"
)

// EventAPI is the slice of the intra client the event notifier needs.
type EventAPI interface {
	GetEvents(ctx context.Context, campusID, cursusID int) ([]intra.Event, error)
	GetExams(ctx context.Context, campusID, cursusID int) ([]intra.Event, error)
}

// GroupSource pages (campus, cursus, watcher-set) groups.
type GroupSource interface {
	ListNotifiable(ctx context.Context, limit, offset int) ([]store.NotifyGroup, error)
	DeleteWatcher(ctx context.Context, userID int64) error
}

// EventConfig holds event notifier settings.
type EventConfig struct {
	PageSize     int           // groups per page, default 10
	Cycle        time.Duration // fixed pause between passes, default 30m
	SafetyMargin time.Duration // added to each dedup marker TTL, default 5m
	SendDelay    time.Duration // pause between deliveries, default 50ms
	Logger       *slog.Logger
	Now          func() time.Time
}

func (c EventConfig) withDefaults() EventConfig {
	if c.PageSize <= 0 {
		c.PageSize = 10
	}
	if c.Cycle <= 0 {
		c.Cycle = 30 * time.Minute
	}
	if c.SafetyMargin <= 0 {
		c.SafetyMargin = 5 * time.Minute
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

// EventNotifier announces upcoming events exactly once per (event,
// campus, cursus) regardless of how many polls re-discover the event
// before it starts. A dedup marker in the cache suppresses repeats; its
// TTL outlives the event by the safety margin, after which the event no
// longer appears in the upcoming feed.
type EventNotifier struct {
	cfg    EventConfig
	api    EventAPI
	cache  cache.Store
	source GroupSource
	msgr   Messenger
	logger *slog.Logger
}

// NewEventNotifier creates an EventNotifier.
func NewEventNotifier(cfg EventConfig, api EventAPI, st cache.Store, source GroupSource, msgr Messenger) *EventNotifier {
	cfg = cfg.withDefaults()
	return &EventNotifier{
		cfg:    cfg,
		api:    api,
		cache:  st,
		source: source,
		msgr:   msgr,
		logger: cfg.Logger.With("component", "events"),
	}
}

func markerKey(e intra.Event, campusID, cursusID int) string {
	return cache.Key("event", e.Kind, e.ID, campusID, cursusID)
}

// Run executes announcement passes until ctx is cancelled.
func (n *EventNotifier) Run(ctx context.Context) error {
	for {
		n.runCycle(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n.logger.Info("event notify pass complete", "sleep", n.cfg.Cycle)
		sleepCtx(ctx, n.cfg.Cycle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (n *EventNotifier) runCycle(ctx context.Context) {
	offset := 0
	for {
		if ctx.Err() != nil {
			return
		}

		page, err := n.source.ListNotifiable(ctx, n.cfg.PageSize, offset)
		if err != nil {
			n.logger.Error("listing notifiable groups failed", "offset", offset, "error", err)
			return
		}
		if len(page) == 0 {
			return
		}

		for _, group := range page {
			if ctx.Err() != nil {
				return
			}
			n.processGroup(ctx, group)
		}
		offset += n.cfg.PageSize
	}
}

// processGroup fetches upcoming events and exams for one (campus,
// cursus) pair and announces the ones without a dedup marker.
func (n *EventNotifier) processGroup(ctx context.Context, group store.NotifyGroup) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("panic while notifying group",
				"campus", group.CampusID, "cursus", group.CursusID, "panic", r)
		}
	}()

	events, err := n.api.GetEvents(ctx, group.CampusID, group.CursusID)
	if err != nil {
		n.logger.Error("fetching events failed",
			"campus", group.CampusID, "cursus", group.CursusID, "error", err)
		return
	}
	exams, err := n.api.GetExams(ctx, group.CampusID, group.CursusID)
	if err != nil {
		n.logger.Error("fetching exams failed",
			"campus", group.CampusID, "cursus", group.CursusID, "error", err)
	} else {
		events = append(events, exams...)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].BeginAt.Before(events[j].BeginAt)
	})

	loc, err := time.LoadLocation(group.TimeZone)
	if err != nil {
		n.logger.Warn("unknown campus time zone, using UTC", "time_zone", group.TimeZone)
		loc = time.UTC
	}

	for _, event := range events {
		if ctx.Err() != nil {
			return
		}

		key := markerKey(event, group.CampusID, group.CursusID)
		if _, ok, err := n.cache.Get(ctx, key); err != nil {
			n.logger.Error("reading dedup marker failed", "key", key, "error", err)
			continue
		} else if ok {
			continue
		}

		text := fmt.Sprintf("New %s!\n<b>%s</b>\nStarts %s",
			event.Kind, event.Name, event.BeginAt.In(loc).Format("15:04 02.01.2006"))
		deliver(ctx, n.msgr, n.source, n.logger, group.WatcherIDs, text, "event", n.cfg.SendDelay)

		ttl := event.BeginAt.Sub(n.cfg.Now()) + n.cfg.SafetyMargin
		if ttl < n.cfg.SafetyMargin {
			ttl = n.cfg.SafetyMargin
		}
		if err := n.cache.Set(ctx, key, []byte("1"), ttl); err != nil {
			n.logger.Error("writing dedup marker failed", "key", key, "error", err)
			continue
		}
		n.logger.Info("event announced",
			"event", event.ID, "name", event.Name, "kind", event.Kind, "ttl", ttl)
	}
}
