// Package attention runs the bot's unprompted background behaviors:
// periodic praise for a channel's storytellers and nudges for channels
// that have gone quiet. Jobs are per channel, idempotent to start and
// stop, and owned by the story store so the command handlers and the
// shutdown path see the same set of handles.
package attention

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/storybot/weaver/internal/config"
	"github.com/storybot/weaver/internal/events"
	"github.com/storybot/weaver/internal/story"
)

// sendTimeout bounds each outbound message from a background job.
const sendTimeout = 30 * time.Second

// Sender delivers chat messages to a channel.
type Sender interface {
	Send(ctx context.Context, channelID, text string) error
}

// Scheduler creates and tears down per-channel background jobs.
type Scheduler struct {
	logger *slog.Logger
	store  *story.Store
	sender Sender
	bus    *events.Bus
	prefix string

	praiseMin time.Duration
	praiseMax time.Duration
	idleCheck time.Duration
	idleAfter time.Duration
}

// NewScheduler wires a scheduler from the attention config section.
func NewScheduler(logger *slog.Logger, store *story.Store, sender Sender, bus *events.Bus, prefix string, cfg config.AttentionConfig) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "!"
	}
	min, max := cfg.PraiseRange()
	return &Scheduler{
		logger:    logger.With("component", "attention"),
		store:     store,
		sender:    sender,
		bus:       bus,
		prefix:    prefix,
		praiseMin: min,
		praiseMax: max,
		idleCheck: cfg.IdleCheck(),
		idleAfter: cfg.IdleAfter(),
	}
}

// handle is a stoppable background goroutine. Stop is safe to call more
// than once.
type handle struct {
	stop chan struct{}
	once sync.Once
}

func newHandle() *handle { return &handle{stop: make(chan struct{})} }

func (h *handle) Stop() { h.once.Do(func() { close(h.stop) }) }

// StartPraise begins the praise job for a channel. The delivery
// interval is drawn once, uniformly from the configured range, and held
// for the life of the job. Returns false when the channel already has a
// praise job running.
func (s *Scheduler) StartPraise(channelID string) bool {
	h := newHandle()
	if !s.store.SetPraiseJob(channelID, h) {
		return false
	}

	interval := s.drawPraiseInterval()
	s.logger.Info("praise job started", "channel", channelID, "interval", interval)
	s.publish(events.KindJobStarted, map[string]any{
		"channel_id":  channelID,
		"job":         "praise",
		"interval_ms": interval.Milliseconds(),
	})

	go s.praiseLoop(channelID, interval, h)
	return true
}

// StopPraise cancels the channel's praise job. Returns false when none
// was running.
func (s *Scheduler) StopPraise(channelID string) bool {
	h, ok := s.store.ClearPraiseJob(channelID)
	if !ok {
		return false
	}
	h.Stop()
	s.logger.Info("praise job stopped", "channel", channelID)
	s.publish(events.KindJobStopped, map[string]any{
		"channel_id": channelID,
		"job":        "praise",
	})
	return true
}

// StartIdle begins the idle watcher for a channel. Returns false when
// one is already running.
func (s *Scheduler) StartIdle(channelID string) bool {
	h := newHandle()
	if !s.store.SetIdleJob(channelID, h) {
		return false
	}

	// Treat enabling the watcher as activity so a long-dead channel is
	// not nudged on the very first tick.
	s.store.Touch(channelID)

	s.logger.Info("idle watcher started", "channel", channelID, "check", s.idleCheck, "after", s.idleAfter)
	s.publish(events.KindJobStarted, map[string]any{
		"channel_id":  channelID,
		"job":         "idle",
		"interval_ms": s.idleCheck.Milliseconds(),
	})

	go s.idleLoop(channelID, h)
	return true
}

// StopIdle cancels the channel's idle watcher. Returns false when none
// was running.
func (s *Scheduler) StopIdle(channelID string) bool {
	h, ok := s.store.ClearIdleJob(channelID)
	if !ok {
		return false
	}
	h.Stop()
	s.logger.Info("idle watcher stopped", "channel", channelID)
	s.publish(events.KindJobStopped, map[string]any{
		"channel_id": channelID,
		"job":        "idle",
	})
	return true
}

// StopAll tears down every running job. Called on shutdown.
func (s *Scheduler) StopAll() {
	for _, h := range s.store.StopAllJobs() {
		h.Stop()
	}
}

func (s *Scheduler) praiseLoop(channelID string, interval time.Duration, h *handle) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			// A compliment counts as channel activity, so the idle
			// watcher's quiet clock restarts with it.
			s.store.Touch(channelID)
			s.deliver(channelID, compliments[rand.IntN(len(compliments))])
			s.publish(events.KindPraiseFired, map[string]any{"channel_id": channelID})
		}
	}
}

func (s *Scheduler) idleLoop(channelID string, h *handle) {
	ticker := time.NewTicker(s.idleCheck)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			s.checkIdle(channelID)
		}
	}
}

// checkIdle nudges a quiet channel. An active story means people are
// already engaged, so the watcher stays silent. After a nudge the
// quiet clock restarts, otherwise every subsequent tick would nudge
// again.
func (s *Scheduler) checkIdle(channelID string) {
	if s.store.HasStory(channelID) {
		return
	}
	last, ok := s.store.LastInteraction(channelID)
	if !ok {
		return
	}
	quiet := time.Since(last)
	if quiet < s.idleAfter {
		return
	}

	nudge := fmt.Sprintf(nudges[rand.IntN(len(nudges))], s.prefix)
	s.deliver(channelID, nudge)
	s.store.Touch(channelID)
	s.logger.Info("idle nudge delivered", "channel", channelID, "quiet_for", quiet)
	s.publish(events.KindIdleNudge, map[string]any{
		"channel_id":   channelID,
		"quiet_for_ms": quiet.Milliseconds(),
	})
}

func (s *Scheduler) deliver(channelID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := s.sender.Send(ctx, channelID, text); err != nil {
		s.logger.Warn("background message failed", "channel", channelID, "error", err)
	}
}

// drawPraiseInterval picks a delivery interval from the configured
// range. The draw happens once per job start, not once per tick.
func (s *Scheduler) drawPraiseInterval() time.Duration {
	if s.praiseMax <= s.praiseMin {
		return s.praiseMin
	}
	return s.praiseMin + rand.N(s.praiseMax-s.praiseMin)
}

func (s *Scheduler) publish(kind string, data map[string]any) {
	s.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceAttention,
		Kind:      kind,
		Data:      data,
	})
}
