// Package story holds the per-channel storytelling state machine: the
// in-memory store of active stories, the continuation menu parser, and
// the engine that drives commands through the generative backend.
package story

import (
	"sync"
	"time"
)

// JobHandle is a stoppable background job. The store owns at most one
// praise handle and one idle handle per channel so repeated start
// commands stay idempotent.
type JobHandle interface {
	Stop()
}

// Story is the state of one channel's narrative. Values returned by the
// store are copies; mutate through store methods only.
type Story struct {
	ChannelID string
	Narrative []string  // ordered accepted continuations, index 0 is the opener
	Choices   []string  // pending menu, empty when no choice is outstanding
	Round     int       // accepted continuations since the last user turn
	UserTurn  bool      // true when the next continuation must come from a user
	StartedAt time.Time
}

// FullText joins the accepted narrative into one passage for prompting
// and display.
func (s *Story) FullText() string {
	out := ""
	for i, part := range s.Narrative {
		if i > 0 {
			out += " "
		}
		out += part
	}
	return out
}

// Store is the in-memory home of all channel state. Every method is
// safe for concurrent use. Interaction timestamps and job handles live
// beside the stories, not inside them, so they survive a story being
// dropped.
type Store struct {
	mu        sync.Mutex
	stories   map[string]*Story
	lastSeen  map[string]time.Time
	praise    map[string]JobHandle
	idle      map[string]JobHandle
	now       func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		stories:  make(map[string]*Story),
		lastSeen: make(map[string]time.Time),
		praise:   make(map[string]JobHandle),
		idle:     make(map[string]JobHandle),
		now:      time.Now,
	}
}

// CreateOrReset starts a fresh story for the channel with the given
// opening sentence, replacing any story already in progress.
func (s *Store) CreateOrReset(channelID, opener string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stories[channelID] = &Story{
		ChannelID: channelID,
		Narrative: []string{opener},
		StartedAt: s.now(),
	}
	s.lastSeen[channelID] = s.now()
}

// Snapshot returns a copy of the channel's story, or false when no
// story is active there.
func (s *Store) Snapshot(channelID string) (Story, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stories[channelID]
	if !ok {
		return Story{}, false
	}
	return copyStory(st), true
}

// HasStory reports whether a story is active in the channel.
func (s *Store) HasStory(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.stories[channelID]
	return ok
}

// AppendContinuation adds an accepted continuation to the narrative and
// bumps the round counter. Returns ErrNoActiveStory when the channel
// has no story.
func (s *Store) AppendContinuation(channelID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stories[channelID]
	if !ok {
		return ErrNoActiveStory
	}
	st.Narrative = append(st.Narrative, text)
	st.Round++
	s.lastSeen[channelID] = s.now()
	return nil
}

// SetChoices installs a pending menu. Holding choices and awaiting a
// user turn are mutually exclusive, so this clears the user-turn flag.
func (s *Store) SetChoices(channelID string, choices []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stories[channelID]
	if !ok {
		return ErrNoActiveStory
	}
	st.Choices = append([]string(nil), choices...)
	st.UserTurn = false
	return nil
}

// ClearChoices removes any pending menu.
func (s *Store) ClearChoices(channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stories[channelID]
	if !ok {
		return ErrNoActiveStory
	}
	st.Choices = nil
	return nil
}

// SetUserTurn flips the channel into or out of free-text mode. Entering
// user-turn mode clears any pending menu.
func (s *Store) SetUserTurn(channelID string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stories[channelID]
	if !ok {
		return ErrNoActiveStory
	}
	st.UserTurn = on
	if on {
		st.Choices = nil
	}
	return nil
}

// ResetRound zeroes the round counter. Called when a user turn
// completes so the cadence restarts.
func (s *Store) ResetRound(channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stories[channelID]
	if !ok {
		return ErrNoActiveStory
	}
	st.Round = 0
	return nil
}

// Drop removes the channel's story. Interaction timestamps and job
// handles are untouched so the idle watcher keeps working afterwards.
func (s *Store) Drop(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stories, channelID)
}

// Touch records channel activity for the idle watcher.
func (s *Store) Touch(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen[channelID] = s.now()
}

// LastInteraction returns when the channel was last active, or false if
// it has never been seen.
func (s *Store) LastInteraction(channelID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastSeen[channelID]
	return t, ok
}

// SetPraiseJob stores a praise job handle. Returns false without
// replacing when the channel already has one; the caller should stop
// the new job.
func (s *Store) SetPraiseJob(channelID string, h JobHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.praise[channelID]; ok {
		return false
	}
	s.praise[channelID] = h
	return true
}

// ClearPraiseJob removes and returns the channel's praise job handle,
// if any. The caller stops it outside the store lock.
func (s *Store) ClearPraiseJob(channelID string) (JobHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.praise[channelID]
	delete(s.praise, channelID)
	return h, ok
}

// SetIdleJob stores an idle watcher handle, refusing duplicates the
// same way SetPraiseJob does.
func (s *Store) SetIdleJob(channelID string, h JobHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.idle[channelID]; ok {
		return false
	}
	s.idle[channelID] = h
	return true
}

// ClearIdleJob removes and returns the channel's idle watcher handle.
func (s *Store) ClearIdleJob(channelID string) (JobHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.idle[channelID]
	delete(s.idle, channelID)
	return h, ok
}

// StopAllJobs clears every job handle and returns them for stopping.
// Used on shutdown.
func (s *Store) StopAllJobs() []JobHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []JobHandle
	for id, h := range s.praise {
		out = append(out, h)
		delete(s.praise, id)
	}
	for id, h := range s.idle {
		out = append(out, h)
		delete(s.idle, id)
	}
	return out
}

func copyStory(st *Story) Story {
	cp := *st
	cp.Narrative = append([]string(nil), st.Narrative...)
	cp.Choices = append([]string(nil), st.Choices...)
	return cp
}
