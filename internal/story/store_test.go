package story

import (
	"errors"
	"testing"
	"time"
)

func TestCreateOrResetReplacesExistingStory(t *testing.T) {
	s := NewStore()
	s.CreateOrReset("chan", "Once upon a time.")
	if err := s.AppendContinuation("chan", "Then things happened."); err != nil {
		t.Fatal(err)
	}

	s.CreateOrReset("chan", "A brand new tale.")

	st, ok := s.Snapshot("chan")
	if !ok {
		t.Fatal("no story after reset")
	}
	if len(st.Narrative) != 1 || st.Narrative[0] != "A brand new tale." {
		t.Errorf("narrative = %v, want only the new opener", st.Narrative)
	}
	if st.Round != 0 {
		t.Errorf("Round = %d, want 0", st.Round)
	}
}

func TestSnapshotReturnsCopy(t *testing.T) {
	s := NewStore()
	s.CreateOrReset("chan", "Opener.")
	if err := s.SetChoices("chan", []string{"a", "b", "c"}); err != nil {
		t.Fatal(err)
	}

	st, _ := s.Snapshot("chan")
	st.Narrative[0] = "mutated"
	st.Choices[0] = "mutated"

	fresh, _ := s.Snapshot("chan")
	if fresh.Narrative[0] != "Opener." {
		t.Error("snapshot mutation leaked into store narrative")
	}
	if fresh.Choices[0] != "a" {
		t.Error("snapshot mutation leaked into store choices")
	}
}

func TestAppendContinuationNoStory(t *testing.T) {
	s := NewStore()
	if err := s.AppendContinuation("nowhere", "text"); !errors.Is(err, ErrNoActiveStory) {
		t.Errorf("err = %v, want ErrNoActiveStory", err)
	}
}

func TestSetChoicesClearsUserTurn(t *testing.T) {
	s := NewStore()
	s.CreateOrReset("chan", "Opener.")
	if err := s.SetUserTurn("chan", true); err != nil {
		t.Fatal(err)
	}

	if err := s.SetChoices("chan", []string{"a", "b", "c"}); err != nil {
		t.Fatal(err)
	}

	st, _ := s.Snapshot("chan")
	if st.UserTurn {
		t.Error("UserTurn still set after SetChoices")
	}
	if len(st.Choices) != 3 {
		t.Errorf("Choices = %v", st.Choices)
	}
}

func TestSetUserTurnClearsChoices(t *testing.T) {
	s := NewStore()
	s.CreateOrReset("chan", "Opener.")
	if err := s.SetChoices("chan", []string{"a", "b", "c"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendContinuation("chan", "more"); err != nil {
		t.Fatal(err)
	}

	if err := s.SetUserTurn("chan", true); err != nil {
		t.Fatal(err)
	}

	st, _ := s.Snapshot("chan")
	if !st.UserTurn {
		t.Error("UserTurn not set")
	}
	if len(st.Choices) != 0 {
		t.Errorf("Choices = %v, want empty", st.Choices)
	}
	if st.Round != 1 {
		t.Errorf("Round = %d, want untouched", st.Round)
	}
}

func TestResetRound(t *testing.T) {
	s := NewStore()
	s.CreateOrReset("chan", "Opener.")
	s.AppendContinuation("chan", "one")
	s.AppendContinuation("chan", "two")

	if err := s.ResetRound("chan"); err != nil {
		t.Fatal(err)
	}

	st, _ := s.Snapshot("chan")
	if st.Round != 0 {
		t.Errorf("Round = %d, want 0", st.Round)
	}
	if errors.Is(s.ResetRound("nowhere"), ErrNoActiveStory) == false {
		t.Error("ResetRound on missing story did not fail")
	}
}

func TestDropKeepsLastInteraction(t *testing.T) {
	s := NewStore()
	s.CreateOrReset("chan", "Opener.")
	before, ok := s.LastInteraction("chan")
	if !ok {
		t.Fatal("no interaction recorded on create")
	}

	s.Drop("chan")

	if s.HasStory("chan") {
		t.Error("story still present after Drop")
	}
	after, ok := s.LastInteraction("chan")
	if !ok {
		t.Fatal("interaction timestamp lost on Drop")
	}
	if !after.Equal(before) {
		t.Errorf("timestamp changed across Drop: %v != %v", after, before)
	}
}

func TestFullTextJoinsNarrative(t *testing.T) {
	s := NewStore()
	s.CreateOrReset("chan", "One.")
	s.AppendContinuation("chan", "Two.")
	s.AppendContinuation("chan", "Three.")

	st, _ := s.Snapshot("chan")
	if got := st.FullText(); got != "One. Two. Three." {
		t.Errorf("FullText() = %q", got)
	}
}

type stubJob struct{ stopped bool }

func (j *stubJob) Stop() { j.stopped = true }

func TestPraiseJobHandleIdempotent(t *testing.T) {
	s := NewStore()
	first := &stubJob{}
	if !s.SetPraiseJob("chan", first) {
		t.Fatal("first SetPraiseJob refused")
	}
	if s.SetPraiseJob("chan", &stubJob{}) {
		t.Error("second SetPraiseJob accepted, want refusal")
	}

	h, ok := s.ClearPraiseJob("chan")
	if !ok || h != first {
		t.Fatalf("ClearPraiseJob = %v, %v", h, ok)
	}
	if _, ok := s.ClearPraiseJob("chan"); ok {
		t.Error("second ClearPraiseJob reported a handle")
	}
}

func TestStopAllJobsDrainsHandles(t *testing.T) {
	s := NewStore()
	s.SetPraiseJob("a", &stubJob{})
	s.SetIdleJob("a", &stubJob{})
	s.SetPraiseJob("b", &stubJob{})

	handles := s.StopAllJobs()
	if len(handles) != 3 {
		t.Fatalf("StopAllJobs returned %d handles, want 3", len(handles))
	}
	if _, ok := s.ClearPraiseJob("a"); ok {
		t.Error("praise handle survived StopAllJobs")
	}
	if _, ok := s.ClearIdleJob("a"); ok {
		t.Error("idle handle survived StopAllJobs")
	}
}

func TestTouchUpdatesLastInteraction(t *testing.T) {
	s := NewStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	s.now = func() time.Time { return clock }

	s.Touch("chan")
	clock = base.Add(time.Minute)
	s.Touch("chan")

	got, ok := s.LastInteraction("chan")
	if !ok {
		t.Fatal("no interaction recorded")
	}
	if !got.Equal(base.Add(time.Minute)) {
		t.Errorf("LastInteraction = %v, want %v", got, base.Add(time.Minute))
	}
}
