package domain

import "testing"

func TestStageMarkProcessingResetsAttemptState(t *testing.T) {
	s := &Stage{Name: "video", Status: StageStatusPending}

	s.MarkProcessing()
	if s.Status != StageStatusProcessing || s.Attempt != 1 {
		t.Fatalf("after first attempt: status=%s attempt=%d", s.Status, s.Attempt)
	}

	s.AdvanceProgress(60)
	s.MarkFailed(NewRetryableError(ErrKindUpstream, "boom"))

	s.MarkProcessing()
	if s.Attempt != 2 {
		t.Errorf("expected attempt 2, got %d", s.Attempt)
	}
	if s.Progress != 0 {
		t.Errorf("retry must reset progress, got %d", s.Progress)
	}
	if s.ErrorKind != "" || s.ErrorMessage != "" {
		t.Error("retry must clear previous error")
	}
}

func TestStageAdvanceProgressMonotonic(t *testing.T) {
	s := &Stage{}

	s.AdvanceProgress(40)
	s.AdvanceProgress(20) // откат игнорируется
	if s.Progress != 40 {
		t.Errorf("expected 40, got %d", s.Progress)
	}

	s.AdvanceProgress(150)
	if s.Progress != 100 {
		t.Errorf("expected clamp to 100, got %d", s.Progress)
	}
}

func TestStageCanRetry(t *testing.T) {
	s := &Stage{}

	s.MarkProcessing() // attempt 1
	if !s.CanRetry(3) {
		t.Error("attempt 1 of 3 must allow retry")
	}
	s.MarkProcessing() // attempt 2
	s.MarkProcessing() // attempt 3
	if s.CanRetry(3) {
		t.Error("attempt 3 of 3 must not allow retry")
	}
}

func TestJobTerminalTransitions(t *testing.T) {
	j := &Job{Status: JobStatusPending}
	if j.IsFinished() {
		t.Error("pending job is not finished")
	}

	j.MarkProcessing("worker-1")
	if j.WorkerID != "worker-1" {
		t.Errorf("expected worker-1, got %q", j.WorkerID)
	}

	j.MarkCompleted("https://cdn.example.com/v.mp4")
	if !j.IsFinished() || j.OutputURL == "" || j.WorkerID != "" {
		t.Errorf("completed job: %+v", j)
	}
}

func TestAsStageErrorDefaultsToRetryableInternal(t *testing.T) {
	serr := AsStageError(errUnclassified)
	if serr.Kind != ErrKindInternal || !serr.Retryable {
		t.Errorf("expected retryable INTERNAL, got %s retryable=%v", serr.Kind, serr.Retryable)
	}
}

var errUnclassified = errTest("something odd")

type errTest string

func (e errTest) Error() string { return string(e) }
