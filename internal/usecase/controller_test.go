package usecase

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"glossvoice/internal/domain"
	"glossvoice/internal/ports"
	"glossvoice/internal/recording"
)

func TestSessionControllerRecordSubmitSuccess(t *testing.T) {
	t.Parallel()

	capture := newFakeCapture()
	submitter := &fakeSubmitter{url: "https://cdn.example.com/a.wav"}
	playback := &fakePlayback{}
	events := &fakeEventSink{}
	clock := newFakeClock()
	controller := newTestController(capture, submitter, playback, events, clock)
	defer controller.Close()

	startAndGrant(t, controller, capture)
	capture.emit([]byte("b1"))
	capture.emit([]byte("b2"))

	if err := controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	status := controller.Status()
	if status.State != domain.RecordingStateAwaitingSubmit || !status.HasRecording {
		t.Fatalf("unexpected status after stop: %+v", status)
	}
	if capture.stream.releases() != 1 {
		t.Fatalf("expected stream released once, got %d", capture.stream.releases())
	}
	if !clock.lastTimer().stopped() {
		t.Fatalf("expected deadline timer to be stopped")
	}

	if err := controller.Submit(context.Background(), domain.IdentityContext{DemoMode: true}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	waitFor(t, func() bool { return len(events.snapshotAccepted()) == 1 })

	accepted := events.snapshotAccepted()[0]
	if accepted.URL != "https://cdn.example.com/a.wav" || accepted.MIMEType != "audio/test" {
		t.Fatalf("unexpected outcome: %+v", accepted)
	}
	req := submitter.lastRequest()
	if !bytes.Equal(req.Artifact.Payload, []byte("b1b2")) {
		t.Fatalf("expected concatenated payload, got %q", req.Artifact.Payload)
	}
	if !req.Identity.DemoMode {
		t.Fatalf("expected identity context to be carried")
	}

	status = controller.Status()
	if status.State != domain.RecordingStateNotRecording || status.HasRecording || status.QuestionVisible {
		t.Fatalf("unexpected final status: %+v", status)
	}
	reasons := events.reasons()
	if reasons[len(reasons)-1] != domain.SessionReasonRecordingSaved {
		t.Fatalf("unexpected final reason: %v", reasons)
	}
	if playback.releaseCount() == 0 {
		t.Fatalf("expected playback to be released after acceptance")
	}
}

func TestSessionControllerDeadlineStopsAndNotifiesAfterState(t *testing.T) {
	t.Parallel()

	capture := newFakeCapture()
	events := &fakeEventSink{}
	clock := newFakeClock()
	controller := newTestController(capture, &fakeSubmitter{}, &fakePlayback{}, events, clock)
	defer controller.Close()

	startAndGrant(t, controller, capture)
	capture.emit([]byte("pcm"))

	timer := clock.lastTimer()
	if timer.after != 5*time.Second {
		t.Fatalf("expected deadline of 5s, got %v", timer.after)
	}
	timer.fire()

	waitFor(t, func() bool { return controller.Status().State == domain.RecordingStateAwaitingSubmit })
	waitFor(t, func() bool { return events.deadlineCount() == 1 })

	log := events.snapshotLog()
	if len(log) < 2 || log[len(log)-2] != "state:"+string(domain.SessionReasonTimeLimitReached) || log[len(log)-1] != "deadline" {
		t.Fatalf("expected time limit state before deadline notice, got %v", log)
	}

	// A manual stop afterwards is a no-op.
	if err := controller.Stop(context.Background()); err != nil {
		t.Fatalf("late stop should be a no-op, got %v", err)
	}
	if events.deadlineCount() != 1 {
		t.Fatalf("expected exactly one deadline notice")
	}
}

func TestSessionControllerAcquireFailure(t *testing.T) {
	t.Parallel()

	capture := newFakeCapture()
	capture.err = &domain.PermissionError{Cause: errors.New("denied")}
	events := &fakeEventSink{}
	controller := newTestController(capture, &fakeSubmitter{}, &fakePlayback{}, events, newFakeClock())
	defer controller.Close()

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, func() bool { return len(events.snapshotErrors()) == 1 })

	if got := events.snapshotErrors()[0]; got.code != domain.ErrorCodePermission {
		t.Fatalf("unexpected error event: %+v", got)
	}
	if status := controller.Status(); status.State != domain.RecordingStateNotRecording {
		t.Fatalf("expected idle after denial, got %+v", status)
	}
}

func TestSessionControllerDeniedAttemptsAreReleased(t *testing.T) {
	t.Parallel()

	capture := newFakeCapture()
	capture.err = &domain.PermissionError{Cause: errors.New("denied")}
	events := &fakeEventSink{}
	controller := newTestController(capture, &fakeSubmitter{}, &fakePlayback{}, events, newFakeClock())
	defer controller.Close()

	for i := 1; i <= 3; i++ {
		if err := controller.Start(context.Background()); err != nil {
			t.Fatalf("start %d failed: %v", i, err)
		}
		want := i
		waitFor(t, func() bool { return len(events.snapshotErrors()) == want })
		waitFor(t, func() bool { return controller.Status().State == domain.RecordingStateNotRecording })
	}

	ctxs := capture.acquireContexts()
	if len(ctxs) != 3 {
		t.Fatalf("expected three acquire calls, got %d", len(ctxs))
	}
	for i, ctx := range ctxs {
		waitFor(t, func() bool { return ctx.Err() != nil })
		if !errors.Is(ctx.Err(), context.Canceled) {
			t.Fatalf("attempt %d context not cancelled: %v", i+1, ctx.Err())
		}
	}
}

func TestSessionControllerStopBeforeGrantAbandons(t *testing.T) {
	t.Parallel()

	capture := newFakeCapture()
	capture.block = true
	events := &fakeEventSink{}
	controller := newTestController(capture, &fakeSubmitter{}, &fakePlayback{}, events, newFakeClock())
	defer controller.Close()

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	capture.waitAcquireCalled(t)

	if err := controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if status := controller.Status(); status.State != domain.RecordingStateNotRecording {
		t.Fatalf("expected idle, got %+v", status)
	}
	waitFor(t, capture.acquireCancelled)

	reasons := events.reasons()
	if reasons[len(reasons)-1] != domain.SessionReasonRecordingAbandoned {
		t.Fatalf("unexpected reasons: %v", reasons)
	}
	if len(events.snapshotErrors()) != 0 {
		t.Fatalf("cancelled acquire must not surface an error: %+v", events.snapshotErrors())
	}
}

func TestSessionControllerReleasesLateGrant(t *testing.T) {
	t.Parallel()

	capture := newFakeCapture()
	capture.gate = make(chan struct{})
	controller := newTestController(capture, &fakeSubmitter{}, &fakePlayback{}, &fakeEventSink{}, newFakeClock())
	defer controller.Close()

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	capture.waitAcquireCalled(t)
	if err := controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	close(capture.gate)
	waitFor(t, func() bool { return capture.stream.releases() == 1 })
	if status := controller.Status(); status.State != domain.RecordingStateNotRecording {
		t.Fatalf("late grant must not revive the session, got %+v", status)
	}
}

func TestSessionControllerUploadFailureRetainsRecording(t *testing.T) {
	t.Parallel()

	capture := newFakeCapture()
	submitter := &fakeSubmitter{err: &domain.UploadError{Cause: errors.New("503")}}
	events := &fakeEventSink{}
	controller := newTestController(capture, submitter, &fakePlayback{}, events, newFakeClock())
	defer controller.Close()

	recordSomething(t, controller, capture)

	if err := controller.Submit(context.Background(), domain.IdentityContext{DemoMode: true}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	waitFor(t, func() bool { return len(events.snapshotErrors()) == 1 })

	if got := events.snapshotErrors()[0]; got.code != domain.ErrorCodeUpload {
		t.Fatalf("unexpected error event: %+v", got)
	}
	status := controller.Status()
	if status.State != domain.RecordingStateAwaitingSubmit || !status.HasRecording || !status.QuestionVisible {
		t.Fatalf("expected retained recording, got %+v", status)
	}

	submitter.setResult("https://cdn.example.com/retry.wav", nil)
	if err := controller.Submit(context.Background(), domain.IdentityContext{DemoMode: true}); err != nil {
		t.Fatalf("retry submit failed: %v", err)
	}
	waitFor(t, func() bool { return len(events.snapshotAccepted()) == 1 })
	if submitter.callCount() != 2 {
		t.Fatalf("expected two upload calls, got %d", submitter.callCount())
	}
}

func TestSessionControllerRejectsCommandsWhileSaving(t *testing.T) {
	t.Parallel()

	capture := newFakeCapture()
	submitter := &fakeSubmitter{url: "https://x/a.wav", gate: make(chan struct{})}
	events := &fakeEventSink{}
	controller := newTestController(capture, submitter, &fakePlayback{}, events, newFakeClock())
	defer controller.Close()

	recordSomething(t, controller, capture)
	if err := controller.Submit(context.Background(), domain.IdentityContext{DemoMode: true}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	for name, call := range map[string]func(context.Context) error{
		"submit": func(ctx context.Context) error { return controller.Submit(ctx, domain.IdentityContext{DemoMode: true}) },
		"delete": controller.Delete,
		"cancel": controller.Cancel,
		"start":  controller.Start,
	} {
		if err := call(context.Background()); !errors.Is(err, recording.ErrInvalidTransition) {
			t.Fatalf("%s while saving: expected ErrInvalidTransition, got %v", name, err)
		}
	}

	close(submitter.gate)
	waitFor(t, func() bool { return len(events.snapshotAccepted()) == 1 })
	if submitter.callCount() != 1 {
		t.Fatalf("expected exactly one upload, got %d", submitter.callCount())
	}
}

func TestSessionControllerDeleteAndPlayback(t *testing.T) {
	t.Parallel()

	capture := newFakeCapture()
	playback := &fakePlayback{}
	events := &fakeEventSink{}
	controller := newTestController(capture, &fakeSubmitter{}, playback, events, newFakeClock())
	defer controller.Close()

	if err := controller.TogglePlayback(context.Background()); !errors.Is(err, recording.ErrInvalidTransition) {
		t.Fatalf("expected playback without recording to fail, got %v", err)
	}

	recordSomething(t, controller, capture)
	if err := controller.TogglePlayback(context.Background()); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if src := playback.lastSource(); src.Artifact == nil || !bytes.Equal(src.Artifact.Payload, []byte("pcm")) {
		t.Fatalf("expected artifact playback source, got %+v", src)
	}

	playback.setErr(errors.New("no output device"))
	if err := controller.TogglePlayback(context.Background()); err == nil {
		t.Fatalf("expected playback error")
	}
	if got := events.snapshotErrors(); len(got) != 1 || got[0].code != domain.ErrorCodePlayback {
		t.Fatalf("expected playback error event, got %+v", got)
	}

	if err := controller.Delete(context.Background()); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	status := controller.Status()
	if status.State != domain.RecordingStateNotRecording || status.HasRecording {
		t.Fatalf("expected discarded recording, got %+v", status)
	}
	if err := controller.Delete(context.Background()); !errors.Is(err, recording.ErrInvalidTransition) {
		t.Fatalf("expected second delete to fail, got %v", err)
	}
}

func TestSessionControllerCancelWhileRecording(t *testing.T) {
	t.Parallel()

	capture := newFakeCapture()
	events := &fakeEventSink{}
	clock := newFakeClock()
	controller := newTestController(capture, &fakeSubmitter{}, &fakePlayback{}, events, clock)
	defer controller.Close()

	startAndGrant(t, controller, capture)
	if err := controller.Cancel(context.Background()); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if capture.stream.releases() != 1 || !clock.lastTimer().stopped() {
		t.Fatalf("expected stream and timer released")
	}
	status := controller.Status()
	if status.State != domain.RecordingStateNotRecording || status.QuestionVisible {
		t.Fatalf("unexpected status after cancel: %+v", status)
	}

	if err := controller.Revise(context.Background()); err != nil {
		t.Fatalf("revise failed: %v", err)
	}
	if !controller.Status().QuestionVisible {
		t.Fatalf("expected question visible after revise")
	}
}

func TestSessionControllerEmptyRecordingIsEncodingError(t *testing.T) {
	t.Parallel()

	capture := newFakeCapture()
	events := &fakeEventSink{}
	controller := newTestController(capture, &fakeSubmitter{}, &fakePlayback{}, events, newFakeClock())
	defer controller.Close()

	startAndGrant(t, controller, capture)
	if err := controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if got := events.snapshotErrors(); len(got) != 1 || got[0].code != domain.ErrorCodeEncoding {
		t.Fatalf("expected encoding error, got %+v", got)
	}
	if status := controller.Status(); status.State != domain.RecordingStateNotRecording {
		t.Fatalf("expected idle after empty recording, got %+v", status)
	}
	if capture.stream.releases() != 1 {
		t.Fatalf("expected stream released")
	}
}

func TestSessionControllerCloseReleasesEverything(t *testing.T) {
	t.Parallel()

	capture := newFakeCapture()
	playback := &fakePlayback{}
	clock := newFakeClock()
	controller := newTestController(capture, &fakeSubmitter{}, playback, &fakeEventSink{}, clock)

	startAndGrant(t, controller, capture)
	if err := controller.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if capture.stream.releases() != 1 || !clock.lastTimer().stopped() {
		t.Fatalf("expected stream and timer released on close")
	}
	if playback.releaseCount() == 0 {
		t.Fatalf("expected playback released on close")
	}
	if err := controller.Start(context.Background()); !errors.Is(err, ErrControllerClosed) {
		t.Fatalf("expected ErrControllerClosed, got %v", err)
	}
	if err := controller.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}

func newTestController(capture *fakeCapture, submitter ports.Submitter, playback ports.Playback, events *fakeEventSink, clock *fakeClock) *SessionController {
	return NewSessionController(capture, concatEncoder{}, submitter, playback, events, clock, nil, Config{
		Deadline:        5 * time.Second,
		QuestionVisible: true,
	})
}

func startAndGrant(t *testing.T, controller *SessionController, capture *fakeCapture) {
	t.Helper()
	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	capture.waitAcquireCalled(t)
	waitFor(t, func() bool { return controller.Status().StartedAtMs != 0 })
}

func recordSomething(t *testing.T, controller *SessionController, capture *fakeCapture) {
	t.Helper()
	startAndGrant(t, controller, capture)
	capture.emit([]byte("pcm"))
	if err := controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if status := controller.Status(); status.State != domain.RecordingStateAwaitingSubmit {
		t.Fatalf("expected awaiting submit, got %+v", status)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

type concatEncoder struct{}

func (concatEncoder) Encode(chunks [][]byte) (domain.Artifact, error) {
	payload := bytes.Join(chunks, nil)
	return domain.Artifact{
		MIMEType:  "audio/test",
		Format:    domain.AudioFormat{SampleRate: 8000, Channels: 1, BitsPerSample: 16},
		Payload:   payload,
		Container: append([]byte("HDR"), payload...),
	}, nil
}

type fakeCapture struct {
	mu        sync.Mutex
	err       error
	block     bool
	gate      chan struct{}
	handler   ports.ChunkHandler
	ctxs      []context.Context
	called    chan struct{}
	cancelled bool
	stream    *fakeStream
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{called: make(chan struct{}, 8), stream: &fakeStream{}}
}

func (f *fakeCapture) Acquire(ctx context.Context, _ ports.AudioConfig, onChunk ports.ChunkHandler) (ports.CaptureStream, error) {
	f.mu.Lock()
	f.handler = onChunk
	f.ctxs = append(f.ctxs, ctx)
	f.mu.Unlock()
	f.called <- struct{}{}

	if f.block {
		<-ctx.Done()
		f.mu.Lock()
		f.cancelled = true
		f.mu.Unlock()
		return nil, &domain.PermissionError{Cause: ctx.Err()}
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func (f *fakeCapture) emit(chunk []byte) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	handler(chunk)
}

func (f *fakeCapture) waitAcquireCalled(t *testing.T) {
	t.Helper()
	select {
	case <-f.called:
	case <-time.After(2 * time.Second):
		t.Fatalf("acquire was never called")
	}
}

func (f *fakeCapture) acquireContexts() []context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]context.Context(nil), f.ctxs...)
}

func (f *fakeCapture) acquireCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

type fakeStream struct {
	mu           sync.Mutex
	releaseCalls int
}

func (f *fakeStream) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls++
	return nil
}

func (f *fakeStream) releases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releaseCalls
}

type fakeSubmitter struct {
	mu    sync.Mutex
	url   string
	err   error
	gate  chan struct{}
	calls int
	last  domain.SubmissionRequest
}

func (f *fakeSubmitter) Submit(ctx context.Context, req domain.SubmissionRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.last = req
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, f.err
}

func (f *fakeSubmitter) setResult(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url, f.err = url, err
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSubmitter) lastRequest() domain.SubmissionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type fakePlayback struct {
	mu       sync.Mutex
	err      error
	sources  []domain.PlaybackSource
	releases int
}

func (f *fakePlayback) Toggle(_ context.Context, src domain.PlaybackSource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, src)
	return f.err
}

func (f *fakePlayback) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	return nil
}

func (f *fakePlayback) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakePlayback) lastSource() domain.PlaybackSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sources) == 0 {
		return domain.PlaybackSource{}
	}
	return f.sources[len(f.sources)-1]
}

func (f *fakePlayback) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) AfterFunc(d time.Duration, fn func()) ports.Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	timer := &fakeTimer{after: d, fn: fn}
	f.timers = append(f.timers, timer)
	return timer
}

func (f *fakeClock) lastTimer() *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.timers) == 0 {
		return &fakeTimer{}
	}
	return f.timers[len(f.timers)-1]
}

type fakeTimer struct {
	mu        sync.Mutex
	after     time.Duration
	fn        func()
	isStopped bool
}

func (f *fakeTimer) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	wasActive := !f.isStopped
	f.isStopped = true
	return wasActive
}

func (f *fakeTimer) stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isStopped
}

func (f *fakeTimer) fire() {
	f.mu.Lock()
	fn, stopped := f.fn, f.isStopped
	f.mu.Unlock()
	if !stopped && fn != nil {
		fn()
	}
}

type fakeEventSink struct {
	mu sync.Mutex

	log       []string
	states    []stateEvent
	errors    []errEvent
	accepted  []domain.Outcome
	deadlines int
}

type stateEvent struct {
	status domain.Status
	reason domain.SessionStateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) SessionStateChanged(status domain.Status, reason domain.SessionStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{status: status, reason: reason})
	f.log = append(f.log, "state:"+string(reason))
}

func (f *fakeEventSink) DeadlineReached() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadlines++
	f.log = append(f.log, "deadline")
}

func (f *fakeEventSink) RecordingAccepted(outcome domain.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, outcome)
	f.log = append(f.log, "accepted")
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
	f.log = append(f.log, "error:"+string(code))
}

func (f *fakeEventSink) reasons() []domain.SessionStateReason {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.SessionStateReason, 0, len(f.states))
	for _, state := range f.states {
		out = append(out, state.reason)
	}
	return out
}

func (f *fakeEventSink) snapshotLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errEvent(nil), f.errors...)
}

func (f *fakeEventSink) snapshotAccepted() []domain.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Outcome(nil), f.accepted...)
}

func (f *fakeEventSink) deadlineCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deadlines
}
