package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"glossvoice/internal/domain"
	"glossvoice/internal/logging"
	"glossvoice/internal/ports"
	"glossvoice/internal/recording"
)

var ErrControllerClosed = errors.New("session controller closed")

const inboxSize = 64

// Config controls recording behavior.
type Config struct {
	Audio           ports.AudioConfig
	Deadline        time.Duration
	QuestionVisible bool
}

// SessionController hosts the recording state machine. Every event, whether
// it comes from the UI, the capture device, the deadline timer or an upload,
// is handled on a single loop goroutine, so the session is never touched
// concurrently.
type SessionController struct {
	machine   recording.Machine
	capture   ports.CaptureDevice
	submitter ports.Submitter
	playback  ports.Playback
	events    ports.EventSink
	clock     ports.Clock
	logger    logging.Logger
	cfg       Config

	inbox     chan envelope
	closing   chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	baseCtx    context.Context
	cancelBase context.CancelFunc

	statusMu sync.RWMutex
	status   domain.Status
	artifact *domain.Artifact

	// Owned by the loop goroutine.
	session recording.Session
	current *attemptResources
	orphans map[uint64]ports.CaptureStream
}

type attemptResources struct {
	attempt uint64
	cancel  context.CancelFunc
	stream  ports.CaptureStream
	timer   ports.Timer
}

type envelope struct {
	event  recording.Event
	reply  chan error
	stream ports.CaptureStream
}

// grantEvent carries a freshly opened stream to the loop before the machine
// sees the matching AcquireSucceeded.
type grantEvent struct {
	recording.AcquireSucceeded
}

func NewSessionController(
	capture ports.CaptureDevice,
	encoder ports.Encoder,
	submitter ports.Submitter,
	playback ports.Playback,
	events ports.EventSink,
	clock ports.Clock,
	logger logging.Logger,
	cfg Config,
) *SessionController {
	if clock == nil {
		clock = RealClock()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	machine := recording.NewMachine(encoder, cfg.Deadline)
	cfg.Deadline = machine.Deadline

	baseCtx, cancel := context.WithCancel(context.Background())
	c := &SessionController{
		machine:    machine,
		capture:    capture,
		submitter:  submitter,
		playback:   playback,
		events:     events,
		clock:      clock,
		logger:     logger,
		cfg:        cfg,
		inbox:      make(chan envelope, inboxSize),
		closing:    make(chan struct{}),
		loopDone:   make(chan struct{}),
		baseCtx:    baseCtx,
		cancelBase: cancel,
		session:    recording.NewSession(cfg.QuestionVisible),
		orphans:    make(map[uint64]ports.CaptureStream),
	}
	c.status = c.session.Status(cfg.Deadline)
	go c.run()
	return c
}

// Start requests the microphone and begins a new capture session.
func (c *SessionController) Start(ctx context.Context) error {
	return c.send(ctx, recording.StartRequested{})
}

// Stop ends capture. Stopping before the device grant abandons the attempt.
func (c *SessionController) Stop(ctx context.Context) error {
	return c.send(ctx, recording.StopRequested{})
}

// Delete discards a recording awaiting submit.
func (c *SessionController) Delete(ctx context.Context) error {
	return c.send(ctx, recording.DeleteRequested{})
}

// Submit uploads the recording awaiting submit. It returns once the upload
// has been started; the outcome arrives through the event sink.
func (c *SessionController) Submit(ctx context.Context, identity domain.IdentityContext) error {
	return c.send(ctx, recording.SubmitRequested{Identity: identity, At: c.clock.Now()})
}

// TogglePlayback plays or stops the current recording.
func (c *SessionController) TogglePlayback(ctx context.Context) error {
	return c.send(ctx, recording.PlaybackRequested{})
}

// Cancel releases everything the session holds and hides the question.
func (c *SessionController) Cancel(ctx context.Context) error {
	return c.send(ctx, recording.CancelRequested{})
}

// Revise shows the question again.
func (c *SessionController) Revise(ctx context.Context) error {
	return c.send(ctx, recording.ReviseRequested{})
}

// AnswerSaved closes the question after a typed answer was stored.
func (c *SessionController) AnswerSaved(ctx context.Context) error {
	return c.send(ctx, recording.AnswerSaved{})
}

// Status returns the last published session status.
func (c *SessionController) Status() domain.Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

// Recording returns the artifact awaiting submit, if any.
func (c *SessionController) Recording() (domain.Artifact, bool) {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	if c.artifact == nil {
		return domain.Artifact{}, false
	}
	return *c.artifact, true
}

// Close stops the loop and releases the device, timer and playback. Uploads in
// flight are cancelled and their results dropped.
func (c *SessionController) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
	})
	<-c.loopDone
	return nil
}

func (c *SessionController) send(ctx context.Context, ev recording.Event) error {
	reply := make(chan error, 1)
	select {
	case c.inbox <- envelope{event: ev, reply: reply}:
	case <-c.closing:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.loopDone:
		return ErrControllerClosed
	}
}

// post delivers an asynchronous event. It gives up once done is closed.
func (c *SessionController) post(env envelope, done <-chan struct{}) bool {
	select {
	case c.inbox <- env:
		return true
	case <-done:
		return false
	case <-c.closing:
		return false
	}
}

func (c *SessionController) run() {
	defer close(c.loopDone)
	for {
		select {
		case env := <-c.inbox:
			err := c.handle(env)
			if env.reply != nil {
				env.reply <- err
			}
		case <-c.closing:
			c.shutdown()
			return
		}
	}
}

func (c *SessionController) handle(env envelope) error {
	ev := env.event
	if grant, ok := ev.(grantEvent); ok {
		c.adoptStream(grant.Attempt, env.stream)
		ev = grant.AcquireSucceeded
	}

	next, effects, err := c.machine.Transition(c.session, ev)
	if err != nil {
		return err
	}
	c.session = next
	c.publishStatus()
	return c.execute(effects)
}

func (c *SessionController) adoptStream(attempt uint64, stream ports.CaptureStream) {
	if c.current != nil && c.current.attempt == attempt && c.current.stream == nil {
		c.current.stream = stream
		return
	}
	c.orphans[attempt] = stream
}

func (c *SessionController) execute(effects []recording.Effect) error {
	var result error
	for _, effect := range effects {
		switch e := effect.(type) {
		case recording.AcquireDevice:
			c.acquire(e.Attempt)
		case recording.CancelAcquire:
			c.releaseAttempt(e.Attempt)
		case recording.ReleaseDevice:
			c.releaseAttempt(e.Attempt)
		case recording.ArmDeadline:
			c.armDeadline(e.Attempt, e.After)
		case recording.DisarmDeadline:
			if c.current != nil && c.current.attempt == e.Attempt && c.current.timer != nil {
				c.current.timer.Stop()
				c.current.timer = nil
			}
		case recording.EmitState:
			c.events.SessionStateChanged(c.Status(), e.Reason)
		case recording.NotifyDeadline:
			c.events.DeadlineReached()
		case recording.EmitError:
			c.logger.Warnf("session error code=%s: %v", e.Code, e.Err)
			c.events.SessionError(e.Code, e.Err.Error())
		case recording.Upload:
			c.upload(e.Request)
		case recording.EmitAccepted:
			c.logger.Infof("recording accepted url=%s", e.Outcome.URL)
			c.events.RecordingAccepted(e.Outcome)
		case recording.TogglePlayback:
			if err := c.togglePlayback(e.Source); err != nil && result == nil {
				result = err
			}
		case recording.ReleasePlayback:
			c.releasePlayback()
		default:
			c.logger.Errorf("unhandled effect %T", effect)
		}
	}
	return result
}

func (c *SessionController) acquire(attempt uint64) {
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.current = &attemptResources{attempt: attempt, cancel: cancel}

	// Release cancels ctx before closing the stream, so a callback stuck on a
	// full inbox returns instead of blocking the stream shutdown.
	onChunk := func(chunk []byte) {
		c.post(envelope{event: recording.ChunkReceived{Attempt: attempt, Data: chunk}}, ctx.Done())
	}

	go func() {
		stream, err := c.capture.Acquire(ctx, c.cfg.Audio, onChunk)
		if err != nil {
			c.post(envelope{event: recording.AcquireFailed{Attempt: attempt, Err: err}}, nil)
			return
		}
		grant := grantEvent{recording.AcquireSucceeded{Attempt: attempt, At: c.clock.Now()}}
		if !c.post(envelope{event: grant, stream: stream}, nil) {
			_ = stream.Release()
		}
	}()
}

func (c *SessionController) releaseAttempt(attempt uint64) {
	if stream, ok := c.orphans[attempt]; ok {
		delete(c.orphans, attempt)
		c.releaseStream(stream)
	}
	if c.current == nil || c.current.attempt != attempt {
		return
	}
	res := c.current
	c.current = nil
	if res.timer != nil {
		res.timer.Stop()
	}
	res.cancel()
	if res.stream != nil {
		c.releaseStream(res.stream)
	}
}

func (c *SessionController) releaseStream(stream ports.CaptureStream) {
	if err := stream.Release(); err != nil {
		c.logger.Warnf("failed to release capture stream: %v", err)
		c.events.SessionError(domain.ErrorCodeAudioStop, "failed to stop audio capture cleanly")
	}
}

func (c *SessionController) armDeadline(attempt uint64, after time.Duration) {
	if c.current == nil || c.current.attempt != attempt {
		return
	}
	if c.current.timer != nil {
		c.current.timer.Stop()
	}
	c.current.timer = c.clock.AfterFunc(after, func() {
		c.post(envelope{event: recording.DeadlineElapsed{Attempt: attempt}}, nil)
	})
}

func (c *SessionController) upload(req domain.SubmissionRequest) {
	ctx := c.baseCtx
	go func() {
		if c.submitter == nil {
			c.post(envelope{event: recording.UploadFailed{Attempt: req.Attempt, Err: errors.New("no storage configured")}}, nil)
			return
		}
		url, err := c.submitter.Submit(ctx, req)
		if err != nil {
			c.post(envelope{event: recording.UploadFailed{Attempt: req.Attempt, Err: err}}, nil)
			return
		}
		c.post(envelope{event: recording.UploadSucceeded{Attempt: req.Attempt, URL: url}}, nil)
	}()
}

func (c *SessionController) togglePlayback(src domain.PlaybackSource) error {
	if c.playback == nil {
		return errors.New("playback unavailable")
	}
	if err := c.playback.Toggle(c.baseCtx, src); err != nil {
		c.events.SessionError(domain.ErrorCodePlayback, err.Error())
		return fmt.Errorf("toggle playback: %w", err)
	}
	return nil
}

func (c *SessionController) releasePlayback() {
	if c.playback == nil {
		return
	}
	if err := c.playback.Release(); err != nil {
		c.logger.Warnf("failed to release playback: %v", err)
	}
}

func (c *SessionController) publishStatus() {
	status := c.session.Status(c.cfg.Deadline)
	c.statusMu.Lock()
	c.status = status
	c.artifact = c.session.Artifact
	c.statusMu.Unlock()
}

func (c *SessionController) shutdown() {
	c.cancelBase()
	if c.current != nil {
		c.releaseAttempt(c.current.attempt)
	}
	for attempt, stream := range c.orphans {
		delete(c.orphans, attempt)
		c.releaseStream(stream)
	}
	c.releasePlayback()
	c.logger.Infof("session controller closed")
}
