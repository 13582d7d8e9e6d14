package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"glossvoice/internal/answers"
	"glossvoice/internal/bootstrap"
	"glossvoice/internal/config"
	"glossvoice/internal/domain"
	"glossvoice/internal/identity"
	"glossvoice/internal/logging"
	"glossvoice/internal/ports"
	"glossvoice/internal/usecase"
)

const (
	eventSession  = "glossvoice:session"
	eventDeadline = "glossvoice:deadline"
	eventAccepted = "glossvoice:accepted"
	eventError    = "glossvoice:error"
)

type emitFunc func(ctx context.Context, name string, data ...any)

// App is the Wails application root.
type App struct {
	ctx  context.Context
	emit emitFunc

	services   bootstrap.Services
	controller *usecase.SessionController
	playback   ports.Playback
	answers    ports.AnswerStore
	translator ports.Translator
	identity   ports.IdentityResolver
	logger     logging.Logger
	cfg        config.Config
	bootErr    error
}

// AnswerView is one stored answer as shown in the answer list.
type AnswerView struct {
	ID          uint              `json:"id"`
	Value       string            `json:"value"`
	Kind        domain.AnswerKind `json:"kind"`
	Label       string            `json:"label,omitempty"`
	CreatedAtMs int64             `json:"createdAtMs"`
}

// AnswerList is the answer list plus the label the next recording will get.
type AnswerList struct {
	Term           string       `json:"term"`
	Answers        []AnswerView `json:"answers"`
	NextAudioLabel string       `json:"nextAudioLabel"`
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit, logger: logging.NewNop()}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(ctx, a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.controller = services.Controller
	a.playback = services.Playback
	a.answers = services.Answers
	a.translator = services.Translator
	a.identity = services.Identity
	a.logger = services.Logger
	a.cfg = services.Config
	a.SessionStateChanged(a.controller.Status(), domain.SessionReasonIdle)
}

func (a *App) shutdown(_ context.Context) {
	if err := a.services.Close(); err != nil {
		a.logger.Warnf("shutdown: %v", err)
	}
}

// StartRecording asks for the microphone and starts capturing.
func (a *App) StartRecording() (domain.Status, error) {
	return a.command(a.controllerCall((*usecase.SessionController).Start))
}

// StopRecording ends capture and keeps the recording for review.
func (a *App) StopRecording() (domain.Status, error) {
	return a.command(a.controllerCall((*usecase.SessionController).Stop))
}

// DeleteRecording discards the recording awaiting submit.
func (a *App) DeleteRecording() (domain.Status, error) {
	return a.command(a.controllerCall((*usecase.SessionController).Delete))
}

// Submit uploads the pending recording or, when there is none, saves text as
// a typed answer.
func (a *App) Submit(text string) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if a.controller.Status().State == domain.RecordingStateAwaitingSubmit {
		return a.command(func(ctx context.Context) error {
			return a.controller.Submit(ctx, a.resolveIdentity(ctx))
		})
	}
	return a.command(func(ctx context.Context) error {
		return a.saveTypedAnswer(ctx, text)
	})
}

// TogglePlayback plays or stops the pending recording.
func (a *App) TogglePlayback() error {
	_, err := a.command(a.controllerCall((*usecase.SessionController).TogglePlayback))
	return err
}

// GetRecordingDataURL returns the pending recording as a data URL for the
// webview audio element.
func (a *App) GetRecordingDataURL() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	artifact, ok := a.controller.Recording()
	if !ok {
		return "", fmt.Errorf("no recording awaiting submit")
	}
	return artifact.DataURL(), nil
}

// PlayAnswer plays or stops a stored audio answer.
func (a *App) PlayAnswer(url string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if !answers.IsAudioURL(url) {
		return fmt.Errorf("not an audio answer: %q", url)
	}
	if err := a.playback.Toggle(a.ctx, domain.PlaybackSource{URL: url}); err != nil {
		a.SessionError(domain.ErrorCodePlayback, err.Error())
		return err
	}
	return nil
}

// Cancel closes the answer form, discarding any recording.
func (a *App) Cancel() (domain.Status, error) {
	return a.command(a.controllerCall((*usecase.SessionController).Cancel))
}

// Revise re-opens the answer form.
func (a *App) Revise() (domain.Status, error) {
	return a.command(a.controllerCall((*usecase.SessionController).Revise))
}

// IDontKnow discards any recording and stores the "I don't know yet" answer.
func (a *App) IDontKnow() (domain.Status, error) {
	return a.command(func(ctx context.Context) error {
		if err := a.controller.Cancel(ctx); err != nil {
			return err
		}
		answer := a.translator.Translate("iDontKnowYet", "", nil)
		saved, err := a.answers.Append(ctx, a.cfg.Answers.Term, answer)
		if err != nil {
			a.SessionError(domain.ErrorCodeAnswers, err.Error())
			return err
		}
		a.emitAccepted(saved)
		return nil
	})
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		status := domain.Status{State: domain.RecordingStateNotRecording}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return a.controller.Status()
}

// ListAnswers returns the stored answers for the configured term.
func (a *App) ListAnswers() (AnswerList, error) {
	if err := a.requireReady(); err != nil {
		return AnswerList{}, err
	}
	term := a.cfg.Answers.Term
	list, err := a.answers.List(a.ctx, term)
	if err != nil {
		a.SessionError(domain.ErrorCodeAnswers, err.Error())
		return AnswerList{}, err
	}

	views := make([]AnswerView, 0, len(list))
	audioIndex := 0
	for _, answer := range list {
		view := AnswerView{
			ID:          answer.ID,
			Value:       answer.Value,
			Kind:        answer.Kind,
			CreatedAtMs: answer.CreatedAt.UnixMilli(),
		}
		if answer.Kind == domain.AnswerKindAudio {
			audioIndex++
			view.Label = a.audioLabel(audioIndex)
		}
		views = append(views, view)
	}
	return AnswerList{
		Term:           term,
		Answers:        views,
		NextAudioLabel: a.audioLabel(answers.CountAudio(list) + 1),
	}, nil
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"storage":          a.cfg.Storage.Backend,
		"encoding":         a.cfg.Audio.Encoding,
		"term":             a.cfg.Answers.Term,
		"deadlineMs":       strconv.FormatInt(a.cfg.Session.Deadline.Milliseconds(), 10),
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
		"demoMode":         strconv.FormatBool(a.cfg.Identity.DemoMode),
	}
}

func (a *App) command(call func(ctx context.Context) error) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := call(a.ctx); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

func (a *App) controllerCall(method func(*usecase.SessionController, context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return method(a.controller, ctx)
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) saveTypedAnswer(ctx context.Context, text string) error {
	if a.controller.Status().State != domain.RecordingStateNotRecording {
		return fmt.Errorf("cannot save a typed answer while %s", a.controller.Status().State)
	}
	saved, err := a.answers.Append(ctx, a.cfg.Answers.Term, text)
	if err != nil {
		if !errors.Is(err, answers.ErrEmptyAnswer) {
			a.SessionError(domain.ErrorCodeAnswers, err.Error())
		}
		return err
	}
	if err := a.controller.AnswerSaved(ctx); err != nil {
		return err
	}
	a.emitAccepted(saved)
	return nil
}

// resolveIdentity never fails: without a learner the submit either goes to
// the demo directory or is rejected by the coordinator.
func (a *App) resolveIdentity(ctx context.Context) domain.IdentityContext {
	out := domain.IdentityContext{DemoMode: a.cfg.Identity.DemoMode}
	if a.identity == nil {
		return out
	}
	student, err := a.identity.Resolve(ctx)
	if err != nil {
		if !errors.Is(err, identity.ErrNoIdentity) {
			a.logger.Warnf("identity unavailable: %v", err)
		}
		return out
	}
	out.Student = &student
	return out
}

func (a *App) audioLabel(index int) string {
	if a.translator == nil {
		return ""
	}
	return a.translator.Translate("audioDefinition", "Audio definition %{index}", map[string]string{
		"index": strconv.Itoa(index),
	})
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(status domain.Status, reason domain.SessionStateReason) {
	a.send(eventSession, map[string]any{
		"state":           string(status.State),
		"active":          status.Active,
		"startedAtMs":     status.StartedAtMs,
		"deadlineMs":      status.DeadlineMs,
		"questionVisible": status.QuestionVisible,
		"hasRecording":    status.HasRecording,
		"reason":          string(reason),
		"message":         sessionReasonMessage(reason),
	})
}

// DeadlineReached tells the UI the recording hit its time limit.
func (a *App) DeadlineReached() {
	message := "Recording time limit reached."
	if a.translator != nil {
		message = a.translator.Translate("recordingTimeLimitReached", message, nil)
	}
	a.send(eventDeadline, map[string]string{"message": message})
}

// RecordingAccepted stores the uploaded recording URL as an audio answer.
func (a *App) RecordingAccepted(outcome domain.Outcome) {
	if a.answers == nil {
		return
	}
	saved, err := a.answers.Append(a.backgroundCtx(), a.cfg.Answers.Term, outcome.URL)
	if err != nil {
		a.SessionError(domain.ErrorCodeAnswers, err.Error())
		return
	}
	a.emitAccepted(saved)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.send(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) emitAccepted(answer domain.Answer) {
	a.send(eventAccepted, map[string]any{
		"id":          answer.ID,
		"value":       answer.Value,
		"kind":        string(answer.Kind),
		"createdAtMs": answer.CreatedAt.UnixMilli(),
	})
}

func (a *App) send(name string, payload any) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, payload)
}

func (a *App) backgroundCtx() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonIdle:
		return "Ready"
	case domain.SessionReasonAwaitingPermission:
		return "Waiting for microphone access"
	case domain.SessionReasonRecordingStarted:
		return "Recording started"
	case domain.SessionReasonRecordingStopped:
		return "Recording stopped"
	case domain.SessionReasonTimeLimitReached:
		return "Recording stopped at the time limit"
	case domain.SessionReasonRecordingDiscarded:
		return "Recording discarded"
	case domain.SessionReasonRecordingAbandoned:
		return "Recording abandoned before the microphone opened"
	case domain.SessionReasonSavingRecording:
		return "Saving recording..."
	case domain.SessionReasonRecordingSaved:
		return "Recording saved"
	case domain.SessionReasonUploadFailed:
		return "Upload failed; recording kept"
	case domain.SessionReasonPermissionDenied:
		return "Microphone access denied"
	case domain.SessionReasonEncodingFailed:
		return "Recording could not be encoded"
	case domain.SessionReasonCancelled:
		return "Cancelled"
	case domain.SessionReasonAnswerSaved:
		return "Answer saved"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodePermission:
		return "Microphone unavailable"
	case domain.ErrorCodeEncoding:
		return "Encoding failed"
	case domain.ErrorCodeUpload:
		return "Upload failed"
	case domain.ErrorCodePlayback:
		return "Playback failed"
	case domain.ErrorCodeStorage:
		return "Storage unavailable"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeAnswers:
		return "Saving answer failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
