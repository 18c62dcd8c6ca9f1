package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"voxbridge/internal/dispatch"
	"voxbridge/internal/engine"
	"voxbridge/internal/logging"
	"voxbridge/internal/notifications"
	"voxbridge/internal/services"
	"voxbridge/internal/session"
)

const notifyTimeout = 10 * time.Second

// Transcribe converts one file in single-item mode. Progress messages are
// delivered on the loop goroutine. A non-completed outcome is returned
// together with its error. Cancelling ctx cancels the session; a running
// engine call still finishes and its result is discarded.
func (a *App) Transcribe(ctx context.Context, path, engineID string, onProgress func(string)) (session.Outcome, error) {
	if strings.TrimSpace(engineID) == "" {
		engineID = a.cfg.Engines.DefaultRecognizer
	}
	if _, err := a.engines.Lookup(engineID); err != nil {
		return session.Outcome{State: session.StateFailed, Err: err}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		err = services.Wrap(services.ErrValidation, "app", "transcribe", path, err)
		return session.Outcome{State: session.StateRejected, Err: err}, err
	}

	jobID := uuid.NewString()
	sess := session.New(a.sessionOptions(engineID), jobID, abs)
	done := make(chan session.Outcome, 1)
	runCtx := services.WithRequestID(context.WithoutCancel(ctx), jobID)
	a.loop.Post(func() {
		_ = sess.Start(runCtx, session.Callbacks{
			OnProgress: onProgress,
			OnDone:     func(out session.Outcome) { done <- out },
		})
	})

	var out session.Outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		a.loop.Post(sess.Cancel)
		out = <-done
	}
	if out.State == session.StateCompleted {
		return out, nil
	}
	if out.State == session.StateFailed {
		a.notifyError(fmt.Sprintf("transcribing %s", filepath.Base(abs)), out.Err)
	}
	return out, out.Err
}

// Speak synthesizes text on the synthesis lane and returns the written audio.
func (a *App) Speak(ctx context.Context, req session.SpeechRequest, onProgress func(string)) (engine.Audio, error) {
	if strings.TrimSpace(req.EngineID) == "" {
		req.EngineID = a.cfg.Engines.DefaultSynthesizer
	}
	if _, err := a.engines.Lookup(req.EngineID); err != nil {
		return engine.Audio{}, err
	}

	type result struct {
		audio engine.Audio
		err   error
	}
	done := make(chan result, 1)
	handles := make(chan *dispatch.Handle, 1)
	a.loop.Post(func() {
		handle, err := session.Speak(context.WithoutCancel(ctx), a.dispatcher, a.engines, req, onProgress,
			func(audio engine.Audio, err error) { done <- result{audio, err} })
		if err != nil {
			done <- result{err: err}
		}
		handles <- handle
	})

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		if handle := <-handles; handle != nil {
			handle.Cancel()
		}
		res = <-done
	}
	if res.err != nil && services.Classify(res.err) != services.KindValidation {
		a.notifyError("speech synthesis", res.err)
	}
	return res.audio, res.err
}

// PullModel downloads a model into the local store on a lane-less worker.
func (a *App) PullModel(ctx context.Context, modelID string, onProgress func(string)) (string, error) {
	type result struct {
		dir string
		err error
	}
	done := make(chan result, 1)
	progress := func(msg string) {
		if onProgress != nil {
			a.loop.Post(func() { onProgress(msg) })
		}
	}
	_, err := a.dispatcher.Submit(ctx, dispatch.Task{
		Name: "pull " + modelID,
		Run: func(ctx context.Context) (any, error) {
			return a.models.Pull(ctx, modelID, progress)
		},
		Done: func(value any, err error) {
			dir, _ := value.(string)
			done <- result{dir, err}
		},
	})
	if err != nil {
		return "", err
	}
	res := <-done
	if res.err != nil {
		a.notifyError("model download "+modelID, res.err)
	}
	return res.dir, res.err
}

// InstalledModels lists the models present in the local store.
func (a *App) InstalledModels() ([]engine.InstalledModel, error) {
	return engine.NewStore(a.cfg.Paths.ModelsDir).List()
}

// RecommendedModels lists the model catalog with local install state.
func (a *App) RecommendedModels() []engine.RecommendedModel {
	return a.models.Recommended()
}

func (a *App) notifyError(label string, err error) {
	if err == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if nerr := a.notifier.Publish(ctx, notifications.EventError, notifications.Payload{
		"context": label,
		"error":   services.Message(err),
	}); nerr != nil {
		a.logger.Debug("error notification failed", logging.Error(nerr))
	}
}
