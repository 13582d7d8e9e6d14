package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"glossvoice/internal/answers"
	"glossvoice/internal/audio"
	"glossvoice/internal/config"
	"glossvoice/internal/identity"
	"glossvoice/internal/logging"
	"glossvoice/internal/ports"
	"glossvoice/internal/storage"
	"glossvoice/internal/translate"
	"glossvoice/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Playback   *usecase.PlaybackController
	Answers    *answers.Repository
	Translator ports.Translator
	Identity   ports.IdentityResolver
	Config     config.Config
	Logger     logging.Logger
}

// Build wires all backend dependencies for the current runtime.
func Build(ctx context.Context, eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	logger, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Path:    cfg.Log.Path,
		Console: cfg.Log.Console,
	})
	if err != nil {
		return Services{}, fmt.Errorf("failed to open log: %w", err)
	}

	catalog, err := translate.NewCatalog(cfg.Translate.CatalogPath)
	if err != nil {
		return Services{}, err
	}

	store, err := storage.Open(ctx, storage.Options{
		Backend:         cfg.Storage.Backend,
		Bucket:          cfg.Storage.Bucket,
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		BaseURL:         cfg.Storage.BaseURL,
		PublicURLBase:   cfg.Storage.PublicURLBase,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		CredentialsFile: cfg.Storage.CredentialsFile,
	}, logger.With("component", "storage"))
	if err != nil {
		return Services{}, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	fetcherOpts := storage.FetcherOptions{
		CacheSize: cfg.Playback.CacheSize,
		Timeout:   cfg.Playback.FetchTimeout,
	}
	if local, ok := store.(ports.Fetcher); ok {
		fetcherOpts.Local = local
	}
	fetcher, err := storage.NewFetcher(fetcherOpts, logger.With("component", "fetcher"))
	if err != nil {
		return Services{}, err
	}

	repo, err := answers.Open(cfg.Answers.Path)
	if err != nil {
		return Services{}, err
	}

	playback := usecase.NewPlaybackController(
		fetcher,
		audio.NewDecoder(),
		audio.NewFFPlayPlayer(cfg.Playback.Command, logger.With("component", "player")),
		logger.With("component", "playback"),
	)

	controller := usecase.NewSessionController(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand, logger.With("component", "capture")),
		audio.NewWAVEncoder(cfg.Audio.SampleRate, cfg.Audio.Channels, audio.Encoding(cfg.Audio.Encoding)),
		usecase.NewSubmissionCoordinator(store, usecase.SubmissionConfig{
			Prefix:        cfg.Storage.Prefix,
			DemoDirectory: cfg.Storage.DemoDirectory,
			CacheControl:  cfg.Storage.CacheControl,
			Timeout:       cfg.Session.UploadTimeout,
		}, logger.With("component", "submission")),
		playback,
		eventSink,
		usecase.RealClock(),
		logger.With("component", "session"),
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
				ChunkSize:   cfg.Audio.ChunkSize,
			},
			Deadline:        cfg.Session.Deadline,
			QuestionVisible: true,
		},
	)

	logger.Infof("services ready: storage=%s encoding=%s term=%s", cfg.Storage.Backend, cfg.Audio.Encoding, cfg.Answers.Term)
	return Services{
		Controller: controller,
		Playback:   playback,
		Answers:    repo,
		Translator: catalog,
		Identity:   identity.NewJWTResolver(cfg.Identity.Token, cfg.Identity.Secret),
		Config:     cfg,
		Logger:     logger,
	}, nil
}

// Close shuts the graph down in reverse dependency order.
func (s Services) Close() error {
	var errs []error
	if s.Controller != nil {
		errs = append(errs, s.Controller.Close())
	}
	if s.Playback != nil {
		errs = append(errs, s.Playback.Release())
	}
	if s.Answers != nil {
		errs = append(errs, s.Answers.Close())
	}
	if s.Logger != nil {
		_ = s.Logger.Sync()
	}
	return errors.Join(errs...)
}
