package usecase

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"glossvoice/internal/domain"
	"glossvoice/internal/logging"
	"glossvoice/internal/ports"
)

const (
	defaultUploadTimeout = 30 * time.Second
	recordingBaseName    = "recording"
)

var ErrInvalidIdentity = errors.New("no valid learner identity for upload")

// SubmissionConfig controls where and how recordings are stored.
type SubmissionConfig struct {
	Prefix        string
	DemoDirectory string
	CacheControl  string
	Timeout       time.Duration
}

// SubmissionCoordinator uploads finished recordings to object storage.
type SubmissionCoordinator struct {
	store  ports.ObjectStore
	cfg    SubmissionConfig
	logger logging.Logger
	newID  func() string
}

func NewSubmissionCoordinator(store ports.ObjectStore, cfg SubmissionConfig, logger logging.Logger) *SubmissionCoordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultUploadTimeout
	}
	if strings.TrimSpace(cfg.DemoDirectory) == "" {
		cfg.DemoDirectory = "demo"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SubmissionCoordinator{
		store:  store,
		cfg:    cfg,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// Submit stores req.Artifact and returns its URL. Every failure is a
// *domain.UploadError. There is no retry.
func (s *SubmissionCoordinator) Submit(ctx context.Context, req domain.SubmissionRequest) (string, error) {
	data := req.Artifact.Encoded()
	if len(data) == 0 {
		return "", &domain.UploadError{Cause: errors.New("recording has no encoded audio")}
	}

	directory, err := s.directory(req.Identity)
	if err != nil {
		return "", &domain.UploadError{Cause: err}
	}

	opts := ports.StoreOptions{
		Directory:    directory,
		Filename:     s.newID() + "-" + recordingBaseName + "." + req.Artifact.Extension(),
		ContentType:  req.Artifact.MIMEType,
		CacheControl: s.cfg.CacheControl,
		Metadata:     metadata(req),
	}
	if student := req.Identity.Student; student != nil {
		opts.Token = student.Token
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	started := time.Now()
	url, err := s.store.Store(ctx, data, opts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("upload timed out after %s: %w", s.cfg.Timeout, err)
		}
		s.logger.Warnf("recording upload failed attempt=%d: %v", req.Attempt, err)
		return "", &domain.UploadError{Cause: err}
	}
	if strings.TrimSpace(url) == "" {
		return "", &domain.UploadError{Cause: errors.New("storage returned no url")}
	}

	s.logger.Infof("recording uploaded attempt=%d bytes=%d elapsed=%s url=%s",
		req.Attempt, len(data), time.Since(started).Round(time.Millisecond), url)
	return url, nil
}

// directory files student uploads under <prefix>/<source>/<context>/<user> and
// demo uploads under <prefix>/<demo directory>.
func (s *SubmissionCoordinator) directory(identity domain.IdentityContext) (string, error) {
	if student := identity.Student; student != nil {
		parts := []string{student.Source, student.ContextID, student.UserID}
		for _, part := range parts {
			if strings.TrimSpace(part) == "" || strings.Contains(part, "/") || part == ".." {
				return "", ErrInvalidIdentity
			}
		}
		return path.Join(append([]string{s.cfg.Prefix}, parts...)...), nil
	}
	if identity.DemoMode {
		return path.Join(s.cfg.Prefix, s.cfg.DemoDirectory), nil
	}
	return "", ErrInvalidIdentity
}

func metadata(req domain.SubmissionRequest) map[string]string {
	meta := map[string]string{
		"attempt":     strconv.FormatUint(req.Attempt, 10),
		"duration-ms": strconv.FormatInt(req.Artifact.Duration().Milliseconds(), 10),
	}
	if !req.RequestedAt.IsZero() {
		meta["requested-at"] = req.RequestedAt.UTC().Format(time.RFC3339)
	}
	if student := req.Identity.Student; student != nil {
		meta["source"] = student.Source
		meta["context-id"] = student.ContextID
		meta["user-id"] = student.UserID
	} else {
		meta["demo"] = "true"
	}
	return meta
}
