package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"portfolio/api/internal/apperr"
	"portfolio/api/internal/ids"
	"portfolio/api/internal/media/sniffer"
	"portfolio/api/internal/media/svg"
)

// MediaStore is where validated uploads end up.
type MediaStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, key string) error
}

type UploadInput struct {
	File         io.Reader
	Filename     string
	Size         int64
	DeclaredType string
	// ExpectedKind, when set, restricts the upload to one media kind.
	ExpectedKind string
}

type UploadResult struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	MIME string `json:"mime"`
	Kind string `json:"kind"`
	Size int64  `json:"size"`
}

type UploadService struct {
	store    MediaStore
	maxBytes int64
	reporter *apperr.Reporter
	log      zerolog.Logger
	now      func() time.Time
}

func NewUploadService(store MediaStore, maxBytes int64, reporter *apperr.Reporter, log zerolog.Logger) *UploadService {
	return &UploadService{
		store:    store,
		maxBytes: maxBytes,
		reporter: reporter,
		log:      log,
		now:      time.Now,
	}
}

func (s *UploadService) MaxBytes() int64 {
	return s.maxBytes
}

func (s *UploadService) Upload(ctx context.Context, input UploadInput) (UploadResult, error) {
	if input.File == nil {
		return UploadResult{}, apperr.ValidationField("file", "A file is required.")
	}
	if input.Size > s.maxBytes {
		return UploadResult{}, s.TooLarge()
	}

	var expected sniffer.Kind
	if input.ExpectedKind != "" {
		k, err := sniffer.ParseKind(input.ExpectedKind)
		if err != nil {
			return UploadResult{}, apperr.ValidationField("kind", "Unknown media kind.")
		}
		expected = k
	}

	data, err := io.ReadAll(io.LimitReader(input.File, s.maxBytes+1))
	if err != nil {
		return UploadResult{}, apperr.Backend(fmt.Errorf("read upload: %w", err), "Unable to read the uploaded file. Please try again.")
	}
	if len(data) == 0 {
		return UploadResult{}, apperr.ValidationField("file", "The uploaded file is empty.")
	}
	if int64(len(data)) > s.maxBytes {
		return UploadResult{}, s.TooLarge()
	}

	head := data
	if len(head) > sniffer.HeadSize {
		head = head[:sniffer.HeadSize]
	}
	result, err := sniffer.DetectHead(head)
	if err != nil {
		return UploadResult{}, apperr.ValidationField("file", "Unsupported file type.")
	}
	if !result.Compatible(input.DeclaredType) {
		return UploadResult{}, apperr.ValidationField("file", "The file content does not match its declared type.")
	}
	if expected != "" && result.Kind != expected {
		return UploadResult{}, apperr.ValidationField("file", fmt.Sprintf("Expected a %s file.", expected))
	}

	if result.Type == sniffer.TypeSVG {
		clean, err := svg.Sanitize(data)
		if err != nil {
			return UploadResult{}, apperr.ValidationField("file", "Unsupported file type.")
		}
		data = clean
	}

	key := s.buildObjectKey(result)
	url, err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), result.MIME)
	if err != nil {
		s.reporter.LogError("media.upload", err)
		return UploadResult{}, apperr.Backend(err, "")
	}

	s.log.Info().
		Str("key", key).
		Str("mime", result.MIME).
		Int("size", len(data)).
		Str("filename", input.Filename).
		Msg("media uploaded")

	return UploadResult{
		Key:  key,
		URL:  url,
		MIME: result.MIME,
		Kind: string(result.Kind),
		Size: int64(len(data)),
	}, nil
}

func (s *UploadService) Delete(ctx context.Context, key string) error {
	if err := validateObjectKey(key); err != nil {
		return err
	}
	if err := s.store.Remove(ctx, key); err != nil {
		s.reporter.LogError("media.delete", err)
		return apperr.Backend(err, "")
	}
	s.log.Info().Str("key", key).Msg("media deleted")
	return nil
}

// TooLarge is the error returned when an upload exceeds the size cap.
func (s *UploadService) TooLarge() error {
	return apperr.ValidationField("file", "The file is too large. The limit is "+humanSize(s.maxBytes)+".")
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1<<10:
		return fmt.Sprintf("%d KB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// buildObjectKey lays objects out as <kind>/<yyyy>/<mm>/<dd>/<id>.<ext>.
func (s *UploadService) buildObjectKey(result sniffer.Result) string {
	datePrefix := s.now().UTC().Format("2006/01/02")
	return path.Join(string(result.Kind), datePrefix, ids.New()+"."+result.Ext)
}

var errInvalidKey = apperr.ValidationField("key", "Invalid media key.")

func validateObjectKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || path.Clean(key) != key {
		return errInvalidKey
	}
	prefix, _, ok := strings.Cut(key, "/")
	if !ok {
		return errInvalidKey
	}
	if _, err := sniffer.ParseKind(prefix); err != nil {
		return errInvalidKey
	}
	return nil
}
