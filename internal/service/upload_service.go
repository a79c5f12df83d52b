package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/rs/zerolog"

	"github.com/lucasfragadev/gym-dev/internal/apperr"
	"github.com/lucasfragadev/gym-dev/internal/ids"
	"github.com/lucasfragadev/gym-dev/internal/media/sniffer"
	"github.com/lucasfragadev/gym-dev/internal/models"
)

const DefaultMaxPhotoBytes = 5 << 20

var photoTypes = map[sniffer.MediaType]bool{
	sniffer.TypeJPEG: true,
	sniffer.TypePNG:  true,
	sniffer.TypeWEBP: true,
}

type PhotoInput struct {
	UserID string
	File   io.Reader
	// DeclaredType is the part's Content-Type; empty or octet-stream skips
	// the consistency check.
	DeclaredType string
}

type PhotoResult struct {
	Profile models.Profile
	URL     string
}

type PhotoService struct {
	users    UserStore
	store    ObjectPutter
	maxBytes int64
	log      zerolog.Logger
}

func NewPhotoService(users UserStore, store ObjectPutter, maxBytes int64, log zerolog.Logger) *PhotoService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPhotoBytes
	}
	return &PhotoService{users: users, store: store, maxBytes: maxBytes, log: log}
}

func (s *PhotoService) MaxBytes() int64 { return s.maxBytes }

// Upload replaces the caller's profile photo.
func (s *PhotoService) Upload(ctx context.Context, input PhotoInput) (PhotoResult, error) {
	if input.File == nil {
		return PhotoResult{}, apperr.Invalid("file is required")
	}

	data, err := io.ReadAll(io.LimitReader(input.File, s.maxBytes+1))
	if err != nil {
		return PhotoResult{}, apperr.Invalid("could not read upload")
	}
	if len(data) == 0 {
		return PhotoResult{}, apperr.Invalid("empty file")
	}
	if int64(len(data)) > s.maxBytes {
		return PhotoResult{}, apperr.Invalid(fmt.Sprintf("photo exceeds %d bytes", s.maxBytes))
	}

	head := data
	if len(head) > sniffer.HeadSize {
		head = head[:sniffer.HeadSize]
	}
	detected, err := sniffer.DetectHead(head)
	if err != nil || !photoTypes[detected.Type] {
		return PhotoResult{}, apperr.Invalid("photo must be JPEG, PNG or WEBP")
	}
	if declared := input.DeclaredType; declared != "" && declared != "application/octet-stream" && declared != detected.MIME {
		return PhotoResult{}, apperr.Invalid(fmt.Sprintf("content type mismatch: declared %s, actual %s", declared, detected.MIME))
	}

	user, err := loadActive(ctx, s.users, input.UserID)
	if err != nil {
		return PhotoResult{}, err
	}

	key := path.Join(user.GymID, user.ID, ids.New()+"."+detected.Ext())
	if err := s.store.PutObject(ctx, key, bytes.NewReader(data), int64(len(data)), detected.MIME); err != nil {
		return PhotoResult{}, apperr.Unexpected(err)
	}
	if err := s.users.UpdatePhoto(ctx, user.ID, key); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Str("object_key", key).Msg("photo stored but profile update failed")
		return PhotoResult{}, apperr.Unexpected(err)
	}
	user.PhotoKey = &key

	return PhotoResult{
		Profile: user.Profile(),
		URL:     s.store.PublicURL(key),
	}, nil
}
