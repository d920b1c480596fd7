package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/shipnest/apiserver/internal/auth"
	"github.com/shipnest/apiserver/internal/avatar"
	"github.com/shipnest/apiserver/internal/events"
	"github.com/shipnest/apiserver/internal/storage"
	"github.com/shipnest/apiserver/internal/store"
	"github.com/shipnest/apiserver/types"
	"go.uber.org/zap"
)

var (
	ErrEmailTaken       = errors.New("email already registered")
	ErrUnknownEmail     = errors.New("unknown email")
	ErrWrongPassword    = errors.New("wrong password")
	ErrImagesDisabled   = errors.New("image uploads are not configured")
	ErrUnsupportedImage = errors.New("unsupported image type")
)

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo   UserRepository
	hasher *auth.Hasher
	events events.Publisher
	images *storage.Storage
	logger *zap.Logger
}

// NewUserService wires the service. publisher may be nil, as may images when
// uploads are not configured.
func NewUserService(repo UserRepository, hasher *auth.Hasher, publisher events.Publisher, images *storage.Storage, logger *zap.Logger) *UserService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		repo:   repo,
		hasher: hasher,
		events: publisher,
		images: images,
		logger: logger,
	}
}

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// Register creates an account with a hashed password and a Gravatar image.
// The email pre-check is not atomic; the store's unique index catches the
// race and it is reported as ErrEmailTaken as well.
func (s *UserService) Register(ctx context.Context, username, email, password string) (types.User, error) {
	email = NormalizeEmail(email)

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return types.User{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, fmt.Errorf("check email: %w", err)
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     strings.TrimSpace(username),
		Email:        email,
		PasswordHash: hashed,
		ImageURL:     avatar.URL(email, avatar.DefaultOptions),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrEmailTaken
		}
		return types.User{}, fmt.Errorf("create user: %w", err)
	}

	s.events.Publish(ctx, types.Event{Type: types.EventUserRegistered, UserID: user.ID})
	return user, nil
}

// Authenticate checks credentials. It distinguishes an unknown email from a
// wrong password.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnknownEmail
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}

	ok, err := s.hasher.Verify(user.PasswordHash, password)
	if err != nil {
		return types.User{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return types.User{}, ErrWrongPassword
	}
	return user, nil
}

// UpdateImage replaces the profile picture URL of user.
func (s *UserService) UpdateImage(ctx context.Context, user types.User, imageURL string) (types.User, error) {
	previous := user.ImageURL
	user.ImageURL = strings.TrimSpace(imageURL)
	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return types.User{}, fmt.Errorf("update user: %w", err)
	}
	s.removeStoredImage(ctx, updated, previous)
	s.events.Publish(ctx, types.Event{Type: types.EventUserProfileUpdated, UserID: updated.ID})
	return updated, nil
}

// UploadImage stores data in object storage and makes it the profile picture
// of user. The content type is sniffed from data; only common web image
// formats are accepted.
func (s *UserService) UploadImage(ctx context.Context, user types.User, data []byte) (types.User, error) {
	if s.images == nil {
		return types.User{}, ErrImagesDisabled
	}

	contentType := http.DetectContentType(data)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return types.User{}, ErrUnsupportedImage
	}

	key := imageKeyPrefix(user.ID) + uuid.NewString() + ext
	url, err := s.images.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return types.User{}, fmt.Errorf("store image: %w", err)
	}
	return s.UpdateImage(ctx, user, url)
}

// removeStoredImage deletes a replaced upload. Only objects under the user's
// own key prefix are deleted, since any URL can be set as a profile picture.
// Failures only leave an orphan object behind, so they are logged.
func (s *UserService) removeStoredImage(ctx context.Context, user types.User, previous string) {
	if s.images == nil || previous == "" || previous == user.ImageURL {
		return
	}
	key, ok := s.images.KeyFromURL(previous)
	if !ok || !ownsImageKey(user.ID, key) {
		return
	}
	if err := s.images.Delete(ctx, key); err != nil {
		s.logger.Warn("delete replaced image", zap.String("key", key), zap.Error(err))
	}
}

func imageKeyPrefix(userID string) string {
	return path.Join("users", userID) + "/"
}

func ownsImageKey(userID, key string) bool {
	return path.Clean(key) == key && strings.HasPrefix(key, imageKeyPrefix(userID))
}

// ChangePassword hashes and stores a new password for user.
func (s *UserService) ChangePassword(ctx context.Context, user types.User, password string) (types.User, error) {
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hashed
	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return types.User{}, fmt.Errorf("update user: %w", err)
	}
	s.events.Publish(ctx, types.Event{Type: types.EventUserPasswordChanged, UserID: updated.ID})
	return updated, nil
}
