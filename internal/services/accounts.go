package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rohits-web03/vaultbox/internal/auth"
	"github.com/rohits-web03/vaultbox/internal/models"
	"github.com/rohits-web03/vaultbox/internal/repositories"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 6
	// MaxAvatarBytes caps profile picture uploads.
	MaxAvatarBytes = 2 << 20
	// AvatarURLPrefix is where profile pictures are served from.
	AvatarURLPrefix = "/uploads/profile-pictures/"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

var avatarTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Session is an authenticated account with its signed token.
type Session struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

type AccountService struct {
	users     repositories.UserStore
	secret    []byte
	tokenTTL  time.Duration
	avatarDir string
	log       *logrus.Logger
	now       func() time.Time
}

func NewAccountService(users repositories.UserStore, jwtSecret string, tokenTTL time.Duration, avatarDir string, log *logrus.Logger) *AccountService {
	return &AccountService{
		users:     users,
		secret:    []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		avatarDir: avatarDir,
		log:       log,
		now:       time.Now,
	}
}

func (s *AccountService) Register(ctx context.Context, name, email, password string) (*Session, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return nil, fail(ErrValidation, "Name is required", nil)
	}
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fail(ErrStore, "Failed to hash password", err)
	}

	user := &models.User{Name: name, Email: email, Password: string(hash)}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, s.translateUserErr(err, "User already exists with this email", "Database insert failed")
	}
	return s.issue(user)
}

func (s *AccountService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fail(ErrUnauthorized, "Invalid credentials", nil)
		}
		return nil, fail(ErrStore, "Database error", err)
	}
	if !user.HasPassword() {
		return nil, fail(ErrUnauthorized, "Please sign in with Google", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, fail(ErrUnauthorized, "Invalid credentials", nil)
	}
	return s.issue(user)
}

// GoogleSignIn resolves a verified Google identity. The register flow
// refuses an existing email and the login flow refuses an unknown one.
func (s *AccountService) GoogleSignIn(ctx context.Context, flow string, gu *GoogleUser) (*Session, error) {
	email := normalizeEmail(gu.Email)
	if email == "" {
		return nil, fail(ErrValidation, "Google account has no email", nil)
	}

	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if flow == "register" {
			return nil, fail(ErrConflict, "User already exists with this email", nil)
		}
		if user.GoogleID == nil || user.Picture != gu.Picture {
			sub := gu.ID
			user.GoogleID = &sub
			user.Picture = gu.Picture
			if err := s.users.Save(ctx, user); err != nil {
				return nil, s.translateUserErr(err, "Google account is linked to another user", "Database error")
			}
		}
	case errors.Is(err, repositories.ErrNotFound):
		if flow != "register" {
			return nil, fail(ErrNotFound, "No account for this Google user", nil)
		}
		sub := gu.ID
		name := strings.TrimSpace(gu.Name)
		if name == "" {
			name = email
		}
		user = &models.User{Name: name, Email: email, GoogleID: &sub, Picture: gu.Picture}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, s.translateUserErr(err, "User already exists with this email", "Failed to create user")
		}
	default:
		return nil, fail(ErrStore, "Database error", err)
	}
	return s.issue(user)
}

func (s *AccountService) Profile(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fail(ErrNotFound, "User not found", nil)
		}
		return nil, fail(ErrStore, "Failed to fetch profile", err)
	}
	return user, nil
}

// ProfileUpdate holds optional new values; nil fields are left alone.
type ProfileUpdate struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

func (s *AccountService) UpdateProfile(ctx context.Context, userID uint, upd ProfileUpdate) (*models.User, error) {
	if upd.Name == nil && upd.Email == nil {
		return nil, fail(ErrValidation, "Name or email is required to update profile", nil)
	}
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fail(ErrValidation, "Name cannot be empty", nil)
		}
		user.Name = name
	}
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		if !emailPattern.MatchString(email) {
			return nil, fail(ErrValidation, "Invalid email address", nil)
		}
		user.Email = email
	}
	if err := s.users.Save(ctx, user); err != nil {
		return nil, s.translateUserErr(err, "Email is already in use", "Failed to update profile")
	}
	return user, nil
}

func (s *AccountService) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	if len(next) < minPasswordLen {
		return fail(ErrValidation, fmt.Sprintf("Password must be at least %d characters", minPasswordLen), nil)
	}
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if user.HasPassword() {
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(current)); err != nil {
			return fail(ErrUnauthorized, "Current password is incorrect", nil)
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fail(ErrStore, "Failed to hash password", err)
	}
	user.Password = string(hash)
	if err := s.users.Save(ctx, user); err != nil {
		return fail(ErrStore, "Failed to update password", err)
	}
	return nil
}

// SetProfilePicture stores an image as the account's avatar, replacing any
// previous one. Avatars are not encrypted.
func (s *AccountService) SetProfilePicture(ctx context.Context, userID uint, mimeType string, src io.Reader) (*models.User, error) {
	ext, ok := avatarTypes[NormalizeMIME(mimeType)]
	if !ok {
		return nil, fail(ErrUnsupportedType, "Profile picture must be a JPEG, PNG, GIF or WebP image", nil)
	}
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%d-%d-profilePicture%s", user.ID, s.now().UnixMilli(), ext)
	path := filepath.Join(s.avatarDir, name)
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fail(ErrStore, "Failed to upload profile picture", err)
	}
	n, err := io.Copy(dst, io.LimitReader(src, MaxAvatarBytes+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxAvatarBytes {
		err = fail(ErrPayloadTooLarge, "Profile picture must be 2MB or smaller", nil)
	}
	if err != nil {
		s.removeAvatar(path)
		if errors.Is(err, ErrPayloadTooLarge) {
			return nil, err
		}
		return nil, fail(ErrStore, "Failed to upload profile picture", err)
	}

	previous := user.ProfilePicture
	user.ProfilePicture = AvatarURLPrefix + name
	if err := s.users.Save(ctx, user); err != nil {
		s.removeAvatar(path)
		return nil, fail(ErrStore, "Failed to upload profile picture", err)
	}
	if old, ok := strings.CutPrefix(previous, AvatarURLPrefix); ok && old != "" {
		s.removeAvatar(filepath.Join(s.avatarDir, filepath.Base(old)))
	}
	return user, nil
}

func (s *AccountService) issue(user *models.User) (*Session, error) {
	token, exp, err := auth.GenerateToken(user.ID, user.Email, user.Name, s.secret, s.tokenTTL)
	if err != nil {
		return nil, fail(ErrStore, "Failed to create token", err)
	}
	return &Session{User: user, Token: token, ExpiresAt: exp}, nil
}

func (s *AccountService) translateUserErr(err error, conflictMsg, fallbackMsg string) error {
	if errors.Is(err, repositories.ErrDuplicate) {
		return fail(ErrConflict, conflictMsg, nil)
	}
	return fail(ErrStore, fallbackMsg, err)
}

func (s *AccountService) removeAvatar(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.WithError(err).WithField("path", path).Warn("Failed to remove profile picture")
	}
}

func validateCredentials(email, password string) error {
	if !emailPattern.MatchString(email) {
		return fail(ErrValidation, "Invalid email address", nil)
	}
	if len(password) < minPasswordLen {
		return fail(ErrValidation, fmt.Sprintf("Password must be at least %d characters", minPasswordLen), nil)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
