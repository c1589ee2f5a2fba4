package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/argon2"

	"github.com/leadts/leadts/internal/apperror"
)

// sessionKeyPrefix is the Redis key prefix for session data.
const sessionKeyPrefix = "session:"

// sessionTokenBytes is the number of random bytes in a session token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const sessionTokenBytes = 32

// SessionChangeChannel is the Redis pub/sub channel notified whenever a
// session is created, destroyed, or switched into impersonation. Other app
// instances listen here to drop cached session state.
const SessionChangeChannel = "session-change"

// argon2id parameters tuned for a self-hosted application running on
// modest hardware (2-4 CPU cores, 2-4 GB RAM). These follow OWASP
// recommendations for argon2id: memory=64MB, iterations=3, parallelism=4.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MB in KiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// SessionService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the repository directly.
type SessionService interface {
	CreateUser(ctx context.Context, input CreateUserInput) (*User, error)
	Login(ctx context.Context, input LoginInput) (token string, user *User, err error)
	ValidateSession(ctx context.Context, token string) (*Session, error)
	DestroySession(ctx context.Context, token string) error

	// Impersonate issues a client-scoped session for an admin, so the admin
	// sees exactly what that client's portal shows. The admin's own session
	// stays valid; the returned token is a second, separate session.
	Impersonate(ctx context.Context, adminSession *Session, clientID string) (string, error)
}

// sessionService implements SessionService with argon2id hashing and Redis
// session storage.
type sessionService struct {
	repo       UserRepository
	redis      *redis.Client
	sessionTTL time.Duration
}

// NewSessionService creates a new session service with the given dependencies.
func NewSessionService(repo UserRepository, rdb *redis.Client, sessionTTL time.Duration) SessionService {
	return &sessionService{
		repo:       repo,
		redis:      rdb,
		sessionTTL: sessionTTL,
	}
}

// CreateUser creates a new login. Client users must reference a client
// record; admins must not.
func (s *sessionService) CreateUser(ctx context.Context, input CreateUserInput) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, apperror.NewBadRequest("email is required")
	}
	if len(input.Password) < 8 {
		return nil, apperror.NewValidation("password must be at least 8 characters")
	}
	if !input.Role.IsValid() {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown role %q", input.Role))
	}
	if input.Role == RoleClient && input.ClientID == "" {
		return nil, apperror.NewBadRequest("client users need a client_id")
	}
	if input.Role == RoleAdmin && input.ClientID != "" {
		return nil, apperror.NewBadRequest("admin users must not carry a client_id")
	}

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if exists {
		return nil, apperror.NewConflict("an account with this email already exists")
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(input.Name),
		PasswordHash: hash,
		Role:         input.Role,
		ClientID:     input.ClientID,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user created",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)

	return user, nil
}

// Login authenticates a user by email and password. On success it creates a
// new session in Redis and returns the session token for the cookie.
func (s *sessionService) Login(ctx context.Context, input LoginInput) (string, *User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	if err != nil {
		// Don't reveal whether the email exists -- use generic message.
		if apperror.SafeCode(err) == 404 {
			return "", nil, apperror.NewUnauthorized("invalid email or password")
		}
		return "", nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if !verifyPassword(input.Password, user.PasswordHash) {
		return "", nil, apperror.NewUnauthorized("invalid email or password")
	}

	token, err := s.storeSession(ctx, &Session{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		ClientID:  user.ClientID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", nil, apperror.NewInternal(fmt.Errorf("creating session: %w", err))
	}

	// Fire-and-forget, non-critical.
	if err := s.repo.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("failed to update last login",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	s.publishSessionChange(ctx, "login", user.ID)

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)

	return token, user, nil
}

// ValidateSession looks up a session token in Redis and returns the session
// data if it exists and hasn't expired.
func (s *sessionService) ValidateSession(ctx context.Context, token string) (*Session, error) {
	data, err := s.redis.Get(ctx, sessionKeyPrefix+token).Bytes()
	if err == redis.Nil {
		return nil, apperror.NewUnauthorized("session expired or invalid")
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("reading session from Redis: %w", err))
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("unmarshaling session: %w", err))
	}

	return &session, nil
}

// DestroySession removes a session from Redis, logging the user out.
func (s *sessionService) DestroySession(ctx context.Context, token string) error {
	if err := s.redis.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return apperror.NewInternal(fmt.Errorf("deleting session from Redis: %w", err))
	}
	s.publishSessionChange(ctx, "logout", "")
	return nil
}

// Impersonate creates a client-scoped session for an admin.
func (s *sessionService) Impersonate(ctx context.Context, adminSession *Session, clientID string) (string, error) {
	if adminSession == nil || !adminSession.IsAdmin() {
		return "", apperror.NewForbidden("only admins can impersonate clients")
	}
	if clientID == "" {
		return "", apperror.NewBadRequest("client_id is required")
	}

	token, err := s.storeSession(ctx, &Session{
		UserID:         adminSession.UserID,
		Email:          adminSession.Email,
		Name:           adminSession.Name,
		Role:           RoleClient,
		ClientID:       clientID,
		ImpersonatedBy: adminSession.UserID,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("creating impersonation session: %w", err))
	}

	s.publishSessionChange(ctx, "impersonate", adminSession.UserID)

	slog.Info("impersonation started",
		slog.String("admin_id", adminSession.UserID),
		slog.String("client_id", clientID),
	)

	return token, nil
}

// storeSession generates a random token and writes the session JSON to
// Redis with the configured TTL.
func (s *sessionService) storeSession(ctx context.Context, session *Session) (string, error) {
	token, err := generateSessionToken()
	if err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("marshaling session: %w", err)
	}

	if err := s.redis.Set(ctx, sessionKeyPrefix+token, data, s.sessionTTL).Err(); err != nil {
		return "", fmt.Errorf("storing session in Redis: %w", err)
	}

	return token, nil
}

// publishSessionChange notifies other instances of a session lifecycle
// event. Best-effort: a failed publish never fails the user-facing call.
func (s *sessionService) publishSessionChange(ctx context.Context, event, userID string) {
	payload, _ := json.Marshal(map[string]string{"event": event, "user_id": userID})
	if err := s.redis.Publish(ctx, SessionChangeChannel, payload).Err(); err != nil {
		slog.Warn("publishing session change failed", slog.Any("error", err))
	}
}

// --- Password Hashing (argon2id) ---

// hashPassword creates an argon2id hash of the given password. The output
// format is: $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
// This format is compatible with most argon2 libraries and allows self-
// contained verification without separate salt storage.
func hashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads, b64Salt, b64Hash)

	return encoded, nil
}

// verifyPassword checks a plaintext password against an argon2id hash string.
func verifyPassword(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Constant-time comparison to prevent timing attacks.
	return subtle.ConstantTimeCompare(expectedHash, computedHash) == 1
}

// generateSessionToken creates a cryptographically random hex-encoded token.
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
