// Package auth хранит локальную сессию пользователя: bearer-токен, профиль и
// сохранённую форму покупателя.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Ключи локального хранилища.
const (
	KeyToken    = "user_token"
	KeyUser     = "user"
	KeyCustomer = "userData"
)

// Токен считается истёкшим с этим запасом до exp.
const expirySkew = 30 * time.Second

// Session хранит сессию пользователя в key/value хранилище.
type Session struct {
	store  domain.KeyValueStore
	now    func() time.Time
	logger *log.Entry
}

// NewSession создаёт сессию.
func NewSession(store domain.KeyValueStore, logger *log.Entry) *Session {
	if logger == nil {
		logger = log.WithField("component", "auth-session")
	}
	return &Session{
		store:  store,
		now:    time.Now,
		logger: logger,
	}
}

// Store сохраняет токен и профиль после входа.
func (s *Session) Store(ctx context.Context, token string, profile domain.Profile) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("store session: empty token: %w", domain.ErrUnauthenticated)
	}
	if strings.TrimSpace(profile.UserID) == "" {
		return fmt.Errorf("store session: profile without id: %w", domain.ErrUnauthenticated)
	}

	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := s.store.Set(ctx, KeyToken, []byte(token), 0); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if err := s.store.Set(ctx, KeyUser, raw, 0); err != nil {
		return fmt.Errorf("store profile: %w", err)
	}
	return nil
}

// Current возвращает пользователя и токен. Нет токена, профиля или токен
// истёк, возвращается ErrUnauthenticated.
func (s *Session) Current(ctx context.Context) (domain.Identity, error) {
	raw, err := s.store.Get(ctx, KeyToken)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return domain.Identity{}, domain.ErrUnauthenticated
		}
		return domain.Identity{}, fmt.Errorf("load token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	if exp, ok := tokenExpiry(token); ok && !s.now().Add(expirySkew).Before(exp) {
		s.logger.WithField("expired_at", exp).Info("Stored token expired")
		return domain.Identity{}, fmt.Errorf("token expired at %s: %w", exp.Format(time.RFC3339), domain.ErrUnauthenticated)
	}

	profile, err := s.Profile(ctx)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{UserID: profile.UserID, Token: token}, nil
}

// Profile возвращает сохранённый профиль.
func (s *Session) Profile(ctx context.Context) (domain.Profile, error) {
	raw, err := s.store.Get(ctx, KeyUser)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return domain.Profile{}, domain.ErrUnauthenticated
		}
		return domain.Profile{}, fmt.Errorf("load profile: %w", err)
	}

	var profile struct {
		ID    json.Number `json:"id"`
		Name  string      `json:"name"`
		Email string      `json:"email"`
	}
	if err := json.Unmarshal(raw, &profile); err != nil {
		// id в строковом виде
		var plain domain.Profile
		if err2 := json.Unmarshal(raw, &plain); err2 != nil {
			return domain.Profile{}, fmt.Errorf("decode profile: %w", err)
		}
		if plain.UserID == "" {
			return domain.Profile{}, domain.ErrUnauthenticated
		}
		return plain, nil
	}
	if profile.ID == "" {
		return domain.Profile{}, domain.ErrUnauthenticated
	}
	return domain.Profile{UserID: profile.ID.String(), Name: profile.Name, Email: profile.Email}, nil
}

// Clear удаляет токен и профиль. Сохранённая форма покупателя остаётся.
func (s *Session) Clear(ctx context.Context) error {
	var errs []error
	for _, key := range []string{KeyToken, KeyUser} {
		if err := s.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// ClearOnUnauthorized сбрасывает сессию; API клиент вызывает его на ответ 401.
func (s *Session) ClearOnUnauthorized(ctx context.Context) {
	if err := s.Clear(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to clear session after 401")
	}
}

// SaveCustomer сохраняет форму покупателя по явному запросу пользователя.
func (s *Session) SaveCustomer(ctx context.Context, customer domain.CustomerInfo) error {
	raw, err := json.Marshal(customer.Normalize())
	if err != nil {
		return fmt.Errorf("marshal customer: %w", err)
	}
	if err := s.store.Set(ctx, KeyCustomer, raw, 0); err != nil {
		return fmt.Errorf("store customer: %w", err)
	}
	return nil
}

// SavedCustomer возвращает сохранённую форму. Пустые имя и email
// дополняются из профиля.
func (s *Session) SavedCustomer(ctx context.Context) (domain.CustomerInfo, error) {
	var customer domain.CustomerInfo

	raw, err := s.store.Get(ctx, KeyCustomer)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &customer); err != nil {
			s.logger.WithError(err).Warn("Saved customer form is corrupted, ignoring")
			customer = domain.CustomerInfo{}
		}
	case errors.Is(err, domain.ErrKeyNotFound):
	default:
		return domain.CustomerInfo{}, fmt.Errorf("load customer: %w", err)
	}

	if customer.Name == "" || customer.Email == "" {
		profile, err := s.Profile(ctx)
		if err == nil {
			if customer.Name == "" {
				customer.Name = profile.Name
			}
			if customer.Email == "" {
				customer.Email = profile.Email
			}
		} else if !errors.Is(err, domain.ErrUnauthenticated) {
			return domain.CustomerInfo{}, err
		}
	}
	return customer.Normalize(), nil
}

// tokenExpiry читает claim exp из JWT без проверки подписи. Непрозрачные
// токены срока не имеют.
func tokenExpiry(token string) (time.Time, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return time.Time{}, false
	}
	var claims struct {
		Exp json.Number `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Exp == "" {
		return time.Time{}, false
	}
	seconds, err := claims.Exp.Float64()
	if err != nil || seconds <= 0 {
		return time.Time{}, false
	}
	return time.Unix(int64(seconds), 0).UTC(), true
}

var _ domain.SessionProvider = (*Session)(nil)
