package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func jwtWithExp(exp time.Time) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"sub":"1","exp":%d}`, exp.Unix())))
	return header + "." + payload + ".signature"
}

func TestSession_StoreCurrentClear(t *testing.T) {
	ctx := context.Background()
	session := NewSession(memory.NewKVStore(), nil)

	if _, err := session.Current(ctx); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated without token, got %v", err)
	}

	if err := session.Store(ctx, "opaque-token", domain.Profile{UserID: "42", Name: "Siti", Email: "siti@example.com"}); err != nil {
		t.Fatalf("store: %v", err)
	}

	identity, err := session.Current(ctx)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if identity.UserID != "42" || identity.Token != "opaque-token" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	session.ClearOnUnauthorized(ctx)
	if _, err := session.Current(ctx); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated after clear, got %v", err)
	}
}

func TestSession_StoreRejectsIncompleteLogin(t *testing.T) {
	session := NewSession(memory.NewKVStore(), nil)
	if err := session.Store(context.Background(), " ", domain.Profile{UserID: "1"}); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for empty token, got %v", err)
	}
	if err := session.Store(context.Background(), "t", domain.Profile{}); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for empty profile id, got %v", err)
	}
}

func TestSession_ExpiredJWT(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	session := NewSession(memory.NewKVStore(), nil)
	session.now = func() time.Time { return now }

	profile := domain.Profile{UserID: "7"}
	if err := session.Store(ctx, jwtWithExp(now.Add(time.Hour)), profile); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := session.Current(ctx); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}

	if err := session.Store(ctx, jwtWithExp(now.Add(-time.Minute)), profile); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := session.Current(ctx); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected expired token to be unauthenticated, got %v", err)
	}
}

func TestSession_ProfileWithNumericID(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKVStore()
	if err := store.Set(ctx, KeyUser, []byte(`{"id": 15, "name": "Budi", "email": "budi@example.com"}`), 0); err != nil {
		t.Fatalf("seed: %v", err)
	}

	profile, err := NewSession(store, nil).Profile(ctx)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.UserID != "15" || profile.Name != "Budi" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestSession_SavedCustomerFallsBackToProfile(t *testing.T) {
	ctx := context.Background()
	session := NewSession(memory.NewKVStore(), nil)

	customer, err := session.SavedCustomer(ctx)
	if err != nil {
		t.Fatalf("saved customer without anything stored: %v", err)
	}
	if customer != (domain.CustomerInfo{}) {
		t.Fatalf("expected empty customer, got %+v", customer)
	}

	if err := session.Store(ctx, "token", domain.Profile{UserID: "1", Name: "Siti", Email: "siti@example.com"}); err != nil {
		t.Fatalf("store: %v", err)
	}
	customer, err = session.SavedCustomer(ctx)
	if err != nil {
		t.Fatalf("saved customer: %v", err)
	}
	if customer.Name != "Siti" || customer.Email != "siti@example.com" || customer.Address != "" {
		t.Fatalf("expected profile fallback, got %+v", customer)
	}

	saved := domain.CustomerInfo{Name: " Siti A ", Email: "a@example.com", Address: "Jl. Merdeka 1", Phone: "0812"}
	if err := session.SaveCustomer(ctx, saved); err != nil {
		t.Fatalf("save customer: %v", err)
	}
	customer, err = session.SavedCustomer(ctx)
	if err != nil {
		t.Fatalf("saved customer: %v", err)
	}
	if customer != saved.Normalize() {
		t.Fatalf("expected saved form, got %+v", customer)
	}

	if err := session.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	customer, err = session.SavedCustomer(ctx)
	if err != nil || customer.Address != "Jl. Merdeka 1" {
		t.Fatalf("clear must keep saved form, got %+v err=%v", customer, err)
	}
}

func TestTokenExpiry(t *testing.T) {
	if _, ok := tokenExpiry("opaque"); ok {
		t.Fatal("opaque token must not have expiry")
	}
	if _, ok := tokenExpiry("a.!!!.c"); ok {
		t.Fatal("broken payload must not have expiry")
	}
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	got, ok := tokenExpiry(jwtWithExp(exp))
	if !ok || !got.Equal(exp) {
		t.Fatalf("expected %s, got %s ok=%v", exp, got, ok)
	}
}
