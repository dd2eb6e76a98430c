package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time           { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func isKind(err error, want *common.Error) bool { return errors.Is(err, want) }

func TestEncodeDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	codec := NewCodec(clock.Now)
	secret := []byte("super-secret")

	in := Claims{UserID: "user-123", Email: "a@x.com", Kind: KindAccess}
	tok, err := codec.Encode(in, secret, 15*time.Minute)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	clock.Advance(14 * time.Minute)
	got, err := codec.Decode(tok, secret)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if got.UserID != in.UserID || got.Email != in.Email || got.Kind != in.Kind {
		t.Fatalf("claims mismatch: got %+v want %+v", got, in)
	}
	wantExp := newFakeClock().t.Add(15 * time.Minute)
	if !got.ExpiresAt.Time.Equal(wantExp) {
		t.Fatalf("exp mismatch: got %v want %v", got.ExpiresAt.Time, wantExp)
	}
}

func TestEncode_UniquePerCall(t *testing.T) {
	t.Parallel()

	codec := NewCodec(newFakeClock().Now)
	c := Claims{UserID: "u1", Email: "a@x.com", Kind: KindRefresh}

	a, err := codec.Encode(c, []byte("k"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	b, err := codec.Encode(c, []byte("k"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("two encodings at the same instant must differ")
	}
}

func TestDecode_Expired(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	codec := NewCodec(clock.Now)
	secret := []byte("secret")

	tok, err := codec.Encode(Claims{UserID: "u1", Kind: KindAccess}, secret, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute + time.Second)

	_, err = codec.Decode(tok, secret)
	if !isKind(err, common.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestDecode_ZeroTTLIsExpired(t *testing.T) {
	t.Parallel()

	codec := NewCodec(newFakeClock().Now)
	tok, err := codec.Encode(Claims{UserID: "u1", Kind: KindAccess}, []byte("s"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := codec.Decode(tok, []byte("s")); !isKind(err, common.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestDecode_WrongSecret(t *testing.T) {
	t.Parallel()

	codec := NewCodec(nil)
	tok, err := codec.Encode(Claims{UserID: "u2", Kind: KindAccess}, []byte("right-secret"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	_, err = codec.Decode(tok, []byte("wrong-secret"))
	if !isKind(err, common.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestDecode_TamperedNeverSucceeds(t *testing.T) {
	t.Parallel()

	codec := NewCodec(nil)
	secret := []byte("k")
	tok, err := codec.Encode(Claims{UserID: "u3", Email: "b@x.com", Kind: KindAccess}, secret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < len(tok); i++ {
		if tok[i] == '.' {
			continue
		}
		b := []byte(tok)
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
		_, err := codec.Decode(string(b), secret)
		if err == nil {
			// flipping the final char of base64url can leave decoded bytes intact
			if i == len(tok)-1 {
				continue
			}
			t.Fatalf("tampered token at byte %d decoded successfully", i)
		}
		if !isKind(err, common.ErrInvalidSignature) && !isKind(err, common.ErrMalformed) {
			t.Fatalf("byte %d: unexpected error kind %v", i, err)
		}
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	_, err := NewCodec(nil).Decode("not.a.jwt", []byte("k"))
	if !isKind(err, common.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecode_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	claims := Claims{UserID: "u4", Kind: KindAccess}
	claims.ExpiresAt = jwt.NewNumericDate(clock.t.Add(time.Hour))
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewCodec(clock.Now).Decode(tok, []byte("k"))
	if !isKind(err, common.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for HS512, got %v", err)
	}
}

func TestDecode_RequiresExpiry(t *testing.T) {
	t.Parallel()

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u5", Kind: KindAccess}).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewCodec(nil).Decode(tok, []byte("k")); err == nil {
		t.Fatal("token without exp must be rejected")
	}
}

func TestDecodeKind(t *testing.T) {
	t.Parallel()

	codec := NewCodec(nil)
	secret := []byte("same-secret")
	refresh, err := codec.Encode(Claims{UserID: "u6", Kind: KindRefresh}, secret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := codec.DecodeKind(refresh, secret, KindRefresh); err != nil {
		t.Fatalf("matching kind: %v", err)
	}

	_, err = codec.DecodeKind(refresh, secret, KindAccess)
	if !isKind(err, common.ErrTokenKindMismatch) {
		t.Fatalf("expected ErrTokenKindMismatch, got %v", err)
	}
	if strings.Contains(err.Error(), refresh) {
		t.Fatal("error must not echo the token")
	}
}
