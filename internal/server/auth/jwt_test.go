package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
)

func newService() *TokenService {
	return NewTokenService([]byte("access-secret"), []byte("refresh-secret"), time.Hour, 24*time.Hour)
}

func TestIssueAndVerify_Success(t *testing.T) {
	t.Parallel()

	s := newService()
	accountID := "account-123"

	for _, kind := range []TokenKind{KindAccess, KindRefresh} {
		var (
			tok string
			err error
		)
		if kind == KindAccess {
			tok, err = s.IssueAccessToken(accountID)
		} else {
			tok, err = s.IssueRefreshToken(accountID)
		}
		if err != nil {
			t.Fatalf("%s: issue error: %v", kind, err)
		}

		got, err := s.VerifyAndDecode(kind, tok)
		if err != nil {
			t.Fatalf("%s: VerifyAndDecode error: %v", kind, err)
		}
		if got != accountID {
			t.Fatalf("%s: account mismatch: got %q want %q", kind, got, accountID)
		}
	}
}

func TestVerifyAndDecode_Expired(t *testing.T) {
	t.Parallel()

	s := NewTokenService([]byte("a"), []byte("r"), -1*time.Second, time.Hour)

	tok, err := s.IssueAccessToken("u1")
	if err != nil {
		t.Fatalf("IssueAccessToken error: %v", err)
	}

	_, err = s.VerifyAndDecode(KindAccess, tok)
	if !errors.Is(err, common.ErrTokenExpired) {
		t.Fatalf("expected common.ErrTokenExpired, got %v", err)
	}
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expired token must also be an invalid token, got %v", err)
	}
}

func TestVerifyAndDecode_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := newService().IssueAccessToken("u2")
	if err != nil {
		t.Fatalf("IssueAccessToken error: %v", err)
	}

	other := NewTokenService([]byte("other"), []byte("refresh-secret"), time.Hour, time.Hour)
	if _, err := other.VerifyAndDecode(KindAccess, tok); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for invalid signature, got %v", err)
	}
}

func TestVerifyAndDecode_KindMismatch(t *testing.T) {
	t.Parallel()

	s := newService()
	refresh, err := s.IssueRefreshToken("u3")
	if err != nil {
		t.Fatalf("IssueRefreshToken error: %v", err)
	}

	if _, err := s.VerifyAndDecode(KindAccess, refresh); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("refresh token accepted as access token: %v", err)
	}

	// same secret on both sides still must not cross kinds
	shared := NewTokenService([]byte("k"), []byte("k"), time.Hour, time.Hour)
	refresh, _ = shared.IssueRefreshToken("u3")
	if _, err := shared.VerifyAndDecode(KindAccess, refresh); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("kind claim not enforced: %v", err)
	}
}

func TestVerifyAndDecode_MalformedString(t *testing.T) {
	t.Parallel()

	if _, err := newService().VerifyAndDecode(KindAccess, "not.a.jwt"); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for malformed token, got %v", err)
	}
}

func TestIssuePair_Distinct(t *testing.T) {
	t.Parallel()

	s := newService()
	p1, err := s.IssuePair("u4")
	if err != nil {
		t.Fatalf("IssuePair error: %v", err)
	}
	p2, err := s.IssuePair("u4")
	if err != nil {
		t.Fatalf("IssuePair error: %v", err)
	}

	if p1.RefreshToken == p2.RefreshToken {
		t.Fatalf("two refresh tokens issued back to back must differ")
	}
	if p1.AccessToken == p1.RefreshToken {
		t.Fatalf("access and refresh tokens must differ")
	}
}
