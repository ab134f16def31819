package security

import (
	"testing"
	"time"

	"tripchat/tools/errs"
)

func TestTokenRoundTrip(t *testing.T) {
	SetSecret([]byte("unit-test-secret"))

	tok, err := IssueToken("U1", "user", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ParseToken(tok)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != "U1" || claims.Role != "user" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseTokenFailures(t *testing.T) {
	SetSecret([]byte("unit-test-secret"))

	expired, err := IssueToken("U1", "user", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name  string
		token string
		code  int
	}{
		{"empty", "", errs.TokenInvalid},
		{"garbage", "not-a-jwt", errs.TokenInvalid},
		{"expired", expired, errs.TokenExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseToken(tc.token)
			ce, ok := errs.CodeOf(err)
			if !ok || ce.Code != tc.code {
				t.Fatalf("err = %v, want code %d", err, tc.code)
			}
		})
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	SetSecret([]byte("key-one"))
	tok, err := IssueToken("U1", "user", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	SetSecret([]byte("key-two"))
	if _, err := ParseToken(tok); err == nil {
		t.Fatal("token signed with another key must not verify")
	}
}
