package user

import (
	"testing"
	"time"

	"github.com/trezcool/academia/core"
)

func TestTokenGenerator_MakeVerify(t *testing.T) {
	timeout := 3 * 24 * time.Hour
	gen := NewTokenGenerator("secret", timeout)

	now := time.Now()
	usr := User{ID: "u-1", Name: "T", Email: "t@test.test", IsActive: true, CreatedAt: now, UpdatedAt: now, LastLogin: &now}
	_ = usr.SetPassword("pwd")

	validToken, err := gen.Make(usr)
	if err != nil {
		t.Fatalf("Make(): %v", err)
	}

	// generate an expired token
	dayLate := timeout + (24 * time.Hour)
	core.NowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken, err := gen.Make(usr)
	core.NowFunc = time.Now // reset
	if err != nil {
		t.Fatalf("Make(): %v", err)
	}

	otherSecret, _ := NewTokenGenerator("other", timeout).Make(usr)

	relogged := usr
	later := now.Add(time.Minute)
	relogged.LastLogin = &later

	tests := []struct {
		name    string
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", usr: usr, wantErr: ErrInvalidToken},
		{name: "invalid parts len", usr: usr, token: "lmaooolol", wantErr: ErrInvalidToken},
		{name: "invalid base32", usr: usr, token: "hahaha-sigsig-sig", wantErr: ErrInvalidToken},
		{name: "invalid timestamp", usr: usr, token: "NRXWY-sigsig-sig", wantErr: ErrInvalidToken},
		{name: "invalid token", usr: usr, token: "HE4TS-sigsig-sig", wantErr: ErrInvalidToken},
		{name: "signed with another secret", usr: usr, token: otherSecret, wantErr: ErrInvalidToken},
		{name: "user signed in since", usr: relogged, token: validToken, wantErr: ErrInvalidToken},
		{name: "expired token", usr: usr, token: expiredToken, wantErr: ErrTokenExpired},
		{name: "valid token", usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := gen.Verify(tt.usr, tt.token); err != tt.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeUID(t *testing.T) {
	id, err := DecodeUID(EncodeUID(User{ID: "7f1c-uuid"}))
	if err != nil || id != "7f1c-uuid" {
		t.Errorf("DecodeUID() = %q, %v; want %q", id, err, "7f1c-uuid")
	}
	if _, err = DecodeUID("not base64!"); err == nil {
		t.Error("DecodeUID() error = nil; want an error")
	}
}
