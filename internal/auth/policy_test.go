package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
		wantMsg  string
	}{
		{
			name:     "valid password",
			password: "Str0ng-pass!",
			wantErr:  false,
		},
		{
			name:     "too short",
			password: "Ab1!xyz",
			wantErr:  true,
			wantMsg:  "8 characters",
		},
		{
			// 7 runes but 8 bytes; the length rule counts characters.
			name:     "too short with multibyte rune",
			password: "Aé1!xyz",
			wantErr:  true,
			wantMsg:  "8 characters",
		},
		{
			name:     "missing uppercase",
			password: "weak-pass1!",
			wantErr:  true,
			wantMsg:  "uppercase",
		},
		{
			name:     "missing lowercase",
			password: "WEAK-PASS1!",
			wantErr:  true,
			wantMsg:  "lowercase",
		},
		{
			name:     "missing digit",
			password: "Weak-pass!",
			wantErr:  true,
			wantMsg:  "digit",
		},
		{
			name:     "missing symbol",
			password: "Weakpass1",
			wantErr:  true,
			wantMsg:  "special character",
		},
		{
			name:     "empty",
			password: "",
			wantErr:  true,
			wantMsg:  "8 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidatePassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, ErrWeakPassword) {
				t.Errorf("error %v does not wrap ErrWeakPassword", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantMsg)
			}
		})
	}
}
