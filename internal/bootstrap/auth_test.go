package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/wallmag/wallmag-api/config"
	"github.com/wallmag/wallmag-api/internal/adapters/devauth"
	"github.com/wallmag/wallmag-api/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildAuthProvider(t *testing.T) {
	devAuth := config.DevAuthConfig{Subject: "dev-user", Email: "dev@example.com", Name: "Dev User"}

	tests := []struct {
		name    string
		cfg     AuthConfig
		wantErr string
	}{
		{
			name: "dev mode",
			cfg:  AuthConfig{IsDev: true, Auth: config.AuthConfig{Mode: config.AuthModeDev, DevAuth: devAuth}},
		},
		{
			name:    "dev auth outside development",
			cfg:     AuthConfig{Auth: config.AuthConfig{Mode: config.AuthModeDev, DevAuth: devAuth}},
			wantErr: "development mode",
		},
		{
			name:    "dev auth without email",
			cfg:     AuthConfig{IsDev: true, Auth: config.AuthConfig{Mode: config.AuthModeDev, DevAuth: config.DevAuthConfig{Subject: "x"}}},
			wantErr: "Email is required",
		},
		{
			name: "oauth without client id",
			cfg: AuthConfig{Auth: config.AuthConfig{
				Mode:  config.AuthModeOAuth,
				OAuth: config.OAuthConfig{Issuer: "https://accounts.google.com"},
			}},
			wantErr: "create oidc provider",
		},
		{
			name:    "unknown mode",
			cfg:     AuthConfig{Auth: config.AuthConfig{Mode: "saml"}},
			wantErr: "unsupported auth mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Logger = discardLogger()

			prov, err := BuildAuthProvider(context.Background(), tt.cfg)

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("BuildAuthProvider() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildAuthProvider() error = %v", err)
			}
			if _, ok := prov.(*devauth.Provider); !ok {
				t.Fatalf("BuildAuthProvider() = %T, want *devauth.Provider", prov)
			}
			var _ ports.AuthProvider = prov
		})
	}
}

func TestBuildTokenCodec(t *testing.T) {
	session := config.SessionConfig{Issuer: "wallmag", TokenTTL: time.Hour}

	t.Run("development generates a secret", func(t *testing.T) {
		codec, err := BuildTokenCodec(AuthConfig{IsDev: true, Auth: config.AuthConfig{Session: session}, Logger: discardLogger()})
		if err != nil {
			t.Fatalf("BuildTokenCodec() error = %v", err)
		}
		if codec == nil {
			t.Fatal("BuildTokenCodec() returned nil codec")
		}
	})

	t.Run("production requires a secret", func(t *testing.T) {
		if _, err := BuildTokenCodec(AuthConfig{Auth: config.AuthConfig{Session: session}}); err == nil {
			t.Fatal("BuildTokenCodec() expected error for empty secret")
		}
	})

	t.Run("short secret rejected", func(t *testing.T) {
		s := session
		s.Secret = "too-short"
		if _, err := BuildTokenCodec(AuthConfig{IsDev: true, Auth: config.AuthConfig{Session: s}}); err == nil {
			t.Fatal("BuildTokenCodec() expected error for short secret")
		}
	})
}
