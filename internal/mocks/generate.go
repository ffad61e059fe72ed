// Package mocks provides gomock-generated mocks for the ports used by the service layer.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockCredentialStore(ctrl)
//	store.EXPECT().GetByID(gomock.Any(), "user-1").Return(user, nil)
//
// Hand-written in-memory doubles live in the auth subpackage.
package mocks

// Generate mock for CredentialStore interface from internal/ports package.
// This creates MockCredentialStore with methods for all CredentialStore interface methods:
// GetByID, UpdateLastLogin, GetByEmail, FindOrCreateFromProvider, Create, UpdateRoles, SetActive, List, Search
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=credential_store_mock.go github.com/wallmag/wallmag-api/internal/ports CredentialStore

// Generate mock for AuditLog interface from internal/ports package.
// This creates MockAuditLog with methods for all AuditLog interface methods:
// Record, List
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=audit_log_mock.go github.com/wallmag/wallmag-api/internal/ports AuditLog
