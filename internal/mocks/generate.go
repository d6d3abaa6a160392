// Package mocks provides gomock implementations of the session-core ports.
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
//	dir := mocks.NewMockDirectory(ctrl)
//	dir.EXPECT().Lookup(gomock.Any(), auth.DirectoryAdmins, "u1").Return(auth.RoleRecord{}, auth.ErrRecordNotFound)
package mocks

// Generate mock for Directory interface from internal/ports package.
// This creates MockDirectory with methods for all Directory interface methods:
// Lookup, SubAdminByEmail
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=directory_mock.go github.com/culturemaker/cmk-api/internal/ports Directory

// Generate mock for AccountRepository interface from internal/ports package.
// This creates MockAccountRepository with methods for all AccountRepository interface methods:
// Register, SetStatus, UpdateName, List
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=account_repository_mock.go github.com/culturemaker/cmk-api/internal/ports AccountRepository
