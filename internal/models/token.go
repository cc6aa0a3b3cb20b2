package models

import (
	"time"
)

// Token kind baked into JWT claims
// Access and refresh tokens are signed with independent secrets, the kind
// claim prevents presenting one in place of the other even when the secrets
// are the same
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Pair of tokens issued by TokenManager on register, login or refresh
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// Result of authentication flows. Transient: never persisted
type AuthResult struct {
	User   User
	Tokens TokenPair
}
