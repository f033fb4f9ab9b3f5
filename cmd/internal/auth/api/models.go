package authapi

import (
	"time"

	"credo/cmd/identity"
	"credo/cmd/internal/auth/session"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type authResponse struct {
	AccessToken     string          `json:"access_token"`
	AccessExpiresAt time.Time       `json:"access_expires_at"`
	User            accountResponse `json:"user"`
}

type meResponse struct {
	User accountResponse `json:"user"`
}

func toAccountResponse(a identity.Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
	}
}

func toAuthResponse(res session.Result) authResponse {
	return authResponse{
		AccessToken:     res.Pair.AccessToken,
		AccessExpiresAt: res.Pair.AccessExp,
		User:            toAccountResponse(res.Account),
	}
}
