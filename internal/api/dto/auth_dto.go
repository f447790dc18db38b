package dto

import "time"

// LoginRequest payload for POST /api/auth. Form posts are accepted too.
type LoginRequest struct {
	LoginName string `json:"loginName" form:"loginName"`
	Password  string `json:"password" form:"password"`
}

// LoginResponse carries the caller's API token.
type LoginResponse struct {
	Token string `json:"token"`
}

// TokenInfoResponse describes the token a request was authorized with.
type TokenInfoResponse struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}
