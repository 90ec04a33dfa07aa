package model

import "github.com/golang-jwt/jwt/v5"

// HostClaims are JWT claims for host authentication
type HostClaims struct {
	HostID string `json:"hostId"`
	jwt.RegisteredClaims
}

// ParticipantClaims are JWT claims for session-scoped participant tokens
type ParticipantClaims struct {
	SessionCode   string `json:"sessionCode"`
	ParticipantID string `json:"participantId"`
	jwt.RegisteredClaims
}

// LoginRequest is the request body for host login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned after successful login
type LoginResponse struct {
	Token  string `json:"token"`
	HostID string `json:"hostId"`
}

// JoinResponse is returned when a participant joins a session
type JoinResponse struct {
	ParticipantID string   `json:"participantId"`
	Token         string   `json:"token"`
	Session       *Session `json:"session"`
}
