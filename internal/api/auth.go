package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bulbnet/bulbnet-core/internal/auth"
)

// ticketTTL is how long a websocket ticket is valid.
const ticketTTL = 60 * time.Second

// credentialsRequest is the request body for POST /signup and POST /login.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ticketStore holds pending websocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]time.Time
	mu      sync.Mutex
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]time.Time)}
}

// issue creates and records a new ticket.
func (ts *ticketStore) issue() string {
	ticket := generateTicket()

	ts.mu.Lock()
	ts.tickets[ticket] = time.Now().Add(ticketTTL)
	ts.mu.Unlock()

	return ticket
}

// consume checks if a ticket is valid and removes it (single-use).
func (ts *ticketStore) consume(ticket string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	expiresAt, ok := ts.tickets[ticket]
	if !ok {
		return false
	}

	delete(ts.tickets, ticket)

	return time.Now().Before(expiresAt)
}

// cleanExpired removes expired tickets from the store.
func (ts *ticketStore) cleanExpired() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now()
	for ticket, expiresAt := range ts.tickets {
		if now.After(expiresAt) {
			delete(ts.tickets, ticket)
		}
	}
}

// handleSignup registers a new user.
//
// The very first account is flagged in the response so a fresh install can
// tell it just created its admin. A duplicate username is the only
// rejection: any username and password, empty included, is accepted and
// hashed as given.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	// Existence check up front for the common duplicate case; the UNIQUE
	// index still backstops the race between check and insert.
	if _, err := s.users.GetByUsername(r.Context(), req.Username); err == nil {
		writeBadRequest(w, "User already exists")
		return
	} else if !errors.Is(err, auth.ErrUserNotFound) {
		s.logger.Error("user lookup failed", "error", err)
		writeInternalError(w, "Signup failed")
		return
	}

	existing, err := s.users.Count(r.Context())
	if err != nil {
		s.logger.Error("counting users failed", "error", err)
		writeInternalError(w, "Signup failed")
		return
	}
	firstUser := existing == 0

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("hashing password failed", "error", err)
		writeInternalError(w, "Signup failed")
		return
	}

	user := &auth.User{
		Username:     req.Username,
		PasswordHash: hash,
	}
	if err := s.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrUsernameExists) {
			writeBadRequest(w, "User already exists")
			return
		}
		s.logger.Error("creating user failed", "error", err)
		writeInternalError(w, "Signup failed")
		return
	}

	s.logger.Info("user created", "username", user.Username, "first_user", firstUser)

	if firstUser {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "success",
			"message": "First user created",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

// handleLogin authenticates a user and returns a bearer token.
//
// Unknown usernames and wrong passwords produce byte-identical responses
// so the endpoint cannot be used to probe which accounts exist.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, auth.ErrUserNotFound) {
			s.logger.Error("user lookup failed", "error", err)
		}
		writeUnauthorized(w, "Invalid credentials")
		return
	}

	match, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		writeUnauthorized(w, "Invalid credentials")
		return
	}

	token, err := auth.GenerateAccessToken(user.Username, s.secCfg.JWT.Secret, s.secCfg.JWT.AccessTokenTTL)
	if err != nil {
		s.logger.Error("generating token failed", "error", err)
		writeInternalError(w, "Login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"access_token": token,
	})
}

// handleWSTicket generates a single-use websocket authentication ticket.
// The client uses this ticket to authenticate the websocket connection
// without exposing the JWT in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     s.tickets.issue(),
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// ticketBytes is the number of random bytes used for websocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// cleanTicketsLoop runs cleanExpired periodically until the context is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickets.cleanExpired()
		}
	}
}
