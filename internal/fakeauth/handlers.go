package fakeauth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name            string `json:"name"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := decode(r, &body); err != nil || body.Name == "" || body.Email == "" || body.Password == "" {
		writeMessage(w, http.StatusBadRequest, "All fields are required")
		return
	}
	if body.Password != body.ConfirmPassword {
		writeMessage(w, http.StatusBadRequest, "Passwords do not match")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), s.bcryptCst)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Registration failed")
		return
	}
	code, err := newCode()
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	email := normalizeEmail(body.Email)
	now := s.now()

	s.mu.Lock()
	if _, exists := s.users[email]; exists {
		s.mu.Unlock()
		writeMessage(w, http.StatusConflict, "A user with this email already exists")
		return
	}
	u := &user{
		id:           uuid.NewString(),
		name:         body.Name,
		email:        email,
		passwordHash: hash,
		createdAt:    now.UTC(),
		code:         code,
		codeExpiry:   now.Add(verificationCodeTTL),
		codeSentAt:   now,
	}
	s.users[email] = u
	s.appendLogLocked(u.id, "register", true, r)
	view := u.view()
	s.mu.Unlock()

	s.mailer("verification", email, code)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Account created. Check your email for the verification code.",
		"user":    view,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &body); err != nil || body.Email == "" || body.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	email := normalizeEmail(body.Email)
	ip := clientIP(r)
	now := s.now()

	s.mu.Lock()
	if until, ok := s.blocked[email]; ok && now.Before(until) {
		s.mu.Unlock()
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"message":      "Too many failed attempts. Try again later.",
			"error":        errorCodeSecurityBlock,
			"blockedUntil": until.UTC().Format(time.RFC3339),
		})
		return
	}
	u := s.users[email]
	s.mu.Unlock()

	valid := false
	if u != nil {
		valid = bcrypt.CompareHashAndPassword(u.passwordHash, []byte(body.Password)) == nil
	}

	s.mu.Lock()
	if u == nil || !valid || !u.verified {
		userID := ""
		if u != nil {
			userID = u.id
		}
		s.appendLogLocked(userID, "login", false, r)
		s.recordFailureLocked(email, now)
		s.mu.Unlock()
		writeMessage(w, http.StatusUnauthorized, invalidCredentialsError)
		return
	}
	delete(s.failures, email)
	knownIP := s.knownIPLocked(u.id, ip)
	if s.risk(email, ip, knownIP) {
		code, err := newCode()
		if err != nil {
			s.mu.Unlock()
			writeMessage(w, http.StatusInternalServerError, "Login failed")
			return
		}
		sid := uuid.NewString()
		s.security[sid] = &securitySession{userID: u.id, code: code, expiresAt: now.Add(securityCodeTTL)}
		s.mu.Unlock()

		s.mailer("security", email, code)
		writeJSON(w, http.StatusOK, map[string]any{
			"requiresSecurity": true,
			"sessionId":        sid,
			"userEmail":        u.email,
			"message":          "Access from an unknown location was detected. Check your email.",
		})
		return
	}
	s.appendLogLocked(u.id, "login", true, r)
	view := u.view()
	s.mu.Unlock()

	if err := s.issueCookie(w, u.id); err != nil {
		writeMessage(w, http.StatusInternalServerError, "Login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Login successful", "user": view})
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decode(r, &body); err != nil || body.Email == "" || body.Code == "" {
		writeMessage(w, http.StatusBadRequest, "Email and code are required")
		return
	}
	now := s.now()

	s.mu.Lock()
	u, ok := s.users[normalizeEmail(body.Email)]
	switch {
	case !ok:
		s.mu.Unlock()
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	case u.code == "":
		s.mu.Unlock()
		writeMessage(w, http.StatusBadRequest, "No verification code found")
		return
	case now.After(u.codeExpiry):
		s.mu.Unlock()
		writeMessage(w, http.StatusBadRequest, "Verification code expired")
		return
	case subtle.ConstantTimeCompare([]byte(u.code), []byte(strings.TrimSpace(body.Code))) != 1:
		s.mu.Unlock()
		writeMessage(w, http.StatusBadRequest, "Invalid verification code")
		return
	}
	u.verified = true
	u.code = ""
	s.appendLogLocked(u.id, "verify_email", true, r)
	view := u.view()
	s.mu.Unlock()

	if err := s.issueCookie(w, u.id); err != nil {
		writeMessage(w, http.StatusInternalServerError, "Verification failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Email verified", "user": view})
}

func (s *Server) handleResendCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decode(r, &body); err != nil || body.Email == "" {
		writeMessage(w, http.StatusBadRequest, "Email is required")
		return
	}
	code, err := newCode()
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to send verification email")
		return
	}
	now := s.now()

	s.mu.Lock()
	u, ok := s.users[normalizeEmail(body.Email)]
	switch {
	case !ok:
		s.mu.Unlock()
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	case u.verified:
		s.mu.Unlock()
		writeMessage(w, http.StatusBadRequest, "Email is already verified")
		return
	case now.Sub(u.codeSentAt) < resendCooldown:
		wait := resendCooldown - now.Sub(u.codeSentAt)
		s.mu.Unlock()
		writeMessage(w, http.StatusTooManyRequests, fmt.Sprintf("Wait %d seconds before requesting a new code", int(wait.Seconds())+1))
		return
	}
	u.code = code
	u.codeExpiry = now.Add(verificationCodeTTL)
	u.codeSentAt = now
	email := u.email
	s.mu.Unlock()

	s.mailer("verification", email, code)
	writeMessage(w, http.StatusOK, "New verification code sent")
}

func (s *Server) handleVerifySecurity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"sessionId"`
		Code      string `json:"code"`
	}
	if err := decode(r, &body); err != nil || body.SessionID == "" || body.Code == "" {
		writeMessage(w, http.StatusBadRequest, "SessionId and code are required")
		return
	}
	now := s.now()

	s.mu.Lock()
	sec, ok := s.security[body.SessionID]
	switch {
	case !ok:
		s.mu.Unlock()
		writeMessage(w, http.StatusNotFound, "Security session not found")
		return
	case now.After(sec.expiresAt):
		delete(s.security, body.SessionID)
		s.mu.Unlock()
		writeMessage(w, http.StatusBadRequest, "Security session expired")
		return
	case sec.attempts >= securityMaxAttempts:
		s.mu.Unlock()
		writeMessage(w, http.StatusBadRequest, "Maximum number of attempts exceeded")
		return
	}
	if subtle.ConstantTimeCompare([]byte(sec.code), []byte(strings.TrimSpace(body.Code))) != 1 {
		sec.attempts++
		s.mu.Unlock()
		writeMessage(w, http.StatusBadRequest, "Invalid security code")
		return
	}
	delete(s.security, body.SessionID)
	s.appendLogLocked(sec.userID, "login", true, r)
	u := s.userByIDLocked(sec.userID)
	if u == nil {
		s.mu.Unlock()
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	view := u.view()
	s.mu.Unlock()

	if err := s.issueCookie(w, sec.userID); err != nil {
		writeMessage(w, http.StatusInternalServerError, "Verification failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Security verification approved", "user": view})
}

func (s *Server) handleResendSecurity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"sessionId"`
	}
	if err := decode(r, &body); err != nil || body.SessionID == "" {
		writeMessage(w, http.StatusBadRequest, "SessionId is required")
		return
	}
	code, err := newCode()
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to send security email")
		return
	}

	s.mu.Lock()
	sec, ok := s.security[body.SessionID]
	if !ok {
		s.mu.Unlock()
		writeMessage(w, http.StatusNotFound, "Security session not found")
		return
	}
	sec.code = code
	sec.attempts = 0
	sec.expiresAt = s.now().Add(securityCodeTTL)
	email := ""
	if u := s.userByIDLocked(sec.userID); u != nil {
		email = u.email
	}
	s.mu.Unlock()

	s.mailer("security", email, code)
	writeMessage(w, http.StatusOK, "New security code sent")
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	u := s.userByIDLocked(userID)
	if u == nil {
		s.mu.Unlock()
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	view := u.view()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAccessLogs(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	src := s.logs[userID]
	out := make([]accessLog, 0, min(len(src), accessLogLimit))
	for i := len(src) - 1; i >= 0 && len(out) < accessLogLimit; i-- {
		out = append(out, src[i])
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"logs": out})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	s.appendLogLocked(userID, "logout", true, r)
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	writeMessage(w, http.StatusOK, "Logout successful")
}

func (s *Server) issueCookie(w http.ResponseWriter, userID string) error {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		UID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  now.Add(sessionTTL),
	})
	return nil
}

// authenticate resolves the session cookie to a user id, answering 401 itself on failure.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	ck, err := r.Cookie(CookieName)
	if err != nil || ck.Value == "" {
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
		return "", false
	}
	claims := &sessionClaims{}
	_, err = jwt.ParseWithClaims(ck.Value, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || claims.UID == "" {
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
		return "", false
	}
	return claims.UID, true
}

func (s *Server) userByIDLocked(id string) *user {
	for _, u := range s.users {
		if u.id == id {
			return u
		}
	}
	return nil
}

func (s *Server) appendLogLocked(userID, action string, success bool, r *http.Request) {
	if userID == "" {
		return
	}
	ua := r.UserAgent()
	s.logs[userID] = append(s.logs[userID], accessLog{
		Action:     action,
		IPAddress:  clientIP(r),
		DeviceInfo: deviceInfo(ua),
		UserAgent:  ua,
		Success:    success,
		Timestamp:  s.now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) knownIPLocked(userID, ip string) bool {
	for _, l := range s.logs[userID] {
		if l.Success && l.IPAddress == ip && l.Action == "login" {
			return true
		}
	}
	return false
}

func (s *Server) recordFailureLocked(email string, now time.Time) {
	recent := s.failures[email][:0]
	for _, at := range s.failures[email] {
		if now.Sub(at) < bruteForceWindow {
			recent = append(recent, at)
		}
	}
	recent = append(recent, now)
	s.failures[email] = recent
	if len(recent) >= maxLoginFailures {
		s.blocked[email] = now.Add(emailBlockDuration)
		delete(s.failures, email)
	}
}

var errNoDevice = errors.New("unknown device")

func deviceInfo(ua string) string {
	browser, os, err := parseUserAgent(ua)
	if err != nil {
		return ""
	}
	return browser + " on " + os
}

func parseUserAgent(ua string) (string, string, error) {
	lower := strings.ToLower(ua)
	browser := ""
	switch {
	case strings.Contains(lower, "firefox"):
		browser = "Firefox"
	case strings.Contains(lower, "edg/"):
		browser = "Edge"
	case strings.Contains(lower, "chrome"):
		browser = "Chrome"
	case strings.Contains(lower, "safari"):
		browser = "Safari"
	case strings.HasPrefix(lower, "amfa"):
		browser = "amfa"
	case strings.HasPrefix(lower, "go-http-client"):
		browser = "Go"
	}
	os := ""
	switch {
	case strings.Contains(lower, "windows"):
		os = "Windows"
	case strings.Contains(lower, "android"):
		os = "Android"
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipad"):
		os = "iOS"
	case strings.Contains(lower, "mac os"):
		os = "macOS"
	case strings.Contains(lower, "linux"):
		os = "Linux"
	}
	if browser == "" {
		return "", "", errNoDevice
	}
	if os == "" {
		os = "unknown OS"
	}
	return browser, os, nil
}
