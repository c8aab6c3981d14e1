package mockapi

import (
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/example/ec-storefront/internal/auth"
)

// SeedUser describes a user created directly by a test.
type SeedUser struct {
	Name     string
	Email    string
	Password string
	Role     string
	// Verified users can log in immediately.
	Verified bool
}

// AddUser creates a user and returns its ID.
func (s *Server) AddUser(u SeedUser) (string, error) {
	hash, err := auth.HashPassword(u.Password, s.bcryptCost)
	if err != nil {
		return "", err
	}
	role := u.Role
	if role == "" {
		role = auth.RoleUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &userRecord{
		ID:              uuid.New().String(),
		Name:            u.Name,
		Email:           strings.ToLower(u.Email),
		Role:            role,
		IsEmailVerified: u.Verified,
		PasswordHash:    hash,
		CreatedAt:       s.now(),
	}
	s.users[rec.ID] = rec
	s.usersByEmail[rec.Email] = rec.ID
	return rec.ID, nil
}

// VerificationToken returns the pending email verification token for email.
func (s *Server) VerificationToken(email string) string {
	return s.tokenFor(s.verifyTokens, email)
}

// ResetToken returns the pending password reset token for email.
func (s *Server) ResetToken(email string) string {
	return s.tokenFor(s.resetTokens, email)
}

func (s *Server) tokenFor(tokens map[string]string, email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.usersByEmail[strings.ToLower(email)]
	for token, userID := range tokens {
		if userID == id {
			return token
		}
	}
	return ""
}

func userView(u *userRecord) userRecord {
	out := *u
	out.Addresses = append([]addressDoc{}, u.Addresses...)
	return out
}

// issue creates a token pair and records the session. Caller holds s.mu.
func (s *Server) issue(u *userRecord) (auth.TokenPair, error) {
	pair, err := s.issuer.Issue(auth.Identity{UserID: u.ID, Email: u.Email, Role: u.Role})
	if err != nil {
		return auth.TokenPair{}, err
	}
	claims, err := s.issuer.ValidateAccess(pair.AccessToken)
	if err != nil {
		return auth.TokenPair{}, err
	}
	s.validAccess[claims.ID] = u.ID
	s.sessions[hashToken(pair.RefreshToken)] = &sessionRecord{
		ID:        pair.RefreshID,
		UserID:    u.ID,
		ExpiresAt: pair.RefreshExpiresAt,
	}
	return pair, nil
}

// dropSessions revokes every token of a user. Caller holds s.mu.
func (s *Server) dropSessions(userID string) {
	for hash, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, hash)
		}
	}
	for jti, owner := range s.validAccess {
		if owner == userID {
			delete(s.validAccess, jti)
		}
	}
}

// ============================================
// Auth handlers
// ============================================

func (s *Server) register(w http.ResponseWriter, r *http.Request, _ *caller) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		respondError(w, "Name is required", http.StatusBadRequest)
		return
	}
	if err := auth.ValidateEmail(req.Email); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	_, exists := s.usersByEmail[strings.ToLower(req.Email)]
	s.mu.Unlock()
	if exists {
		respondError(w, "User already exists", http.StatusBadRequest)
		return
	}

	id, err := s.AddUser(SeedUser{Name: req.Name, Email: req.Email, Password: req.Password})
	if err != nil {
		respondError(w, "Registration failed", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	s.verifyTokens[uuid.New().String()] = id
	s.mu.Unlock()

	respondJSON(w, http.StatusCreated, nil, "Registration successful! Please check your email to verify your account.")
}

func (s *Server) login(w http.ResponseWriter, r *http.Request, _ *caller) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[s.usersByEmail[strings.ToLower(req.Email)]]
	if !ok || !auth.CheckPassword(req.Password, u.PasswordHash) {
		respondError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}
	if !u.IsEmailVerified {
		respondError(w, "Please verify your email before logging in", http.StatusUnauthorized)
		return
	}

	pair, err := s.issue(u)
	if err != nil {
		respondError(w, "Login failed", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user":         userView(u),
		"token":        pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "Login successful")
}

func (s *Server) logout(w http.ResponseWriter, _ *http.Request, c *caller) {
	s.mu.Lock()
	s.dropSessions(c.userID())
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, nil, "Logged out successfully")
}

func (s *Server) me(w http.ResponseWriter, _ *http.Request, c *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[c.userID()]
	if !ok {
		respondError(w, "User not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user": userView(u)}, "")
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request, _ *caller) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		respondError(w, "Refresh token is required", http.StatusUnauthorized)
		return
	}

	userID, refreshID, err := s.issuer.ValidateRefresh(req.RefreshToken)
	if err != nil {
		respondError(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hash := hashToken(req.RefreshToken)
	sess, ok := s.sessions[hash]
	if !ok || sess.ID != refreshID || sess.UserID != userID {
		respondError(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}
	u, ok := s.users[userID]
	if !ok {
		respondError(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	delete(s.sessions, hash)
	pair, err := s.issue(u)
	if err != nil {
		respondError(w, "Token refresh failed", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"token":        pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "")
}

func (s *Server) verifyEmail(w http.ResponseWriter, r *http.Request, _ *caller) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.verifyTokens[req.Token]
	if !ok {
		respondError(w, "Invalid or expired verification token", http.StatusBadRequest)
		return
	}
	delete(s.verifyTokens, req.Token)
	if u, ok := s.users[userID]; ok {
		u.IsEmailVerified = true
	}
	respondJSON(w, http.StatusOK, nil, "Email verified successfully")
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request, _ *caller) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	if id, ok := s.usersByEmail[strings.ToLower(req.Email)]; ok {
		s.resetTokens[uuid.New().String()] = id
	}
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, nil, "If that email is registered, a reset link has been sent")
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request, _ *caller) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	hash, err := auth.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		respondError(w, "Password reset failed", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.resetTokens[req.Token]
	u, found := s.users[userID]
	if !ok || !found {
		respondError(w, "Invalid or expired reset token", http.StatusBadRequest)
		return
	}
	delete(s.resetTokens, req.Token)
	u.PasswordHash = hash
	s.dropSessions(u.ID)
	respondJSON(w, http.StatusOK, nil, "Password reset successful")
}

func (s *Server) resendVerification(w http.ResponseWriter, r *http.Request, _ *caller) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[s.usersByEmail[strings.ToLower(req.Email)]]
	if !ok {
		respondError(w, "User not found", http.StatusNotFound)
		return
	}
	if u.IsEmailVerified {
		respondError(w, "Email is already verified", http.StatusBadRequest)
		return
	}
	s.verifyTokens[uuid.New().String()] = u.ID
	respondJSON(w, http.StatusOK, nil, "Verification email sent")
}

// ============================================
// User profile handlers
// ============================================

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request, c *caller) {
	var req struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[c.userID()]
	if !ok {
		respondError(w, "User not found", http.StatusNotFound)
		return
	}
	if req.Name != "" {
		u.Name = req.Name
	}
	if req.Phone != "" {
		u.Phone = req.Phone
	}
	respondJSON(w, http.StatusOK, map[string]any{"user": userView(u)}, "Profile updated successfully")
}

func (s *Server) uploadAvatar(w http.ResponseWriter, r *http.Request, c *caller) {
	files, ok := uploads(w, r, "avatar")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[c.userID()]
	if !ok {
		respondError(w, "User not found", http.StatusNotFound)
		return
	}
	u.Avatar = "/uploads/avatars/" + uuid.New().String() + path.Ext(files[0].Filename)
	respondJSON(w, http.StatusOK, map[string]any{"user": userView(u)}, "Avatar uploaded successfully")
}

func (s *Server) updatePassword(w http.ResponseWriter, r *http.Request, c *caller) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := auth.ValidatePassword(req.NewPassword); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	hash, err := auth.HashPassword(req.NewPassword, s.bcryptCost)
	if err != nil {
		respondError(w, "Password update failed", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[c.userID()]
	if !ok || !auth.CheckPassword(req.CurrentPassword, u.PasswordHash) {
		respondError(w, "Current password is incorrect", http.StatusBadRequest)
		return
	}
	u.PasswordHash = hash
	respondJSON(w, http.StatusOK, nil, "Password updated successfully")
}

func (s *Server) addAddress(w http.ResponseWriter, r *http.Request, c *caller) {
	var req addressDoc
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[c.userID()]
	if !ok {
		respondError(w, "User not found", http.StatusNotFound)
		return
	}
	req.ID = uuid.New().String()
	if len(u.Addresses) == 0 {
		req.IsDefault = true
	}
	u.Addresses = setDefault(append(u.Addresses, req), req)
	respondJSON(w, http.StatusCreated, map[string]any{"addresses": userView(u).Addresses}, "Address added")
}

func (s *Server) updateAddress(w http.ResponseWriter, r *http.Request, c *caller) {
	var req addressDoc
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[c.userID()]
	if !ok {
		respondError(w, "User not found", http.StatusNotFound)
		return
	}
	id := r.PathValue("id")
	for i := range u.Addresses {
		if u.Addresses[i].ID == id {
			req.ID = id
			u.Addresses[i] = req
			u.Addresses = setDefault(u.Addresses, req)
			respondJSON(w, http.StatusOK, map[string]any{"addresses": userView(u).Addresses}, "Address updated")
			return
		}
	}
	respondError(w, "Address not found", http.StatusNotFound)
}

func (s *Server) deleteAddress(w http.ResponseWriter, r *http.Request, c *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[c.userID()]
	if !ok {
		respondError(w, "User not found", http.StatusNotFound)
		return
	}
	id := r.PathValue("id")
	for i := range u.Addresses {
		if u.Addresses[i].ID == id {
			u.Addresses = append(u.Addresses[:i], u.Addresses[i+1:]...)
			respondJSON(w, http.StatusOK, map[string]any{"addresses": userView(u).Addresses}, "Address deleted")
			return
		}
	}
	respondError(w, "Address not found", http.StatusNotFound)
}

// setDefault clears the default flag of every other address when chosen is default.
func setDefault(addrs []addressDoc, chosen addressDoc) []addressDoc {
	if !chosen.IsDefault {
		return addrs
	}
	for i := range addrs {
		addrs[i].IsDefault = addrs[i].ID == chosen.ID
	}
	return addrs
}
