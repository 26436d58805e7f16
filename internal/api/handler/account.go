package handler

import (
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/d9705996/granthub/internal/api/jsonapi"
	"github.com/d9705996/granthub/internal/audit"
	"github.com/d9705996/granthub/internal/auth"
	"github.com/d9705996/granthub/internal/model"
	"github.com/d9705996/granthub/internal/notify"
	"github.com/d9705996/granthub/internal/ratelimit"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountHandler handles /api/v1/auth/* and organization profile routes.
type AccountHandler struct {
	db          *gorm.DB
	refresh     *auth.RefreshStore
	mailer      notify.Mailer
	rec         *audit.Recorder
	jwtSecret   string
	accessTTL   time.Duration
	frontendURL string
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(db *gorm.DB, refresh *auth.RefreshStore, mailer notify.Mailer, rec *audit.Recorder, jwtSecret string, accessTTL time.Duration, frontendURL string) *AccountHandler {
	return &AccountHandler{
		db:          db,
		refresh:     refresh,
		mailer:      mailer,
		rec:         rec,
		jwtSecret:   jwtSecret,
		accessTTL:   accessTTL,
		frontendURL: frontendURL,
	}
}

// phoneRe matches international phone numbers: optional +, 9 to 15 digits.
var phoneRe = regexp.MustCompile(`^\+?1?\d{9,15}$`)

// registerRequest holds an organization registration. The password is kept
// unexported and decoded via a map so the secret never appears in an
// exported field.
type registerRequest struct {
	Email              string
	pass               string
	OrganizationName   string
	ContactPerson      string
	Phone              string
	Address            string
	RegistrationNumber string
}

func (r *registerRequest) UnmarshalJSON(data []byte) error {
	obj := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	fields := map[string]*string{
		"email":               &r.Email,
		"password":            &r.pass,
		"organization_name":   &r.OrganizationName,
		"contact_person":      &r.ContactPerson,
		"phone":               &r.Phone,
		"address":             &r.Address,
		"registration_number": &r.RegistrationNumber,
	}
	for key, dst := range fields {
		if v, ok := obj[key]; ok {
			if err := json.Unmarshal(v, dst); err != nil {
				return err
			}
		}
	}
	return nil
}

// userAttrs is the JSON:API attributes payload for user resources.
type userAttrs struct {
	Email         string     `json:"email"`
	Role          string     `json:"role"`
	EmailVerified bool       `json:"email_verified"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func userResource(u *model.User) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "users",
		ID:   u.ID,
		Attributes: userAttrs{
			Email:         u.Email,
			Role:          u.Role,
			EmailVerified: u.EmailVerified,
			LastLogin:     u.LastLogin,
			CreatedAt:     u.CreatedAt,
		},
	}
}

// orgAttrs is the JSON:API attributes payload for organization resources.
type orgAttrs struct {
	Name               string `json:"name"`
	ContactPerson      string `json:"contact_person"`
	Phone              string `json:"phone"`
	Address            string `json:"address"`
	RegistrationNumber string `json:"registration_number,omitempty"`
}

func orgResource(o *model.Organization) jsonapi.ResourceObject {
	attrs := orgAttrs{
		Name:          o.Name,
		ContactPerson: o.ContactPerson,
		Phone:         o.Phone,
		Address:       o.Address,
	}
	if o.RegistrationNumber != nil {
		attrs.RegistrationNumber = *o.RegistrationNumber
	}
	return jsonapi.ResourceObject{Type: "organizations", ID: o.ID, Attributes: attrs}
}

// RegisterOrganization handles POST /api/v1/auth/register. It creates the
// login user and its organization in one transaction and emails the
// verification link.
func (h *AccountHandler) RegisterOrganization(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.pass == "" || req.OrganizationName == "" || req.ContactPerson == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"missing_field", "Unprocessable Entity",
			"email, password, organization_name, and contact_person are required")
		return
	}
	if err := auth.ValidatePassword(req.pass); err != nil {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"weak_password", "Unprocessable Entity", err.Error())
		return
	}
	if req.Phone != "" && !phoneRe.MatchString(req.Phone) {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"invalid_phone", "Unprocessable Entity",
			"phone must be 9 to 15 digits, optionally prefixed with +")
		return
	}

	ctx := r.Context()
	hash, err := auth.HashPassword(req.pass)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to hash password")
		return
	}

	var exists int64
	if err := h.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", req.Email).Count(&exists).Error; err == nil && exists > 0 {
		jsonapi.RenderError(w, http.StatusConflict,
			"email_taken", "Conflict", "an account with this email already exists")
		return
	}

	u := &model.User{Email: req.Email, PasswordHash: hash, Role: model.RoleOrganization}
	org := &model.Organization{
		Name:          req.OrganizationName,
		ContactPerson: req.ContactPerson,
		Phone:         req.Phone,
		Address:       req.Address,
	}
	if req.RegistrationNumber != "" {
		org.RegistrationNumber = &req.RegistrationNumber
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(u).Error; err != nil {
			return err
		}
		org.UserID = u.ID
		return tx.Create(org).Error
	})
	if err != nil {
		jsonapi.RenderError(w, http.StatusConflict,
			"registration_failed", "Conflict", "could not create the account")
		return
	}

	if err := h.sendVerificationEmail(r, u, org.Name); err != nil {
		jsonapi.RenderError(w, http.StatusBadGateway,
			"email_failed", "Bad Gateway", "account created but verification email failed: "+err.Error())
		return
	}

	h.rec.Record(ctx, audit.Entry{
		UserID:       &u.ID,
		Action:       model.ActionCreate,
		ResourceType: "organization",
		ResourceID:   org.ID,
		IPAddress:    ratelimit.ClientIP(r),
		UserAgent:    r.UserAgent(),
		Description:  "organization registered",
		Success:      true,
	})

	doc := userResource(u)
	doc.Relationships = map[string]jsonapi.Relationship{
		"organization": {Data: map[string]string{"type": "organizations", "id": org.ID}},
	}
	jsonapi.RenderOne(w, http.StatusCreated, doc)
}

func (h *AccountHandler) sendVerificationEmail(r *http.Request, u *model.User, name string) error {
	link := h.frontendURL + "/verify-email?token=" + u.EmailVerificationToken
	body := "Dear " + name + ",\n\n" +
		"Welcome to GrantHub. Please verify your email address by visiting:\n\n" +
		link + "\n"
	return h.mailer.Send(r.Context(), u.Email, name, "Verify your GrantHub account", body)
}

// adminRegisterRequest holds an administrator registration.
type adminRegisterRequest struct {
	Email string
	pass  string
}

func (r *adminRegisterRequest) UnmarshalJSON(data []byte) error {
	obj := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if v, ok := obj["email"]; ok {
		if err := json.Unmarshal(v, &r.Email); err != nil {
			return err
		}
	}
	if v, ok := obj["password"]; ok {
		if err := json.Unmarshal(v, &r.pass); err != nil {
			return err
		}
	}
	return nil
}

// RegisterAdministrator handles POST /api/v1/auth/register-admin.
// Administrators only; the new account is pre-verified.
func (h *AccountHandler) RegisterAdministrator(w http.ResponseWriter, r *http.Request) {
	var req adminRegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.pass == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"missing_field", "Unprocessable Entity", "email and password are required")
		return
	}
	if err := auth.ValidatePassword(req.pass); err != nil {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"weak_password", "Unprocessable Entity", err.Error())
		return
	}
	hash, err := auth.HashPassword(req.pass)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to hash password")
		return
	}

	u := &model.User{
		Email:         req.Email,
		PasswordHash:  hash,
		Role:          model.RoleAdministrator,
		EmailVerified: true,
	}
	if err := h.db.WithContext(r.Context()).Create(u).Error; err != nil {
		jsonapi.RenderError(w, http.StatusConflict,
			"email_taken", "Conflict", "an account with this email already exists")
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, userResource(u))
}

// loginRequest holds the credentials submitted via POST /api/v1/auth/login.
type loginRequest struct {
	Email string
	pass  string
}

func (r *loginRequest) UnmarshalJSON(data []byte) error {
	obj := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if v, ok := obj["email"]; ok {
		if err := json.Unmarshal(v, &r.Email); err != nil {
			return err
		}
	}
	if v, ok := obj["password"]; ok {
		if err := json.Unmarshal(v, &r.pass); err != nil {
			return err
		}
	}
	return nil
}

// tokenAttrs are the JSON attributes returned in successful auth responses.
// Sensitive fields are unexported and serialised via MarshalJSON.
type tokenAttrs struct {
	accessToken  string
	refreshToken string
	TokenType    string
}

func (t tokenAttrs) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"access_token":  t.accessToken,
		"refresh_token": t.refreshToken,
		"token_type":    t.TokenType,
	})
}

func (h *AccountHandler) issueTokens(w http.ResponseWriter, r *http.Request, u *model.User) {
	ctx := r.Context()
	orgID := ""
	if u.IsOrganization() {
		var org model.Organization
		if err := h.db.WithContext(ctx).First(&org, "user_id = ?", u.ID).Error; err == nil {
			orgID = org.ID
		}
	}

	accessToken, err := auth.IssueAccessToken(u.ID, u.Email, u.Role, orgID, h.jwtSecret, h.accessTTL)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"token_error", "Internal Server Error", "failed to issue access token")
		return
	}
	refreshToken, err := h.refresh.IssueRefreshToken(ctx, u.ID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"token_error", "Internal Server Error", "failed to issue refresh token")
		return
	}

	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type: "auth_token",
		ID:   u.ID,
		Attributes: tokenAttrs{
			accessToken:  accessToken,
			refreshToken: refreshToken,
			TokenType:    "Bearer",
		},
	})
}

// Login handles POST /api/v1/auth/login.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.pass == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"missing_field", "Unprocessable Entity", "email and password are required")
		return
	}

	ctx := r.Context()
	ip := ratelimit.ClientIP(r)

	var u model.User
	err := h.db.WithContext(ctx).Where("email = ?", req.Email).First(&u).Error
	if err != nil || !auth.CheckPassword(u.PasswordHash, req.pass) {
		var userID *string
		if err == nil {
			userID = &u.ID
		}
		h.rec.SecurityEvent(ctx, &model.SecurityEvent{
			UserID:      userID,
			EventType:   model.SecurityLoginFailure,
			Severity:    model.SeverityWarning,
			Description: "login failed for " + req.Email,
			IPAddress:   ip,
			UserAgent:   r.UserAgent(),
			RequestPath: r.URL.Path,
		})
		h.rec.Record(ctx, audit.Entry{
			UserID:       userID,
			Action:       model.ActionLoginFailed,
			ResourceType: "user",
			IPAddress:    ip,
			UserAgent:    r.UserAgent(),
			RiskLevel:    model.RiskMedium,
			Success:      false,
			ErrorMessage: "invalid credentials",
		})
		jsonapi.RenderError(w, http.StatusUnauthorized,
			"invalid_credentials", "Unauthorized", "email or password is incorrect")
		return
	}
	if !u.EmailVerified {
		jsonapi.RenderError(w, http.StatusForbidden,
			"email_unverified", "Forbidden", "verify your email address before logging in")
		return
	}

	now := time.Now()
	if err := h.db.WithContext(ctx).Model(&u).Update("last_login", now).Error; err == nil {
		u.LastLogin = &now
	}

	h.rec.SecurityEvent(ctx, &model.SecurityEvent{
		UserID:      &u.ID,
		EventType:   model.SecurityLoginSuccess,
		Severity:    model.SeverityInfo,
		Description: "login succeeded",
		IPAddress:   ip,
		UserAgent:   r.UserAgent(),
		RequestPath: r.URL.Path,
	})
	h.rec.Record(ctx, audit.Entry{
		UserID:       &u.ID,
		Action:       model.ActionLogin,
		ResourceType: "user",
		ResourceID:   u.ID,
		IPAddress:    ip,
		UserAgent:    r.UserAgent(),
		Success:      true,
	})

	h.issueTokens(w, r, &u)
}

// refreshRequest holds the token submitted via POST /api/v1/auth/refresh.
type refreshRequest struct {
	token string
}

func (r *refreshRequest) UnmarshalJSON(data []byte) error {
	obj := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if v, ok := obj["refresh_token"]; ok {
		if err := json.Unmarshal(v, &r.token); err != nil {
			return err
		}
	}
	return nil
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AccountHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.token == "" {
		jsonapi.RenderError(w, http.StatusBadRequest,
			"invalid_body", "Bad Request", "refresh_token is required")
		return
	}

	ctx := r.Context()
	newRefresh, userID, err := h.refresh.RotateRefreshToken(ctx, req.token)
	if err != nil {
		jsonapi.RenderError(w, http.StatusUnauthorized,
			"invalid_token", "Unauthorized", "refresh token is invalid or expired")
		return
	}

	var u model.User
	if err := h.db.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		jsonapi.RenderError(w, http.StatusUnauthorized,
			"user_not_found", "Unauthorized", "user account does not exist")
		return
	}

	orgID := ""
	if u.IsOrganization() {
		var org model.Organization
		if err := h.db.WithContext(ctx).First(&org, "user_id = ?", u.ID).Error; err == nil {
			orgID = org.ID
		}
	}
	accessToken, err := auth.IssueAccessToken(u.ID, u.Email, u.Role, orgID, h.jwtSecret, h.accessTTL)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"token_error", "Internal Server Error", "failed to issue access token")
		return
	}

	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type: "auth_token",
		ID:   u.ID,
		Attributes: tokenAttrs{
			accessToken:  accessToken,
			refreshToken: newRefresh,
			TokenType:    "Bearer",
		},
	})
}

// Logout handles POST /api/v1/auth/logout.
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.token == "" {
		jsonapi.RenderError(w, http.StatusBadRequest,
			"invalid_body", "Bad Request", "refresh_token is required")
		return
	}
	ctx := r.Context()
	// Ignore error: even if token not found, return 204 to avoid token probing.
	_ = h.refresh.RevokeRefreshToken(ctx, req.token)

	if claims := tokenClaims(r); claims != nil {
		h.rec.Record(ctx, audit.Entry{
			UserID:       &claims.UserID,
			Action:       model.ActionLogout,
			ResourceType: "user",
			ResourceID:   claims.UserID,
			IPAddress:    ratelimit.ClientIP(r),
			UserAgent:    r.UserAgent(),
			Success:      true,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

// VerifyEmail handles POST /api/v1/auth/verify-email.
func (h *AccountHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Token == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"missing_field", "Unprocessable Entity", "token is required")
		return
	}

	ctx := r.Context()
	var u model.User
	if err := h.db.WithContext(ctx).
		First(&u, "email_verification_token = ? AND email_verified = ?", req.Token, false).Error; err != nil {
		jsonapi.RenderError(w, http.StatusNotFound,
			"invalid_token", "Not Found", "verification token is invalid or already used")
		return
	}
	// Rotate the token so a captured verification link cannot be replayed.
	err := h.db.WithContext(ctx).Model(&u).Updates(map[string]any{
		"email_verified":           true,
		"email_verification_token": uuid.New().String(),
	}).Error
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to verify email")
		return
	}
	u.EmailVerified = true

	h.rec.Record(ctx, audit.Entry{
		UserID:       &u.ID,
		Action:       model.ActionEmailVerify,
		ResourceType: "user",
		ResourceID:   u.ID,
		IPAddress:    ratelimit.ClientIP(r),
		UserAgent:    r.UserAgent(),
		Success:      true,
	})
	jsonapi.RenderOne(w, http.StatusOK, userResource(&u))
}

// RequestPasswordReset handles POST /api/v1/auth/password-reset.
// Always returns 204 so the endpoint cannot be used to probe for accounts.
func (h *AccountHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := r.Context()
	var u model.User
	if err := h.db.WithContext(ctx).First(&u, "email = ?", req.Email).Error; err == nil {
		token := newResetToken()
		expires := time.Now().Add(time.Hour)
		err := h.db.WithContext(ctx).Model(&u).Updates(map[string]any{
			"password_reset_token":   token,
			"password_reset_expires": expires,
		}).Error
		if err == nil {
			link := h.frontendURL + "/reset-password?token=" + token
			body := "A password reset was requested for your GrantHub account.\n\n" +
				"Reset it within one hour at:\n\n" + link + "\n\n" +
				"If you did not request this, ignore this email.\n"
			if err := h.mailer.Send(ctx, u.Email, "", "Reset your GrantHub password", body); err != nil {
				jsonapi.RenderError(w, http.StatusBadGateway,
					"email_failed", "Bad Gateway", "failed to send the reset email")
				return
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// confirmResetRequest holds the reset token and replacement password.
type confirmResetRequest struct {
	Token string
	pass  string
}

func (r *confirmResetRequest) UnmarshalJSON(data []byte) error {
	obj := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if v, ok := obj["token"]; ok {
		if err := json.Unmarshal(v, &r.Token); err != nil {
			return err
		}
	}
	if v, ok := obj["password"]; ok {
		if err := json.Unmarshal(v, &r.pass); err != nil {
			return err
		}
	}
	return nil
}

// ConfirmPasswordReset handles POST /api/v1/auth/password-reset/confirm.
// A successful reset revokes every live refresh token for the account.
func (h *AccountHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req confirmResetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Token == "" || req.pass == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"missing_field", "Unprocessable Entity", "token and password are required")
		return
	}
	if err := auth.ValidatePassword(req.pass); err != nil {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"weak_password", "Unprocessable Entity", err.Error())
		return
	}

	ctx := r.Context()
	var u model.User
	err := h.db.WithContext(ctx).
		Where("password_reset_token = ? AND password_reset_expires > ?", req.Token, time.Now()).
		First(&u).Error
	if err != nil {
		jsonapi.RenderError(w, http.StatusNotFound,
			"invalid_token", "Not Found", "reset token is invalid or expired")
		return
	}

	hash, err := auth.HashPassword(req.pass)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to hash password")
		return
	}
	err = h.db.WithContext(ctx).Model(&u).Updates(map[string]any{
		"password_hash":          hash,
		"password_reset_token":   nil,
		"password_reset_expires": nil,
	}).Error
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to update password")
		return
	}
	_ = h.refresh.RevokeAllForUser(ctx, u.ID)

	h.rec.SecurityEvent(ctx, &model.SecurityEvent{
		UserID:      &u.ID,
		EventType:   model.SecurityPasswordReset,
		Severity:    model.SeverityInfo,
		Description: "password reset completed",
		IPAddress:   ratelimit.ClientIP(r),
		UserAgent:   r.UserAgent(),
		RequestPath: r.URL.Path,
	})
	h.rec.Record(ctx, audit.Entry{
		UserID:       &u.ID,
		Action:       model.ActionPasswordChange,
		ResourceType: "user",
		ResourceID:   u.ID,
		IPAddress:    ratelimit.ClientIP(r),
		UserAgent:    r.UserAgent(),
		RiskLevel:    model.RiskMedium,
		Success:      true,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/auth/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	doc := userResource(u)
	if u.IsOrganization() {
		var org model.Organization
		if err := h.db.WithContext(r.Context()).First(&org, "user_id = ?", u.ID).Error; err == nil {
			doc.Relationships = map[string]jsonapi.Relationship{
				"organization": {Data: map[string]string{"type": "organizations", "id": org.ID}},
			}
			jsonapi.Render(w, http.StatusOK, jsonapi.Document{
				Data:     doc,
				Included: []any{orgResource(&org)},
			})
			return
		}
	}
	jsonapi.RenderOne(w, http.StatusOK, doc)
}

// UpdateMe handles PATCH /api/v1/auth/me. Only the email address is
// mutable; role and verification state are managed by their own flows.
func (h *AccountHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	var req struct {
		Email *string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == nil || *req.Email == u.Email {
		jsonapi.RenderOne(w, http.StatusOK, userResource(u))
		return
	}
	if *req.Email == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"missing_field", "Unprocessable Entity", "email must not be empty")
		return
	}

	ctx := r.Context()
	var exists int64
	if err := h.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", *req.Email).Count(&exists).Error; err == nil && exists > 0 {
		jsonapi.RenderError(w, http.StatusConflict,
			"email_taken", "Conflict", "an account with this email already exists")
		return
	}
	oldEmail := u.Email
	if err := h.db.WithContext(ctx).Model(u).Update("email", *req.Email).Error; err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError,
			"internal_error", "Internal Server Error", "failed to update the account")
		return
	}
	u.Email = *req.Email

	h.rec.Record(ctx, audit.Entry{
		UserID:       &u.ID,
		Action:       model.ActionUpdate,
		ResourceType: "user",
		ResourceID:   u.ID,
		OldValues:    model.JSONMap{"email": oldEmail},
		NewValues:    model.JSONMap{"email": u.Email},
		IPAddress:    ratelimit.ClientIP(r),
		UserAgent:    r.UserAgent(),
		Success:      true,
	})
	jsonapi.RenderOne(w, http.StatusOK, userResource(u))
}

// GetProfile handles GET /api/v1/organizations/me.
func (h *AccountHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	var org model.Organization
	if err := h.db.WithContext(r.Context()).First(&org, "user_id = ?", u.ID).Error; err != nil {
		renderLookupError(w, err, "organization profile")
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, orgResource(&org))
}

// UpdateProfile handles PATCH /api/v1/organizations/me.
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	u := currentUser(w, r, h.db)
	if u == nil {
		return
	}
	var req struct {
		Name          *string `json:"name"`
		ContactPerson *string `json:"contact_person"`
		Phone         *string `json:"phone"`
		Address       *string `json:"address"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := r.Context()
	var org model.Organization
	if err := h.db.WithContext(ctx).First(&org, "user_id = ?", u.ID).Error; err != nil {
		renderLookupError(w, err, "organization profile")
		return
	}

	if req.Phone != nil && *req.Phone != "" && !phoneRe.MatchString(*req.Phone) {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity,
			"invalid_phone", "Unprocessable Entity",
			"phone must be 9 to 15 digits, optionally prefixed with +")
		return
	}

	old := model.JSONMap{"name": org.Name, "contact_person": org.ContactPerson, "phone": org.Phone, "address": org.Address}
	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
		org.Name = *req.Name
	}
	if req.ContactPerson != nil {
		updates["contact_person"] = *req.ContactPerson
		org.ContactPerson = *req.ContactPerson
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
		org.Phone = *req.Phone
	}
	if req.Address != nil {
		updates["address"] = *req.Address
		org.Address = *req.Address
	}
	if len(updates) > 0 {
		if err := h.db.WithContext(ctx).Model(&org).Updates(updates).Error; err != nil {
			jsonapi.RenderError(w, http.StatusInternalServerError,
				"internal_error", "Internal Server Error", "failed to update the profile")
			return
		}
		h.rec.Record(ctx, audit.Entry{
			UserID:       &u.ID,
			Action:       model.ActionUpdate,
			ResourceType: "organization",
			ResourceID:   org.ID,
			OldValues:    old,
			NewValues:    toJSONMap(updates),
			IPAddress:    ratelimit.ClientIP(r),
			UserAgent:    r.UserAgent(),
			Success:      true,
		})
	}
	jsonapi.RenderOne(w, http.StatusOK, orgResource(&org))
}

func toJSONMap(m map[string]any) model.JSONMap {
	out := make(model.JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func newResetToken() string {
	return uuid.New().String()
}
