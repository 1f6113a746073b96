package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"user-directory/internal/auth"
	"user-directory/internal/registration"
	"user-directory/internal/security"
	"user-directory/internal/store"
)

type registerRequest struct {
	Username    string `json:"username" binding:"required,min=2,max=32"`
	Password    string `json:"password" binding:"required,min=8,max=72"`
	Consent     bool   `json:"consent"`
	Email       string `json:"email" binding:"omitempty,min=5,max=100"`
	Fingerprint string `json:"fingerprint" binding:"omitempty,max=128"`
	Invite      string `json:"invite" binding:"omitempty,max=64"`
	DateOfBirth string `json:"date_of_birth" binding:"omitempty,max=10"`
	CaptchaKey  string `json:"captcha_key" binding:"omitempty,max=2048"`
}

// jsonFields maps struct field names back to their wire names for binding
// error reports.
var jsonFields = map[string]string{
	"Username":    "username",
	"Password":    "password",
	"Consent":     "consent",
	"Email":       "email",
	"Fingerprint": "fingerprint",
	"Invite":      "invite",
	"DateOfBirth": "date_of_birth",
	"CaptchaKey":  "captcha_key",
}

func bindingErrors(verrs validator.ValidationErrors) registration.FieldErrors {
	fe := registration.FieldErrors{}
	for _, v := range verrs {
		field, ok := jsonFields[v.Field()]
		if !ok {
			field = v.Field()
		}
		switch v.Tag() {
		case "required":
			fe.Add(field, registration.CodeFieldRequired, "This field is required")
		case "min", "max":
			fe.Add(field, registration.CodeFieldBadLength,
				fmt.Sprintf("Must be between %s characters", lengthBounds(field)))
		default:
			fe.Add(field, registration.CodeFieldBadLength, "Invalid value")
		}
	}
	return fe
}

func lengthBounds(field string) string {
	switch field {
	case "username":
		return "2 and 32"
	case "password":
		return "8 and 72"
	case "email":
		return "5 and 100"
	default:
		return "the allowed"
	}
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{"errors": bindingErrors(verrs)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "invalid_body", "message": "malformed request body"}})
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	acct, err := s.registrar.Register(ctx, &registration.Input{
		Username:    req.Username,
		Password:    req.Password,
		Consent:     req.Consent,
		Email:       req.Email,
		Fingerprint: req.Fingerprint,
		Invite:      req.Invite,
		DateOfBirth: req.DateOfBirth,
		CaptchaKey:  req.CaptchaKey,
		ClientIP:    c.ClientIP(),
	})
	if err != nil {
		s.registrationError(c, err)
		return
	}

	if s.redis != nil {
		if _, err := s.redis.Increment(ctx, registrationDayKey(time.Now()), 48*time.Hour); err != nil {
			s.log.Warn("registration_counter_failed", "error", err)
		}
	}

	token, err := auth.NewToken(acct.ID, []byte(s.cfg.TokenSecret))
	if err != nil {
		s.log.Error("token_issue_failed", "user_id", acct.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "internal_error", "message": "could not issue session token"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// registrationError translates core outcomes into the wire contract: field
// errors and captcha challenges are client problems, everything else is ours.
func (s *Server) registrationError(c *gin.Context, err error) {
	var fe registration.FieldErrors
	if errors.As(err, &fe) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": fe})
		return
	}

	var ch *registration.Challenge
	if errors.As(err, &ch) {
		c.JSON(http.StatusBadRequest, gin.H{
			"captcha_key":     []string{"captcha-required"},
			"captcha_sitekey": ch.SiteKey,
			"captcha_service": ch.Service,
		})
		return
	}

	s.log.Error("registration_failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "internal_error", "message": "registration failed"}})
}

func (s *Server) getUser(c *gin.Context) {
	userID := c.Param("user_id")
	if _, err := security.ParseSnowflake(userID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "invalid_user_id", "message": "user_id must be a snowflake"}})
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	cacheKey := fmt.Sprintf("user:pub:%s", userID)
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey); err == nil && cached != "" {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "application/json", []byte(cached))
			return
		}
	}

	acct, err := s.accounts.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "not_found", "message": "unknown user"}})
			return
		}
		s.log.Error("user_lookup_failed", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "internal_error", "message": "lookup failed"}})
		return
	}

	// soft-deleted rows stay readable internally but are gone to the public
	if acct.Deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "not_found", "message": "unknown user"}})
		return
	}

	public := acct.Public()
	if s.redis != nil {
		if raw, err := json.Marshal(public); err == nil {
			_ = s.redis.Set(ctx, cacheKey, string(raw), 5*time.Minute)
		}
	}

	c.JSON(http.StatusOK, public)
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	dbOK := s.db != nil && s.db.Pool.Ping(ctx) == nil
	redisOK := s.redis != nil && s.redis.RDB().Ping(ctx).Err() == nil

	var registrationsToday int64
	if redisOK {
		registrationsToday, _ = s.redis.GetInt(ctx, registrationDayKey(time.Now()))
	}

	status := http.StatusOK
	if !dbOK {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"ok":                  dbOK,
		"db":                  dbOK,
		"redis":               redisOK,
		"registrations_today": registrationsToday,
	})
}

// registrationDayKey is the per-day registration counter key; counters expire
// two days after their last increment.
func registrationDayKey(t time.Time) string {
	return "registrations:day:" + t.UTC().Format("2006-01-02")
}
