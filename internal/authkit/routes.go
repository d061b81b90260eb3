package authkit

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pangmarket/authd/internal/userstore"
)

// RouteDependencies bundles the collaborators MountAuthRoutes wires into
// the handlers. Everything is passed explicitly; there is no package-level
// registry.
type RouteDependencies struct {
	Users         userstore.UserStore
	Credentials   *CredentialVerifier
	AccessTokens  *TokenIssuer
	RefreshTokens *TokenIssuer
	Logger        *zap.Logger
	Metrics       MetricsRecorder
}

type signupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name" binding:"required,min=2"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type userPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func profilePayload(record userstore.UserRecord) userPayload {
	return userPayload{
		ID:    record.ID,
		Email: record.Email,
		Name:  record.DisplayName,
	}
}

// MountAuthRoutes registers /api/auth/signup, /login, /refresh, /me,
// /logout, and /health.
func MountAuthRoutes(router gin.IRouter, configuration ServerConfig, deps RouteDependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recordMetric := func(event string) {
		if deps.Metrics != nil {
			deps.Metrics.Increment(event)
		}
	}

	authGroup := router.Group("/api/auth")

	authGroup.POST("/signup", func(contextGin *gin.Context) {
		var inbound signupRequest
		if bindErr := contextGin.ShouldBindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "Validation Error",
				"message": validationMessage(bindErr),
			})
			return
		}

		passwordHash, hashErr := HashPassword(inbound.Password)
		if hashErr != nil {
			respondInternal(contextGin, configuration, logger, "auth.signup.hash", hashErr)
			return
		}

		record, createErr := deps.Users.Create(contextGin, userstore.UserRecord{
			Email:        inbound.Email,
			PasswordHash: passwordHash,
			DisplayName:  inbound.Name,
		})
		if createErr != nil {
			if errors.Is(createErr, userstore.ErrEmailTaken) {
				recordMetric(MetricSignupDuplicate)
				contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error":   "Bad Request",
					"message": "email is already registered",
				})
				return
			}
			respondInternal(contextGin, configuration, logger, "auth.signup.create", createErr)
			return
		}

		recordMetric(MetricSignupSuccess)
		contextGin.JSON(http.StatusCreated, gin.H{
			"success": true,
			"message": "signup completed",
			"user":    profilePayload(record),
		})
	})

	authGroup.POST("/login", func(contextGin *gin.Context) {
		var inbound loginRequest
		if bindErr := contextGin.ShouldBindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "Validation Error",
				"message": validationMessage(bindErr),
			})
			return
		}

		record, verifyErr := deps.Credentials.Verify(contextGin, inbound.Email, inbound.Password)
		if verifyErr != nil {
			if errors.Is(verifyErr, ErrCredentialsNotFound) || errors.Is(verifyErr, ErrCredentialsInvalidPassword) {
				// One generic message for both failure modes so callers
				// cannot probe which part was wrong.
				recordMetric(MetricLoginRejected)
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "Unauthorized",
					"message": "invalid email or password",
				})
				return
			}
			respondInternal(contextGin, configuration, logger, "auth.login.verify", verifyErr)
			return
		}

		accessToken, _, accessErr := deps.AccessTokens.Issue(record.ID)
		if accessErr != nil {
			respondInternal(contextGin, configuration, logger, "auth.login.access_token", accessErr)
			return
		}
		refreshToken, _, refreshErr := deps.RefreshTokens.Issue(record.ID)
		if refreshErr != nil {
			respondInternal(contextGin, configuration, logger, "auth.login.refresh_token", refreshErr)
			return
		}

		recordMetric(MetricLoginSuccess)
		contextGin.JSON(http.StatusOK, gin.H{
			"accessToken":  accessToken,
			"refreshToken": refreshToken,
			"user":         profilePayload(record),
		})
	})

	authGroup.POST("/refresh", func(contextGin *gin.Context) {
		var inbound refreshRequest
		if bindErr := contextGin.ShouldBindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "Validation Error",
				"message": "refreshToken is required",
			})
			return
		}

		subjectID, verifyErr := deps.RefreshTokens.Verify(inbound.RefreshToken)
		if verifyErr != nil {
			recordMetric(MetricRefreshRejected)
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "session expired",
			})
			return
		}

		if _, findErr := deps.Users.FindByID(contextGin, subjectID); findErr != nil {
			if errors.Is(findErr, userstore.ErrUserNotFound) {
				recordMetric(MetricRefreshRejected)
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "Unauthorized",
					"message": "session expired",
				})
				return
			}
			respondInternal(contextGin, configuration, logger, "auth.refresh.lookup", findErr)
			return
		}

		// The refresh token is not rotated: it stays valid until its own
		// expiry and only a new access token is minted.
		accessToken, _, accessErr := deps.AccessTokens.Issue(subjectID)
		if accessErr != nil {
			respondInternal(contextGin, configuration, logger, "auth.refresh.access_token", accessErr)
			return
		}

		recordMetric(MetricRefreshSuccess)
		contextGin.JSON(http.StatusOK, gin.H{
			"accessToken": accessToken,
		})
	})

	authGroup.GET("/me", RequireAccessToken(deps.AccessTokens), func(contextGin *gin.Context) {
		subjectID, found := SubjectFromContext(contextGin)
		if !found {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "authentication required",
			})
			return
		}
		record, findErr := deps.Users.FindByID(contextGin, subjectID)
		if findErr != nil {
			if errors.Is(findErr, userstore.ErrUserNotFound) {
				contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{
					"error":   "Not Found",
					"message": "user not found",
				})
				return
			}
			respondInternal(contextGin, configuration, logger, "auth.me.lookup", findErr)
			return
		}
		contextGin.JSON(http.StatusOK, profilePayload(record))
	})

	authGroup.POST("/logout", func(contextGin *gin.Context) {
		// Best effort: issued access tokens are not revoked server-side.
		// The client clears its local state regardless of this response.
		if tokenString := BearerToken(contextGin.Request); tokenString != "" {
			if _, verifyErr := deps.AccessTokens.Verify(tokenString); verifyErr != nil {
				logger.Info("logout with invalid access token",
					zap.String("code", "auth.logout.invalid_token"))
			}
		}
		recordMetric(MetricLogout)
		contextGin.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "logged out",
		})
	})

	router.GET("/health", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
}

func respondInternal(contextGin *gin.Context, configuration ServerConfig, logger *zap.Logger, code string, cause error) {
	logger.Error("internal error",
		zap.String("code", code),
		zap.Error(cause))
	message := "something went wrong"
	if configuration.DevErrors {
		message = cause.Error()
	}
	contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":   "Internal Server Error",
		"message": message,
	})
}
