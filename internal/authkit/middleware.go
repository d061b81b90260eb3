package authkit

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SubjectContextKey carries the verified subject id injected by RequireAccessToken.
const SubjectContextKey = "auth_subject"

const bearerPrefix = "Bearer "

// BearerToken extracts the token from an Authorization header, or "" when absent.
func BearerToken(request *http.Request) string {
	if request == nil {
		return ""
	}
	headerValue := request.Header.Get("Authorization")
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))
}

// RequireAccessToken verifies the bearer access token and injects the
// resolved subject id into the gin context under SubjectContextKey.
func RequireAccessToken(accessTokens *TokenIssuer) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		tokenString := BearerToken(contextGin.Request)
		if tokenString == "" {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "authentication required",
			})
			return
		}
		subjectID, verifyErr := accessTokens.Verify(tokenString)
		if verifyErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "authentication required",
			})
			return
		}
		contextGin.Set(SubjectContextKey, subjectID)
		contextGin.Next()
	}
}

// SubjectFromContext returns the subject id set by RequireAccessToken.
func SubjectFromContext(contextGin *gin.Context) (string, bool) {
	value, found := contextGin.Get(SubjectContextKey)
	if !found {
		return "", false
	}
	subjectID, ok := value.(string)
	if !ok || subjectID == "" {
		return "", false
	}
	return subjectID, true
}
