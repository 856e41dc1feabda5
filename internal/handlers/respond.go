package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/exp/slog"

	"github.com/instoredealz-omar/instoreaws-sub000/internal/apperrors"
)

// respondError maps a service error onto the wire. Business errors carry
// their message; internal failures are logged with context and surfaced
// opaquely.
func respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	body := gin.H{"error": apperrors.Message(err)}

	if retryAt := apperrors.RetryAt(err); retryAt != nil {
		body["nextAttemptAt"] = retryAt.UTC().Format(time.RFC3339)
	}

	if apperrors.KindOf(err) == apperrors.KindInternal {
		slog.Error("request failed",
			"error", err,
			"path", c.Request.URL.Path,
			"requestId", c.GetString("requestId"),
		)
	}

	c.JSON(status, body)
}

// subjectID extracts the authenticated caller's id set by the JWT
// middleware.
func subjectID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.GetString("subjectId"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid subject identity"})
		return primitive.NilObjectID, false
	}
	return id, true
}
