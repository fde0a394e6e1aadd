package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

// ErrorResponse is the uniform error payload
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// handleError maps domain errors to HTTP responses. Unknown errors are
// masked as internal and logged with their cause.
func handleError(c *gin.Context, err error) {
	apiErr, ok := apierrors.As(err)
	if !ok {
		logrus.WithError(err).Error("Unhandled error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    string(apierrors.CodeInternal),
			Message: "error interno del servidor",
		})
		return
	}

	status := http.StatusInternalServerError
	switch apiErr.Code {
	case apierrors.CodeValidation:
		status = http.StatusBadRequest
	case apierrors.CodeNotFound:
		status = http.StatusNotFound
	case apierrors.CodeConflict, apierrors.CodeAlreadyProcessed:
		status = http.StatusConflict
	case apierrors.CodeForbidden:
		status = http.StatusForbidden
	case apierrors.CodeInternal:
		logrus.WithError(err).Error("Internal error")
	}

	c.JSON(status, ErrorResponse{
		Code:    string(apiErr.Code),
		Message: apiErr.Message,
		Details: apiErr.Details,
	})
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:    string(apierrors.CodeValidation),
		Message: "formato de solicitud invalido: " + err.Error(),
	})
}

// callerFrom reads the caller placed by the identity middleware
func callerFrom(c *gin.Context) models.Caller {
	value, _ := c.Get(callerContextKey)
	caller, _ := value.(models.Caller)
	return caller
}

func parseObjectID(c *gin.Context, param string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    string(apierrors.CodeValidation),
			Message: "identificador invalido: " + c.Param(param),
		})
		return primitive.NilObjectID, false
	}
	return id, true
}
