package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/mongo"

	"fixitnow/chatdesk/internal/api/middleware"
	"fixitnow/chatdesk/internal/models"
	"fixitnow/chatdesk/internal/services"
	"fixitnow/chatdesk/internal/utils"
)

const maxPageLimit = 100

// RegisterValidators adds the custom binding rules used by request DTOs.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	return v.RegisterValidation("sixid", func(fl validator.FieldLevel) bool {
		id, ok := fl.Field().Interface().(utils.SixID)
		return ok && !id.IsZero()
	})
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondFail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

// respondError maps domain errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		respondFail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotParticipant), errors.Is(err, models.ErrForbidden):
		respondFail(c, http.StatusForbidden, err.Error())
	case errors.Is(err, mongo.ErrNoDocuments):
		respondFail(c, http.StatusNotFound, "Not found")
	case errors.Is(err, models.ErrMessageNotFound):
		respondFail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrAlreadyResolved), errors.Is(err, models.ErrConflict):
		respondFail(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		log.Printf("Unhandled error on %s %s: %v", c.Request.Method, c.FullPath(), err)
		respondFail(c, http.StatusInternalServerError, "Internal server error")
	}
}

// bindJSON binds and validates the body, answering 400 on failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondFail(c, http.StatusBadRequest, fmt.Sprintf("Invalid request: %v", err))
		return false
	}
	return true
}

func idParam(c *gin.Context, name string) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param(name))
	if err != nil {
		respondFail(c, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name))
		return utils.SixID{}, false
	}
	return id, true
}

func actorFrom(c *gin.Context) (services.Actor, bool) {
	id, ok := middleware.CurrentUserID(c)
	if !ok {
		respondFail(c, http.StatusUnauthorized, "Authentication required")
		return services.Actor{}, false
	}
	return services.Actor{UserID: id, IsAdmin: c.GetBool(middleware.ContextKeyIsAdmin)}, true
}

// paging reads page (1-based) and limit query parameters.
func paging(c *gin.Context, defaultLimit int) (page, limit int, ok bool) {
	page, limit = 1, defaultLimit
	if v := c.Query("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 {
			respondFail(c, http.StatusBadRequest, "Invalid page")
			return 0, 0, false
		}
		page = p
	}
	if v := c.Query("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			respondFail(c, http.StatusBadRequest, "Invalid limit")
			return 0, 0, false
		}
		limit = l
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit, true
}

// timeQuery accepts RFC 3339 timestamps or plain dates.
func timeQuery(c *gin.Context, name string) (*time.Time, bool) {
	v := c.Query(name)
	if v == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, true
		}
	}
	respondFail(c, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name))
	return nil, false
}
