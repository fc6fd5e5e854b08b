package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-events-api/internal/middleware"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func principalFromContext(c *gin.Context) (string, bool) {
	claims := middleware.ClaimsFrom(c)
	if claims == nil || claims.UserID == "" {
		return "", false
	}
	return claims.UserID, true
}

func pageParams(c *gin.Context) (int, int, error) {
	page, err := positiveQuery(c, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	size, err := positiveQuery(c, "page_size", defaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size, nil
}

func positiveQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, appErrors.WithDetails(appErrors.ErrInvalidField, key+" must be a positive integer", map[string]interface{}{"field": key})
	}
	return value, nil
}

func boolQuery(c *gin.Context, key string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return err == nil && value
}

func csvQuery(c *gin.Context, key string) []string {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
