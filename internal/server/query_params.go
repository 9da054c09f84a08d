package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func parsePagination(c *gin.Context) (limit, offset int, err error) {
	limit, err = parseQueryInt(c, "limit", 50)
	if err != nil || limit < 0 {
		return 0, 0, errors.New("invalid_limit")
	}
	offset, err = parseQueryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		return 0, 0, errors.New("invalid_offset")
	}
	return limit, offset, nil
}

func parseQueryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func parseSnowflakeID(value string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid_snowflake_id")
	}
	return parsed, nil
}

func parseOptionalTime(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
