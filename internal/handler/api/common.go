package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"vpnshop/internal/models"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

func successResponse(c echo.Context, msg string, obj interface{}) error {
	return c.JSON(http.StatusOK, models.AdminReply{Ok: true, Msg: msg, Obj: obj})
}

func errorResponse(c echo.Context, code int, msg string) error {
	return c.JSON(code, models.AdminReply{Msg: msg})
}

// paginate slices items for the requested page.
func paginate[T any](items []T, page, limit int) models.Page[T] {
	total := len(items)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return models.Page[T]{
		Items: items[start:end],
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: totalPages(total, limit),
	}
}

func totalPages(total, limit int) int {
	if limit <= 0 {
		limit = defaultLimit
	}
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	if pages == 0 {
		pages = 1
	}
	return pages
}

// pageParams reads ?page= and ?limit= with defaults and bounds.
func pageParams(c echo.Context) (page, limit int) {
	page = queryInt(c, "page", 1)
	limit = queryInt(c, "limit", defaultLimit)
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

func queryInt(c echo.Context, key string, defaultVal int) int {
	v := c.QueryParam(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}
