package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Query is the offset/limit window parsed from the request.
type Query struct {
	Start int
	Limit int
}

// Result wraps one page of data with the unpaged total.
type Result struct {
	Data  interface{} `json:"data"`
	Total int64       `json:"total"`
}

// ParseQuery reads page and limit from the request query, clamping to
// sane bounds.
func ParseQuery(c *gin.Context) *Query {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	return &Query{
		Start: (page - 1) * limit,
		Limit: limit,
	}
}
