package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type PaginationParams struct {
	Page   int
	Size   int
	Offset int
}

// ParsePagination reads page/size from the query string. Non-numeric or
// missing values fall back to the defaults rather than erroring.
func ParsePagination(c *fiber.Ctx) PaginationParams {
	page := parseIntDefault(c.Query("page"), 1)
	size := parseIntDefault(c.Query("size"), 15)

	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 15
	}
	if size > 100 {
		size = 100
	}

	return PaginationParams{
		Page:   page,
		Size:   size,
		Offset: (page - 1) * size,
	}
}

func ApplyPagination(db *gorm.DB, p PaginationParams) *gorm.DB {
	return db.Offset(p.Offset).Limit(p.Size)
}

// TotalPages is ceil(total/size).
func TotalPages(total int64, size int) int {
	return int((total + int64(size) - 1) / int64(size))
}

func parseIntDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
