package handler

import (
	stderrors "errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vhvplatform/go-hotel-notification-service/internal/shared/errors"
)

// respondError writes err with the status mapped from its AppError code
func respondError(c *gin.Context, err error, message string) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.NewInternalError(message, err)
	}
	c.JSON(errors.HTTPStatus(appErr), appErr)
}

// pageParams reads page and page_size query parameters
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}
