package server

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
)

type gctx = context.Context

func intQuery(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return v
}
