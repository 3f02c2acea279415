package handlers

import (
	"net/http"
	"vsla-ledger/utils"

	"github.com/gin-gonic/gin"
)

// GET /api/groups/:id/activity
func GetGroupActivity(c *gin.Context) {
	groupID, ok := groupParam(c)
	if !ok {
		return
	}

	var pagination utils.PaginationQuery
	c.ShouldBindQuery(&pagination)

	activities, err := ledger.ListActivity(c.Request.Context(), groupID, pagination.Limit, pagination.Offset())
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", activities)
}
