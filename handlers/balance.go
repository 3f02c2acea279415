package handlers

import (
	"net/http"
	"vsla-ledger/models"
	"vsla-ledger/services"
	"vsla-ledger/utils"

	"github.com/gin-gonic/gin"
)

type statementQuery struct {
	ProjectID   string `form:"project_id"`
	AccountType string `form:"account_type"`
	Limit       int    `form:"limit"`
}

// GET /api/groups/:id/balance
func GetGroupBalance(c *gin.Context) {
	groupID, ok := groupParam(c)
	if !ok {
		return
	}
	projectID, err := utils.ParseOptionalUUID(c.Query("project_id"))
	if err != nil {
		utils.BadRequest(c, "Invalid project_id")
		return
	}

	bal, err := ledger.GetGroupBalance(c.Request.Context(), groupID, projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", bal)
}

// GET /api/projects/:id/verify
func VerifyProject(c *gin.Context) {
	project, ok := projectParam(c)
	if !ok {
		return
	}

	res, err := ledger.VerifyAccountingBalance(c.Request.Context(), project.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", res)
}

// GET /api/members/:id/balance
func GetMemberBalance(c *gin.Context) {
	memberID, ok := memberParam(c)
	if !ok {
		return
	}
	projectID, err := utils.ParseOptionalUUID(c.Query("project_id"))
	if err != nil {
		utils.BadRequest(c, "Invalid project_id")
		return
	}

	bal, err := ledger.GetMemberBalance(c.Request.Context(), memberID, projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", bal)
}

// GET /api/members/:id/statement
func GetMemberStatement(c *gin.Context) {
	memberID, ok := memberParam(c)
	if !ok {
		return
	}

	var q statementQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	projectID, err := utils.ParseOptionalUUID(q.ProjectID)
	if err != nil {
		utils.BadRequest(c, "Invalid project_id")
		return
	}

	filter := services.StatementFilter{ProjectID: projectID, Limit: q.Limit}
	if q.AccountType != "" {
		at := models.AccountType(q.AccountType)
		filter.AccountType = &at
	}

	entries, err := ledger.GetMemberStatement(c.Request.Context(), memberID, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", entries)
}
