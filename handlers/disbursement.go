package handlers

import (
	"errors"
	"net/http"
	"vsla-ledger/database"
	"vsla-ledger/models"
	"vsla-ledger/services"
	"vsla-ledger/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// POST /api/projects/:id/disbursements
func CreateDisbursement(c *gin.Context) {
	project, ok := projectParam(c)
	if !ok {
		return
	}

	var req models.CreateDisbursementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	date, err := utils.ParseDate(req.Date)
	if err != nil {
		utils.BadRequest(c, "disbursement_date must be YYYY-MM-DD")
		return
	}

	res, err := disbursements.Create(c.Request.Context(), services.DisbursementInput{
		ProjectID:   project.ID,
		Amount:      req.Amount,
		Date:        date,
		Description: req.Description,
		CreatedBy:   utils.GetCurrentUserID(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Disbursement created", res)
}

// GET /api/projects/:id/disbursements
func ListDisbursements(c *gin.Context) {
	project, ok := projectParam(c)
	if !ok {
		return
	}

	list, err := disbursements.List(c.Request.Context(), project.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", list)
}

// DELETE /api/disbursements/:id
func DeleteDisbursement(c *gin.Context) {
	disbursementID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid disbursement ID")
		return
	}

	var d models.Disbursement
	if err := database.DB.Select("id", "project_id").First(&d, "id = ?", disbursementID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Disbursement not found")
		} else {
			utils.InternalError(c, "Failed to load disbursement")
		}
		return
	}
	if _, ok := loadProjectForCaller(c, d.ProjectID); !ok {
		return
	}

	if err := disbursements.Delete(c.Request.Context(), utils.GetCurrentUserID(c), disbursementID); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Disbursement deleted", nil)
}
