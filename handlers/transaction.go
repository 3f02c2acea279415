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

// bindTransaction reads the common posting body for the project in :id.
func bindTransaction(c *gin.Context) (*models.PostTransactionRequest, services.TransactionInput, bool) {
	project, ok := projectParam(c)
	if !ok {
		return nil, services.TransactionInput{}, false
	}

	var req models.PostTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return nil, services.TransactionInput{}, false
	}

	memberID, err := uuid.Parse(req.UserID)
	if err != nil {
		utils.BadRequest(c, "Invalid user_id")
		return nil, services.TransactionInput{}, false
	}
	date, err := utils.ParseDate(req.Date)
	if err != nil {
		utils.BadRequest(c, "transaction_date must be YYYY-MM-DD")
		return nil, services.TransactionInput{}, false
	}

	return &req, services.TransactionInput{
		UserID:      memberID,
		ProjectID:   project.ID,
		Amount:      req.Amount,
		Description: req.Description,
		Date:        date,
		CreatedBy:   utils.GetCurrentUserID(c),
	}, true
}

func respondPosted(c *gin.Context, res *services.TransactionResult, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, res.Message, res)
}

// POST /api/projects/:id/savings
func RecordSaving(c *gin.Context) {
	_, in, ok := bindTransaction(c)
	if !ok {
		return
	}
	res, err := ledger.RecordSaving(c.Request.Context(), in)
	respondPosted(c, res, err)
}

// POST /api/projects/:id/shares
func RecordSharePurchase(c *gin.Context) {
	req, in, ok := bindTransaction(c)
	if !ok {
		return
	}
	res, err := ledger.RecordSharePurchase(c.Request.Context(), services.SharePurchaseInput{
		TransactionInput: in,
		Shares:           req.Shares,
	})
	respondPosted(c, res, err)
}

// POST /api/projects/:id/loans
func DisburseLoan(c *gin.Context) {
	req, in, ok := bindTransaction(c)
	if !ok {
		return
	}
	res, err := ledger.DisburseLoan(c.Request.Context(), services.LoanInput{
		TransactionInput: in,
		InterestRate:     req.InterestRate,
	})
	respondPosted(c, res, err)
}

// POST /api/projects/:id/repayments
func RecordLoanRepayment(c *gin.Context) {
	_, in, ok := bindTransaction(c)
	if !ok {
		return
	}
	res, err := ledger.RecordLoanRepayment(c.Request.Context(), in)
	respondPosted(c, res, err)
}

// POST /api/projects/:id/fines
func RecordFine(c *gin.Context) {
	_, in, ok := bindTransaction(c)
	if !ok {
		return
	}
	res, err := ledger.RecordFine(c.Request.Context(), in)
	respondPosted(c, res, err)
}

// entryParam loads the entry named by :id, deleted or not, and checks the
// caller belongs to the owning group.
func entryParam(c *gin.Context) (uuid.UUID, bool) {
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid entry ID")
		return uuid.Nil, false
	}

	var entry models.LedgerEntry
	if err := database.DB.Unscoped().Select("id", "project_id").First(&entry, "id = ?", entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Entry not found")
		} else {
			utils.InternalError(c, "Failed to load entry")
		}
		return uuid.Nil, false
	}

	if _, ok := loadProjectForCaller(c, entry.ProjectID); !ok {
		return uuid.Nil, false
	}
	return entryID, true
}

// DELETE /api/entries/:id
func DeleteEntry(c *gin.Context) {
	entryID, ok := entryParam(c)
	if !ok {
		return
	}
	res, err := ledger.DeleteTransaction(c.Request.Context(), utils.GetCurrentUserID(c), entryID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, res.Message, res)
}

// POST /api/entries/:id/restore
func RestoreEntry(c *gin.Context) {
	entryID, ok := entryParam(c)
	if !ok {
		return
	}
	res, err := ledger.RestoreTransaction(c.Request.Context(), utils.GetCurrentUserID(c), entryID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, res.Message, res)
}
