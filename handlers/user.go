package handlers

import (
	"net/http"
	"vsla-ledger/database"
	"vsla-ledger/models"
	"vsla-ledger/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// POST /api/members
func CreateMember(c *gin.Context) {
	var req models.CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	user := models.User{Name: req.Name, Phone: req.Phone, Email: req.Email}
	if err := database.DB.Create(&user).Error; err != nil {
		utils.InternalError(c, "Failed to create member")
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Member created", user.ToResponse())
}

// GET /api/members/:id
func GetMember(c *gin.Context) {
	memberID, ok := memberParam(c)
	if !ok {
		return
	}

	var user models.User
	if err := database.DB.First(&user, "id = ?", memberID).Error; err != nil {
		utils.NotFound(c, "User not found")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", user.ToResponse())
}

// PUT /api/users/me/fcm-token
func UpdateFCMToken(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)

	var req models.UpdateFCMTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	database.DB.Model(&models.User{}).Where("id = ?", userID).Update("fcm_token", req.Token)

	utils.SuccessResponse(c, http.StatusOK, "FCM token updated", nil)
}

// memberParam parses :id. Callers may read their own records or those of
// anyone they share a group with.
func memberParam(c *gin.Context) (uuid.UUID, bool) {
	memberID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid member ID")
		return uuid.Nil, false
	}

	callerID := utils.GetCurrentUserID(c)
	if callerID == memberID {
		return memberID, true
	}

	var count int64
	database.DB.Model(&models.GroupMember{}).
		Where("user_id = ? AND group_id IN (?)", memberID,
			database.DB.Model(&models.GroupMember{}).Select("group_id").Where("user_id = ?", callerID)).
		Count(&count)
	if count == 0 {
		utils.Forbidden(c, "You do not share a group with this member")
		return uuid.Nil, false
	}
	return memberID, true
}
