package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"vsla-ledger/database"
	"vsla-ledger/models"
	"vsla-ledger/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// POST /api/groups
func CreateGroup(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)

	var req models.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	groupType := req.Type
	if groupType == "" {
		groupType = models.GroupTypeVSLA
	}

	group := models.Group{
		Name:      req.Name,
		Type:      groupType,
		CreatedBy: userID,
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}

		// Creator chairs the group
		if err := tx.Create(&models.GroupMember{GroupID: group.ID, UserID: userID, Role: "chairperson"}).Error; err != nil {
			return err
		}

		for _, memberInput := range req.Members {
			memberUUID, err := uuid.Parse(memberInput)
			if err != nil || memberUUID == userID {
				continue
			}
			var count int64
			tx.Model(&models.User{}).Where("id = ?", memberUUID).Count(&count)
			if count == 0 {
				continue
			}
			if err := tx.Create(&models.GroupMember{GroupID: group.ID, UserID: memberUUID, Role: "member"}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		utils.InternalError(c, "Failed to create group")
		return
	}

	var creator models.User
	database.DB.First(&creator, "id = ?", userID)
	database.DB.Create(&models.Activity{
		GroupID:     group.ID,
		UserID:      userID,
		Type:        "group_created",
		ReferenceID: group.ID,
		Description: fmt.Sprintf("%s created group \"%s\"", creator.Name, group.Name),
	})

	utils.SuccessResponse(c, http.StatusCreated, "Group created", buildGroupResponse(group.ID))
}

// GET /api/groups/:id
func GetGroup(c *gin.Context) {
	groupID, ok := groupParam(c)
	if !ok {
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", buildGroupResponse(groupID))
}

// POST /api/groups/:id/members
func AddMember(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)
	groupID, ok := groupParam(c)
	if !ok {
		return
	}

	var req models.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	var targetUser models.User
	found := false

	if req.UserID != "" {
		if memberUUID, err := uuid.Parse(req.UserID); err == nil {
			if err := database.DB.First(&targetUser, "id = ?", memberUUID).Error; err == nil {
				found = true
			}
		}
	}

	if !found && req.Phone != "" {
		if err := database.DB.Where("phone = ?", req.Phone).First(&targetUser).Error; err == nil {
			found = true
		}
	}

	if !found {
		utils.NotFound(c, "Member not found, register them first")
		return
	}

	if isMember(groupID, targetUser.ID) {
		utils.BadRequest(c, "User is already a member of this group")
		return
	}

	role := req.Role
	if role == "" {
		role = "member"
	}
	if err := database.DB.Create(&models.GroupMember{GroupID: groupID, UserID: targetUser.ID, Role: role}).Error; err != nil {
		utils.InternalError(c, "Failed to add member")
		return
	}

	var adder models.User
	database.DB.First(&adder, "id = ?", userID)
	var group models.Group
	database.DB.First(&group, "id = ?", groupID)

	database.DB.Create(&models.Activity{
		GroupID:     groupID,
		UserID:      userID,
		Type:        "member_joined",
		ReferenceID: targetUser.ID,
		Description: fmt.Sprintf("%s added %s to %s", adder.Name, targetUser.Name, group.Name),
	})

	utils.SuccessResponse(c, http.StatusOK, "Member added", targetUser.ToResponse())
}

// POST /api/groups/:id/projects
func CreateProject(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)
	groupID, ok := groupParam(c)
	if !ok {
		return
	}

	var req models.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	project := models.Project{
		GroupID:         groupID,
		Name:            req.Name,
		IsVSLACycle:     req.IsVSLACycle,
		Status:          models.ProjectStatusActive,
		ShareValue:      req.ShareValue,
		InterestRate:    req.InterestRate,
		MaxLoanMultiple: req.MaxLoanMultiple,
		PenaltyRate:     req.PenaltyRate,
		CreatedBy:       userID,
	}
	if start, err := utils.ParseDate(req.StartDate); err != nil {
		utils.BadRequest(c, "start_date must be YYYY-MM-DD")
		return
	} else if !start.IsZero() {
		project.StartDate = &start
	}
	if end, err := utils.ParseDate(req.EndDate); err != nil {
		utils.BadRequest(c, "end_date must be YYYY-MM-DD")
		return
	} else if !end.IsZero() {
		project.EndDate = &end
	}

	if err := database.DB.Create(&project).Error; err != nil {
		utils.InternalError(c, "Failed to create cycle")
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Cycle created", project)
}

// GET /api/projects/:id
func GetProject(c *gin.Context) {
	project, ok := projectParam(c)
	if !ok {
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", project)
}

// groupParam parses :id and checks the caller belongs to the group.
func groupParam(c *gin.Context) (uuid.UUID, bool) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid group ID")
		return uuid.Nil, false
	}

	var count int64
	database.DB.Model(&models.Group{}).Where("id = ?", groupID).Count(&count)
	if count == 0 {
		utils.NotFound(c, "Group not found")
		return uuid.Nil, false
	}

	if !isMember(groupID, utils.GetCurrentUserID(c)) {
		utils.Forbidden(c, "You are not a member of this group")
		return uuid.Nil, false
	}
	return groupID, true
}

// projectParam loads the project named by :id and checks the caller belongs
// to its group.
func projectParam(c *gin.Context) (*models.Project, bool) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid project ID")
		return nil, false
	}
	return loadProjectForCaller(c, projectID)
}

func loadProjectForCaller(c *gin.Context, projectID uuid.UUID) (*models.Project, bool) {
	var project models.Project
	if err := database.DB.First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Project not found")
		} else {
			utils.InternalError(c, "Failed to load project")
		}
		return nil, false
	}

	if !isMember(project.GroupID, utils.GetCurrentUserID(c)) {
		utils.Forbidden(c, "You are not a member of this group")
		return nil, false
	}
	return &project, true
}

// Helper: check group membership
func isMember(groupID, userID uuid.UUID) bool {
	var count int64
	database.DB.Model(&models.GroupMember{}).Where("group_id = ? AND user_id = ?", groupID, userID).Count(&count)
	return count > 0
}

// Helper: build full group response with members
func buildGroupResponse(groupID uuid.UUID) models.GroupResponse {
	var group models.Group
	database.DB.First(&group, "id = ?", groupID)

	var members []models.GroupMember
	database.DB.Where("group_id = ?", groupID).Preload("User").Find(&members)

	memberResponses := make([]models.GroupMemberResponse, 0, len(members))
	for _, m := range members {
		memberResponses = append(memberResponses, models.GroupMemberResponse{
			UserID:   m.UserID,
			Name:     m.User.Name,
			Phone:    m.User.Phone,
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		})
	}

	return models.GroupResponse{
		ID:          group.ID,
		Name:        group.Name,
		Type:        group.Type,
		CreatedBy:   group.CreatedBy,
		Balance:     group.Balance,
		LoanBalance: group.LoanBalance,
		Members:     memberResponses,
		CreatedAt:   group.CreatedAt,
	}
}
