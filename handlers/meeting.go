package handlers

import (
	"net/http"
	"vsla-ledger/database"
	"vsla-ledger/models"
	"vsla-ledger/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// POST /api/meetings
func SubmitMeeting(c *gin.Context) {
	var payload models.MeetingPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	// An unknown cycle is reported by the service; a known one must be ours.
	if cycleID, err := uuid.Parse(payload.CycleID); err == nil {
		var cycle models.Project
		if database.DB.Select("id", "group_id").First(&cycle, "id = ?", cycleID).Error == nil &&
			!isMember(cycle.GroupID, utils.GetCurrentUserID(c)) {
			utils.Forbidden(c, "You are not a member of this group")
			return
		}
	}

	res, err := meetings.Submit(c.Request.Context(), utils.GetCurrentUserID(c), payload)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Meeting "+res.ProcessingStatus, res)
}

// GET /api/meetings/:id
func GetMeeting(c *gin.Context) {
	record, ok := meetingParam(c)
	if !ok {
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", record)
}

// POST /api/meetings/:id/reprocess
func ReprocessMeeting(c *gin.Context) {
	record, ok := meetingParam(c)
	if !ok {
		return
	}

	res, err := meetings.Reprocess(c.Request.Context(), record.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Meeting "+res.ProcessingStatus, res)
}

func meetingParam(c *gin.Context) (*models.MeetingRecord, bool) {
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "Invalid meeting ID")
		return nil, false
	}

	record, err := meetings.Get(c.Request.Context(), meetingID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !isMember(record.GroupID, utils.GetCurrentUserID(c)) {
		utils.Forbidden(c, "You are not a member of this group")
		return nil, false
	}
	return record, true
}
