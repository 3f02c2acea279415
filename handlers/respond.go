package handlers

import (
	"errors"
	"log"
	"net/http"
	"vsla-ledger/database"
	"vsla-ledger/services"
	"vsla-ledger/utils"

	"github.com/gin-gonic/gin"
)

var (
	ledger        *services.LedgerService
	disbursements *services.DisbursementService
	meetings      *services.MeetingService
)

// Init builds the ledger services on top of database.DB. It must run after
// database.Connect.
func Init(cache services.BalanceCache, notifier services.Notifier) {
	engine := services.NewEngine(database.DB, cache)
	ledger = services.NewLedgerService(database.DB, engine, notifier)
	disbursements = services.NewDisbursementService(database.DB, engine, notifier)
	meetings = services.NewMeetingService(database.DB, ledger, notifier)
}

var kindStatus = map[services.ErrorKind]int{
	services.KindValidation: http.StatusBadRequest,
	services.KindBusiness:   http.StatusUnprocessableEntity,
	services.KindNotFound:   http.StatusNotFound,
	services.KindConflict:   http.StatusConflict,
	services.KindInternal:   http.StatusInternalServerError,
}

// respondError maps a service error onto the API envelope.
func respondError(c *gin.Context, err error) {
	var dup *services.DuplicateMeetingError
	if errors.As(err, &dup) {
		utils.TypedErrorResponse(c, http.StatusConflict, "duplicate_meeting", "Meeting already submitted", gin.H{
			"meeting_id":        dup.MeetingID,
			"meeting_number":    dup.MeetingNumber,
			"processing_status": dup.ProcessingStatus,
		})
		return
	}

	var le *services.LedgerError
	if !errors.As(err, &le) {
		log.Printf("❌ Unhandled error on %s: %v", c.FullPath(), err)
		utils.InternalError(c, "Something went wrong")
		return
	}

	status, ok := kindStatus[le.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if le.Kind == services.KindInternal {
		log.Printf("❌ %s: %v", c.FullPath(), le)
	}
	utils.TypedErrorResponse(c, status, le.Type, le.Message, nil)
}
