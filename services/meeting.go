package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"vsla-ledger/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const meetingNumberAttempts = 5

const (
	sectionAttendance     = "attendance"
	sectionTransactions   = "transactions"
	sectionSharePurchases = "share_purchases"
	sectionLoans          = "loans"
	sectionActionPlans    = "action_plans"
)

// MeetingService accepts meetings recorded offline and expands them into
// ledger postings item by item.
type MeetingService struct {
	db       *gorm.DB
	ledger   *LedgerService
	notifier Notifier
}

func NewMeetingService(db *gorm.DB, ledger *LedgerService, notifier Notifier) *MeetingService {
	return &MeetingService{db: db, ledger: ledger, notifier: notifier}
}

func (s *MeetingService) findByLocalID(ctx context.Context, localID string) (*models.MeetingRecord, error) {
	var record models.MeetingRecord
	err := s.db.WithContext(ctx).Where("local_id = ?", localID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func duplicateOf(record *models.MeetingRecord) *DuplicateMeetingError {
	return &DuplicateMeetingError{
		LocalID:          record.LocalID,
		MeetingID:        record.ID,
		MeetingNumber:    record.MeetingNumber,
		ProcessingStatus: record.ProcessingStatus,
	}
}

func toJSON(v any) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// Submit stores the batch under a server-assigned meeting number and processes
// it. A local_id that was already submitted yields *DuplicateMeetingError and
// no ledger writes.
func (s *MeetingService) Submit(ctx context.Context, createdBy uuid.UUID, p models.MeetingPayload) (*models.MeetingResult, error) {
	p.LocalID = strings.TrimSpace(p.LocalID)
	if p.LocalID == "" {
		return nil, validationError("local_id is required")
	}
	cycleID, err := uuid.Parse(p.CycleID)
	if err != nil {
		return nil, validationError("invalid cycle_id")
	}

	existing, err := s.findByLocalID(ctx, p.LocalID)
	if err != nil {
		return nil, internalError("failed to check meeting", err)
	}
	if existing != nil {
		return nil, duplicateOf(existing)
	}

	var cycle models.Project
	if err := s.db.WithContext(ctx).First(&cycle, "id = ?", cycleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, validationError("cycle %s not found", cycleID)
		}
		return nil, internalError("failed to load cycle", err)
	}
	if !cycle.IsActive() {
		return nil, businessError(ErrTypeInactiveCycle, "cycle %q is not active", cycle.Name)
	}
	if !cycle.IsVSLACycle {
		return nil, businessError(ErrTypeNotVSLA, "cycle %q is not a VSLA cycle", cycle.Name)
	}

	groupID := cycle.GroupID
	if p.GroupID != "" {
		if groupID, err = uuid.Parse(p.GroupID); err != nil {
			return nil, validationError("invalid group_id")
		}
	}
	var group models.Group
	if err := s.db.WithContext(ctx).First(&group, "id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, validationError("group %s not found", groupID)
		}
		return nil, internalError("failed to load group", err)
	}
	if !group.IsVSLA() {
		return nil, businessError(ErrTypeNotVSLA, "group %q is not a VSLA group", group.Name)
	}
	if group.ID != cycle.GroupID {
		return nil, validationError("cycle %s does not belong to group %s", cycle.ID, group.ID)
	}

	meetingDate := today()
	if p.MeetingDate != "" {
		if meetingDate, err = time.Parse("2006-01-02", p.MeetingDate); err != nil {
			return nil, validationError("meeting_date must be YYYY-MM-DD")
		}
	}

	record := models.MeetingRecord{
		LocalID:          p.LocalID,
		CycleID:          cycle.ID,
		GroupID:          group.ID,
		MeetingDate:      meetingDate,
		Notes:            p.Notes,
		CreatedByID:      createdBy,
		ProcessingStatus: models.MeetingPending,
	}
	for _, col := range []struct {
		dst *datatypes.JSON
		v   any
	}{
		{&record.Attendance, p.Attendance},
		{&record.Transactions, p.Transactions},
		{&record.Loans, p.Loans},
		{&record.SharePurchases, p.SharePurchases},
		{&record.ActionPlans, p.ActionPlans},
	} {
		if *col.dst, err = toJSON(col.v); err != nil {
			return nil, validationError("invalid meeting payload: %v", err)
		}
	}

	if err := s.insertNumbered(ctx, &record); err != nil {
		return nil, err
	}
	log.Printf("✅ Meeting #%d (%s) stored for cycle %s", record.MeetingNumber, record.LocalID, cycle.ID)

	if err := s.setStatus(ctx, record.ID, models.MeetingProcessing); err != nil {
		return nil, internalError("failed to start processing", err)
	}
	result, err := s.process(ctx, &record, p)
	if err != nil {
		s.markFailed(ctx, record.ID)
		return nil, err
	}
	s.afterProcessing(record, group, *result)
	return result, nil
}

// insertNumbered assigns max+1 as the meeting number. The unique index on
// (cycle_id, group_id, meeting_number) turns a lost race into a retry.
func (s *MeetingService) insertNumbered(ctx context.Context, record *models.MeetingRecord) error {
	var lastErr error
	for attempt := 1; attempt <= meetingNumberAttempts; attempt++ {
		lastErr = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var current int
			if err := tx.Model(&models.MeetingRecord{}).
				Where("cycle_id = ? AND group_id = ?", record.CycleID, record.GroupID).
				Select("COALESCE(MAX(meeting_number), 0)").Row().Scan(&current); err != nil {
				return err
			}
			record.MeetingNumber = current + 1
			return tx.Create(record).Error
		})
		if lastErr == nil {
			return nil
		}
		if !isDuplicateKey(lastErr) {
			return internalError("failed to store meeting", lastErr)
		}

		existing, err := s.findByLocalID(ctx, record.LocalID)
		if err != nil {
			return internalError("failed to check meeting", err)
		}
		if existing != nil {
			return duplicateOf(existing)
		}
		log.Printf("⚠️  Meeting number %d taken, retrying (attempt %d)", record.MeetingNumber, attempt)
	}
	return internalError("failed to assign meeting number", lastErr)
}

func (s *MeetingService) setStatus(ctx context.Context, id uuid.UUID, status string) error {
	return s.db.WithContext(ctx).Model(&models.MeetingRecord{}).
		Where("id = ?", id).Update("processing_status", status).Error
}

// markFailed moves a meeting whose run broke off out of processing so it can
// be reprocessed. If this write fails too, the stale takeover in Reprocess
// still recovers it.
func (s *MeetingService) markFailed(ctx context.Context, id uuid.UUID) {
	if err := s.setStatus(context.WithoutCancel(ctx), id, models.MeetingFailed); err != nil {
		log.Printf("⚠️  Meeting %s left in processing: %v", id, err)
	}
}

// Reprocess runs a failed or needs_review meeting again from its stored
// payload. A meeting stuck in processing longer than
// models.StaleProcessingAfter is taken over as well. Items that were posted
// before are skipped.
func (s *MeetingService) Reprocess(ctx context.Context, meetingID uuid.UUID) (*models.MeetingResult, error) {
	var record models.MeetingRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", meetingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("meeting %s not found", meetingID)
		}
		return nil, internalError("failed to load meeting", err)
	}

	now := time.Now()
	if !record.CanReprocess(now) {
		return nil, businessError(ErrTypeInvalidStatus,
			"meeting is %s; only failed or needs_review meetings can be reprocessed", record.ProcessingStatus)
	}

	// The claim is conditional so two callers never run the same meeting.
	res := s.db.WithContext(ctx).Model(&models.MeetingRecord{}).
		Where("id = ?", meetingID).
		Where(s.db.Where("processing_status IN ?", []string{models.MeetingFailed, models.MeetingNeedsReview}).
			Or("processing_status = ? AND updated_at < ?", models.MeetingProcessing, now.Add(-models.StaleProcessingAfter))).
		Update("processing_status", models.MeetingProcessing)
	if res.Error != nil {
		return nil, internalError("failed to start reprocessing", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, businessError(ErrTypeInvalidStatus, "meeting %s is already being reprocessed", meetingID)
	}
	record.ProcessingStatus = models.MeetingProcessing

	payload, err := decodePayload(record)
	if err != nil {
		s.markFailed(ctx, record.ID)
		return nil, internalError("stored meeting payload is unreadable", err)
	}

	result, err := s.process(ctx, &record, payload)
	if err != nil {
		s.markFailed(ctx, record.ID)
		return nil, err
	}

	var group models.Group
	if err := s.db.WithContext(ctx).First(&group, "id = ?", record.GroupID).Error; err == nil {
		s.afterProcessing(record, group, *result)
	}
	return result, nil
}

func (s *MeetingService) Get(ctx context.Context, meetingID uuid.UUID) (*models.MeetingRecord, error) {
	var record models.MeetingRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", meetingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("meeting %s not found", meetingID)
		}
		return nil, internalError("failed to load meeting", err)
	}
	return &record, nil
}

func decodePayload(record models.MeetingRecord) (models.MeetingPayload, error) {
	p := models.MeetingPayload{
		LocalID: record.LocalID,
		CycleID: record.CycleID.String(),
		GroupID: record.GroupID.String(),
		Notes:   record.Notes,
	}
	for _, col := range []struct {
		raw datatypes.JSON
		dst any
	}{
		{record.Attendance, &p.Attendance},
		{record.Transactions, &p.Transactions},
		{record.Loans, &p.Loans},
		{record.SharePurchases, &p.SharePurchases},
		{record.ActionPlans, &p.ActionPlans},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return p, err
		}
	}
	return p, nil
}

// batch collects per-item outcomes. posted counts items whose entries exist,
// including ones written by an earlier run.
type batch struct {
	record   *models.MeetingRecord
	errors   []string
	warnings []string
	posted   int
}

func (b *batch) fail(section string, i int, err error) {
	msg := err.Error()
	var le *LedgerError
	if errors.As(err, &le) {
		msg = le.Message
		if le.Kind == KindInternal {
			log.Printf("❌ Meeting %s %s[%d]: %v", b.record.ID, section, i, err)
		}
	}
	b.errors = append(b.errors, fmt.Sprintf("%s[%d]: %s", section, i, msg))
}

func (b *batch) warn(section string, i int, format string, args ...any) {
	b.warnings = append(b.warnings, fmt.Sprintf("%s[%d]: %s", section, i, fmt.Sprintf(format, args...)))
}

func (b *batch) reference(section string, i int) string {
	return fmt.Sprintf("meeting:%s:%s:%d", b.record.ID, section, i)
}

func (b *batch) describe(description, fallback string) string {
	if description != "" {
		return description
	}
	return fmt.Sprintf("Meeting #%d %s", b.record.MeetingNumber, fallback)
}

// meetingStatus decides the outcome of one processing run.
func meetingStatus(errorCount, posted int) string {
	switch {
	case errorCount == 0:
		return models.MeetingCompleted
	case posted > 0:
		return models.MeetingNeedsReview
	default:
		return models.MeetingFailed
	}
}

// process expands each item into its own ledger posting so one bad item never
// rolls back its siblings, then stores the outcome on the record.
func (s *MeetingService) process(ctx context.Context, record *models.MeetingRecord, p models.MeetingPayload) (*models.MeetingResult, error) {
	b := &batch{record: record}

	present := s.countAttendance(ctx, b, p.Attendance)

	for i, item := range p.Transactions {
		s.postItem(ctx, b, sectionTransactions, i, item.MemberID, func(in TransactionInput) (*TransactionResult, error) {
			in.Amount = item.Amount
			switch item.Type {
			case "savings", "saving":
				in.Description = b.describe(item.Description, "savings")
				return s.ledger.RecordSaving(ctx, in)
			case "fine":
				in.Description = b.describe(item.Description, "fine")
				return s.ledger.RecordFine(ctx, in)
			case "loan_repayment":
				in.Description = b.describe(item.Description, "loan repayment")
				return s.ledger.RecordLoanRepayment(ctx, in)
			default:
				return nil, validationError("unknown transaction type %q", item.Type)
			}
		})
	}

	for i, item := range p.SharePurchases {
		s.postItem(ctx, b, sectionSharePurchases, i, item.InvestorID, func(in TransactionInput) (*TransactionResult, error) {
			in.Amount = item.TotalAmount
			in.Description = b.describe("", "share purchase")
			return s.ledger.RecordSharePurchase(ctx, SharePurchaseInput{TransactionInput: in, Shares: item.NumberOfShares})
		})
	}

	for i, item := range p.Loans {
		s.postItem(ctx, b, sectionLoans, i, item.BorrowerID, func(in TransactionInput) (*TransactionResult, error) {
			in.Amount = item.Amount
			in.Description = b.describe(item.Purpose, "loan")
			if item.DurationMonths > 0 {
				in.Description = fmt.Sprintf("%s (%d months)", in.Description, item.DurationMonths)
			}
			return s.ledger.DisburseLoan(ctx, LoanInput{TransactionInput: in, InterestRate: item.InterestRate})
		})
	}

	for i, plan := range p.ActionPlans {
		if strings.TrimSpace(plan.Action) == "" {
			b.warn(sectionActionPlans, i, "action plan has no action")
		}
	}

	status := meetingStatus(len(b.errors), b.posted)
	now := time.Now()
	errorsJSON, _ := toJSON(nonNil(b.errors))
	warningsJSON, _ := toJSON(nonNil(b.warnings))
	err := s.db.WithContext(ctx).Model(&models.MeetingRecord{}).Where("id = ?", record.ID).Updates(map[string]interface{}{
		"processing_status": status,
		"has_errors":        len(b.errors) > 0,
		"has_warnings":      len(b.warnings) > 0,
		"errors":            errorsJSON,
		"warnings":          warningsJSON,
		"members_present":   present,
		"processed_at":      now,
	}).Error
	if err != nil {
		return nil, internalError("failed to store meeting outcome", err)
	}

	record.ProcessingStatus = status
	record.HasErrors = len(b.errors) > 0
	record.HasWarnings = len(b.warnings) > 0
	record.Errors = errorsJSON
	record.Warnings = warningsJSON
	record.MembersPresent = present
	record.ProcessedAt = &now

	log.Printf("✅ Meeting #%d processed: %s (%d posted, %d errors, %d warnings)",
		record.MeetingNumber, status, b.posted, len(b.errors), len(b.warnings))

	return &models.MeetingResult{
		Success:          len(b.errors) == 0,
		MeetingID:        record.ID,
		MeetingNumber:    record.MeetingNumber,
		ProcessingStatus: status,
		Errors:           nonNil(b.errors),
		Warnings:         nonNil(b.warnings),
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *MeetingService) countAttendance(ctx context.Context, b *batch, items []models.AttendanceItem) int {
	present := 0
	for i, item := range items {
		memberID, err := uuid.Parse(item.MemberID)
		if err != nil {
			b.warn(sectionAttendance, i, "invalid member_id %q", item.MemberID)
			continue
		}
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.GroupMember{}).
			Where("group_id = ? AND user_id = ?", b.record.GroupID, memberID).Count(&count).Error; err != nil {
			b.fail(sectionAttendance, i, internalError("failed to check membership", err))
			continue
		}
		if count == 0 {
			b.warn(sectionAttendance, i, "member %s is not in this group", memberID)
			continue
		}
		if item.Status == "present" {
			present++
		}
	}
	return present
}

// postItem runs one ledger operation for a meeting item unless an earlier run
// already posted it.
func (s *MeetingService) postItem(ctx context.Context, b *batch, section string, i int, memberID string, op func(TransactionInput) (*TransactionResult, error)) {
	ref := b.reference(section, i)
	done, err := s.ledger.engine.referencePosted(ctx, ref)
	if err != nil {
		b.fail(section, i, internalError("failed to check previous posting", err))
		return
	}
	if done {
		b.posted++
		return
	}

	userID, err := uuid.Parse(memberID)
	if err != nil {
		b.fail(section, i, validationError("invalid member id %q", memberID))
		return
	}

	res, err := op(TransactionInput{
		UserID:    userID,
		ProjectID: b.record.CycleID,
		Amount:    decimal.Zero,
		Date:      b.record.MeetingDate,
		CreatedBy: b.record.CreatedByID,
		reference: &ref,
	})
	if err != nil {
		b.fail(section, i, err)
		return
	}
	b.posted++
	for _, w := range res.Warnings {
		b.warn(section, i, "%s", w)
	}
}

func (s *MeetingService) afterProcessing(record models.MeetingRecord, group models.Group, result models.MeetingResult) {
	recordActivity(s.db, group.ID, record.CreatedByID, models.ActivityMeeting, record.ID,
		fmt.Sprintf("Meeting #%d %s", record.MeetingNumber, result.ProcessingStatus))

	if s.notifier == nil {
		return
	}
	go func() {
		var creator models.User
		if err := s.db.First(&creator, "id = ?", record.CreatedByID).Error; err != nil {
			return
		}
		s.notifier.NotifyMeetingProcessed(creator, group, result)
	}()
}
