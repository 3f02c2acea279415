package services

import (
	"sync"
	"testing"
	"vsla-ledger/config"
	"vsla-ledger/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationServiceWithoutCredentials(t *testing.T) {
	ns := NewNotificationService(&config.Config{AppName: "VSLA Ledger", SendGridFrom: "noreply@vsla.local"})
	require.NotNil(t, ns)
	assert.Nil(t, ns.push)

	member := models.User{Name: "Alice", Email: "alice@example.com"}
	group := models.Group{ID: uuid.New(), Name: "Umoja"}

	// no push client and no API key: both channels are skipped
	ns.NotifyTransaction(member, group, models.SourceSaving, amt("100"))
	ns.NotifyDisbursement(member, group, amt("5"))
	ns.NotifyMeetingProcessed(member, group, models.MeetingResult{ProcessingStatus: models.MeetingFailed})
}

func TestBuildEmailHTMLEscapes(t *testing.T) {
	ns := &NotificationService{appName: "VSLA Ledger"}
	html := ns.buildEmailHTML("Fine recorded", "<Bob>", "Fine of 50.00 in Umoja")

	assert.Contains(t, html, "Fine recorded")
	assert.Contains(t, html, "&lt;Bob&gt;")
	assert.Contains(t, html, "VSLA Ledger")
}

type recordingNotifier struct {
	mu      sync.Mutex
	sources []string
	done    chan struct{}
}

func (r *recordingNotifier) NotifyTransaction(_ models.User, _ models.Group, source string, _ decimal.Decimal) {
	r.mu.Lock()
	r.sources = append(r.sources, source)
	r.mu.Unlock()
	r.done <- struct{}{}
}
func (r *recordingNotifier) NotifyDisbursement(models.User, models.Group, decimal.Decimal) {}
func (r *recordingNotifier) NotifyMeetingProcessed(models.User, models.Group, models.MeetingResult) {
}

func TestLedgerNotifiesAfterCommit(t *testing.T) {
	f := newFixture(t)
	n := &recordingNotifier{done: make(chan struct{}, 1)}
	svc := NewLedgerService(f.db, f.engine, n)

	_, err := svc.RecordSaving(f.ctx, f.input(f.alice, "25"))
	require.NoError(t, err)
	<-n.done

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Equal(t, []string{models.SourceSaving}, n.sources)
}
