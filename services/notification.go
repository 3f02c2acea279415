package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"sync"
	"time"
	"vsla-ledger/config"
	"vsla-ledger/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
)

// Notifier is told about committed ledger events. Implementations must not
// block; callers invoke them in their own goroutine.
type Notifier interface {
	NotifyTransaction(member models.User, group models.Group, source string, amount decimal.Decimal)
	NotifyDisbursement(investor models.User, group models.Group, amount decimal.Decimal)
	NotifyMeetingProcessed(creator models.User, group models.Group, result models.MeetingResult)
}

type NotificationService struct {
	push     *messaging.Client
	apiKey   string
	fromAddr string
	appName  string
}

var (
	notifService *NotificationService
	notifOnce    sync.Once
)

func GetNotificationService() *NotificationService {
	notifOnce.Do(func() {
		notifService = NewNotificationService(config.AppConfig)
	})
	return notifService
}

func NewNotificationService(cfg *config.Config) *NotificationService {
	ns := &NotificationService{
		apiKey:   cfg.SendGridAPIKey,
		fromAddr: cfg.SendGridFrom,
		appName:  cfg.AppName,
	}

	if cfg.FirebaseCredPath == "" {
		log.Println("⚠️  FIREBASE_CREDENTIALS not set, push notifications disabled")
		return ns
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.FirebaseCredPath))
	if err != nil {
		log.Printf("❌ Firebase init error: %v", err)
		return ns
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		log.Printf("❌ Firebase messaging init error: %v", err)
		return ns
	}
	ns.push = client
	log.Println("✅ Firebase messaging ready")
	return ns
}

// ============================================================
// PUSH NOTIFICATIONS via Firebase Cloud Messaging
// ============================================================

func (ns *NotificationService) sendPush(fcmToken, title, body string, data map[string]string) {
	if fcmToken == "" || ns.push == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := ns.push.Send(ctx, &messaging.Message{
		Token:        fcmToken,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
	})
	if err != nil {
		log.Printf("❌ FCM send error: %v", err)
		return
	}
	log.Printf("✅ Push notification sent (%s)", data["type"])
}

// ============================================================
// EMAIL NOTIFICATIONS via SendGrid
// ============================================================

func (ns *NotificationService) sendEmail(toEmail, toName, subject, htmlBody string) {
	if toEmail == "" {
		return
	}
	if ns.apiKey == "" {
		log.Printf("⚠️  SendGrid API key not set, skipping email to %s", toEmail)
		return
	}

	from := mail.NewEmail(ns.appName, ns.fromAddr)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, subject, htmlBody)

	resp, err := sendgrid.NewSendClient(ns.apiKey).Send(message)
	if err != nil {
		log.Printf("❌ Email send error: %v", err)
		return
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Printf("✅ Email sent to %s", toEmail)
	} else {
		log.Printf("⚠️  SendGrid returned status: %d", resp.StatusCode)
	}
}

// ============================================================
// NOTIFICATION EVENTS
// ============================================================

var sourceTitles = map[string]string{
	models.SourceSaving:           "Savings recorded",
	models.SourceSharePurchase:    "Shares purchased",
	models.SourceLoanDisbursement: "Loan disbursed",
	models.SourceLoanRepayment:    "Loan repayment recorded",
	models.SourceFine:             "Fine recorded",
}

func (ns *NotificationService) NotifyTransaction(member models.User, group models.Group, source string, amount decimal.Decimal) {
	title, ok := sourceTitles[source]
	if !ok {
		title = "Ledger updated"
	}
	body := fmt.Sprintf("%s of %s in %s", title, amount.StringFixed(2), group.Name)

	ns.sendPush(member.FCMToken, title, body, map[string]string{
		"type":     source,
		"group_id": group.ID.String(),
	})
	ns.sendEmail(member.Email, member.Name, fmt.Sprintf("%s in %s", title, group.Name),
		ns.buildEmailHTML(title, member.Name, body))
}

func (ns *NotificationService) NotifyDisbursement(investor models.User, group models.Group, amount decimal.Decimal) {
	title := "Profit share paid"
	body := fmt.Sprintf("You received %s from %s", amount.StringFixed(2), group.Name)

	ns.sendPush(investor.FCMToken, title, body, map[string]string{
		"type":     models.SourceDisbursement,
		"group_id": group.ID.String(),
	})
	ns.sendEmail(investor.Email, investor.Name, fmt.Sprintf("%s: %s", title, group.Name),
		ns.buildEmailHTML(title, investor.Name, body))
}

func (ns *NotificationService) NotifyMeetingProcessed(creator models.User, group models.Group, result models.MeetingResult) {
	title := fmt.Sprintf("Meeting #%d %s", result.MeetingNumber, result.ProcessingStatus)
	body := fmt.Sprintf("%s: %d errors, %d warnings", group.Name, len(result.Errors), len(result.Warnings))

	ns.sendPush(creator.FCMToken, title, body, map[string]string{
		"type":       models.SourceMeetingSync,
		"group_id":   group.ID.String(),
		"meeting_id": result.MeetingID.String(),
	})
	if result.ProcessingStatus != models.MeetingCompleted {
		ns.sendEmail(creator.Email, creator.Name, title, ns.buildEmailHTML(title, creator.Name, body))
	}
}

// ============================================================
// EMAIL TEMPLATES
// ============================================================

var emailTmpl = template.Must(template.New("ledger").Parse(`
<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; background-color: #f5f5f5;">
	<div style="background: white; border-radius: 12px; padding: 32px; box-shadow: 0 2px 8px rgba(0,0,0,0.1);">
		<h2 style="color: #1DB954; margin-top: 0;">{{.Title}}</h2>
		<p>Hi <strong>{{.Name}}</strong>,</p>
		<p>{{.Body}}</p>
		<p style="color: #999; font-size: 12px; margin-top: 24px;">{{.AppName}}</p>
	</div>
</body>
</html>`))

func (ns *NotificationService) buildEmailHTML(title, name, body string) string {
	var buf bytes.Buffer
	if err := emailTmpl.Execute(&buf, map[string]string{
		"Title":   title,
		"Name":    name,
		"Body":    body,
		"AppName": ns.appName,
	}); err != nil {
		log.Printf("❌ Email template error: %v", err)
	}
	return buf.String()
}
