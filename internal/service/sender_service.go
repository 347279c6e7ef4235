package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"go.uber.org/zap"

	"parkspace/internal/db"
	"parkspace/internal/utils"
)

var bookingEmailTmpl = template.Must(template.New("booking").Parse(`<!doctype html>
<html><body>
<p>Your parking booking <strong>{{.ID}}</strong> is {{.Status}}.</p>
<table>
<tr><td>From</td><td>{{.Start}}</td></tr>
<tr><td>To</td><td>{{.End}}</td></tr>
<tr><td>Total</td><td>{{.Total}} {{.Currency}}</td></tr>
{{if .Refund}}<tr><td>Refund</td><td>{{.Refund}}</td></tr>{{end}}
</table>
</body></html>`))

type bookingNotice struct {
	ID       string
	Status   string
	Start    string
	End      string
	Total    string
	Currency string
	Refund   string
}

// SenderService notifies renters by email and SMS. Either channel may be nil.
type SenderService struct {
	email EmailSender
	sms   SMSSender
	loc   *time.Location
	log   *zap.Logger
}

func NewSenderService(email EmailSender, sms SMSSender, loc *time.Location, log *zap.Logger) *SenderService {
	if loc == nil {
		loc = time.UTC
	}
	return &SenderService{email: email, sms: sms, loc: loc, log: log}
}

func (s *SenderService) BookingConfirmed(ctx context.Context, b db.Booking) {
	s.send(ctx, b, "confirmed")
}

func (s *SenderService) BookingCancelled(ctx context.Context, b db.Booking) {
	s.send(ctx, b, "cancelled")
}

func (s *SenderService) send(ctx context.Context, b db.Booking, status string) {
	n := s.notice(b, status)
	log := s.log.With(zap.String("booking_id", b.ID), zap.String("notice", status))

	if s.email != nil && b.RenterEmail != "" {
		var html bytes.Buffer
		if err := bookingEmailTmpl.Execute(&html, n); err != nil {
			log.Error("render booking email", zap.Error(err))
		} else if err := s.email.SendEmail(ctx, b.RenterEmail, s.subject(n), s.plainText(n), html.String()); err != nil {
			log.Warn("booking email not sent", zap.Error(err))
		}
	}
	if s.sms != nil && b.RenterPhone != "" {
		body := fmt.Sprintf("ParkSpace: booking %s is %s. Check-in %s.", n.ID, n.Status, n.Start)
		if err := s.sms.SendSMS(ctx, b.RenterPhone, body); err != nil {
			log.Warn("booking sms not sent", zap.Error(err))
		}
	}
}

func (s *SenderService) notice(b db.Booking, status string) bookingNotice {
	n := bookingNotice{
		ID:       b.ID,
		Status:   status,
		Start:    b.StartUTC.In(s.loc).Format("02 Jan 2006 15:04 MST"),
		End:      b.EndUTC.In(s.loc).Format("02 Jan 2006 15:04 MST"),
		Total:    b.TotalAmount.StringFixed(utils.MinorUnitExponent(b.Currency)),
		Currency: b.Currency,
	}
	if status == "cancelled" && b.RefundStatus != db.RefundNone {
		n.Refund = string(b.RefundStatus)
	}
	return n
}

func (s *SenderService) subject(n bookingNotice) string {
	return fmt.Sprintf("Your parking booking is %s (%s)", n.Status, n.ID)
}

func (s *SenderService) plainText(n bookingNotice) string {
	text := fmt.Sprintf("Your parking booking %s is %s.\nFrom: %s\nTo: %s\nTotal: %s %s\n",
		n.ID, n.Status, n.Start, n.End, n.Total, n.Currency)
	if n.Refund != "" {
		text += "Refund: " + n.Refund + "\n"
	}
	return text
}
