package utils

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"gopkg.in/gomail.v2"

	"dealrooms/config"
	"dealrooms/models"
)

// Digest template is embedded so the binary ships self-contained.
var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Unread activity on your rooms</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .item { margin: 12px 0; padding: 10px; background: #f7f9fa; border-radius: 4px; }
        .title { font-weight: bold; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>While you were away</h2>
    </div>
    {{range .Notifications}}
    <div class="item">
        <div class="title">{{.Title}}</div>
        <div>{{.Body}}</div>
    </div>
    {{end}}
    <div class="footer">&copy; {{.Year}} DealRooms. Manage notification preferences in your settings.</div>
</body>
</html>`))

type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewMailer() *Mailer {
	cfg := config.AppConfig.SMTP
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.FromEmail,
	}
}

// SendDigest emails a batch of unread notifications to one recipient.
func (m *Mailer) SendDigest(to string, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	var body bytes.Buffer
	data := struct {
		Notifications []models.Notification
		Year          int
	}{notifications, time.Now().Year()}
	if err := digestTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to render digest: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", fmt.Sprintf("You have %d unread notifications", len(notifications)))
	msg.SetBody("text/html", body.String())

	return m.dialer.DialAndSend(msg)
}
