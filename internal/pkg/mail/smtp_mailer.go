package mail

import (
	"fmt"
	"net/smtp"

	"github.com/docexpress/docexpress/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

// SendMail delivers an email via the configured SMTP relay.
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = "noreply@docexpress.fr"
		log.Debugf("SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	err := smtp.SendMail(addr, auth, sender, []string{to}, msg)
	if err != nil {
		log.Errorf("SMTP send error: %v", err)
	} else {
		log.Infof("Email sent to %s via %s", to, addr)
	}
	return err
}

// SendVerificationCode delivers the 6-digit free-trial code. The subject
// carries the code so it is visible without opening the email.
func SendVerificationCode(to, code string) error {
	subject := fmt.Sprintf("Votre code de vérification DocExpress : %s", code)
	body := fmt.Sprintf(
		"<p>Bonjour,</p>"+
			"<p>Votre code de vérification est : <strong>%s</strong></p>"+
			"<p>Ce code expire dans 10 minutes.</p>"+
			"<p>L'équipe DocExpress</p>",
		code,
	)
	return SendMail(to, subject, body)
}

// SendDocumentReady notifies the buyer that a paid document was produced.
func SendDocumentReady(to, documentTitle string) error {
	subject := fmt.Sprintf("Votre document : %s", documentTitle)
	body := fmt.Sprintf(
		"<p>Bonjour,</p>"+
			"<p>Votre document <strong>%s</strong> a bien été généré. Vous le trouverez en pièce jointe de votre téléchargement.</p>"+
			"<p>L'équipe DocExpress</p>",
		documentTitle,
	)
	return SendMail(to, subject, body)
}
