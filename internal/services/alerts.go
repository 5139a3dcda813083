package services

import (
	"fmt"
	"log"
	"net/smtp"
)

// AlertMailer emails the operator about membership failures that need a human.
type AlertMailer struct {
	Host     string
	Port     string
	Username string
	Password string
	To       string
}

func NewAlertMailer(host, port, username, password, to string) *AlertMailer {
	return &AlertMailer{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		To:       to,
	}
}

func (m *AlertMailer) Alert(subject, body string) error {
	auth := smtp.PlainAuth("", m.Username, m.Password, m.Host)
	message := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		m.Username, m.To, subject, body,
	)
	addr := fmt.Sprintf("%s:%s", m.Host, m.Port)
	if err := smtp.SendMail(addr, auth, m.Username, []string{m.To}, []byte(message)); err != nil {
		log.Println("[ALERT] send failed:", err)
		return err
	}
	return nil
}
