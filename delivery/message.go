package delivery

import (
	"fmt"
	"time"
)

// Kind labels what a message is for.
type Kind string

const (
	KindCode          Kind = "code"
	KindWelcome       Kind = "welcome"
	KindSecurityAlert Kind = "security_alert"
)

// Message is one queued SMS.
type Message struct {
	To      string
	Kind    Kind
	Purpose string
	Text    string
}

// CodeText formats a one-time code message for purpose.
func CodeText(purpose, code string, ttl time.Duration) string {
	minutes := int(ttl / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	switch purpose {
	case "login":
		return fmt.Sprintf("Your login code is: %s. Valid for %d minutes.", code, minutes)
	case "password_reset":
		return fmt.Sprintf("Your password reset code is: %s. Valid for %d minutes.", code, minutes)
	default:
		return fmt.Sprintf("Your verification code is: %s. Valid for %d minutes.", code, minutes)
	}
}

// CodeMessage builds the [Message] carrying a one-time code.
func CodeMessage(to, purpose, code string, ttl time.Duration) Message {
	return Message{To: to, Kind: KindCode, Purpose: purpose, Text: CodeText(purpose, code, ttl)}
}

// WelcomeMessage greets a newly registered account.
func WelcomeMessage(to, name, appName string) Message {
	if name == "" {
		name = "there"
	}
	if appName == "" {
		appName = "our service"
	}
	return Message{
		To:   to,
		Kind: KindWelcome,
		Text: fmt.Sprintf("Welcome to %s, %s! Your account has been created successfully.", appName, name),
	}
}

// SecurityAlertMessage notifies the account owner of a sensitive change.
func SecurityAlertMessage(to, event string) Message {
	return Message{
		To:   to,
		Kind: KindSecurityAlert,
		Text: fmt.Sprintf("Security alert: %s. If this wasn't you, contact support immediately.", event),
	}
}
