package enum

type EmailSecurity string

const (
	EmailSecurityNone     EmailSecurity = "none"
	EmailSecurityTLS      EmailSecurity = "tls"
	EmailSecurityStartTLS EmailSecurity = "startTLS"
)

func (t EmailSecurity) String() string {
	return string(t)
}

// ParseEmailSecurity maps stored values onto a known security mode, defaulting to TLS.
func ParseEmailSecurity(s string) EmailSecurity {
	switch EmailSecurity(s) {
	case EmailSecurityNone, EmailSecurityStartTLS:
		return EmailSecurity(s)
	case "ssl":
		return EmailSecurityTLS
	default:
		return EmailSecurityTLS
	}
}

type EmailClassification string

const (
	EmailOK                 EmailClassification = "ok"
	EmailAutoResponder      EmailClassification = "auto_responder"
	EmailBounceNotification EmailClassification = "bounce_notification"
)

func (c EmailClassification) String() string {
	return string(c)
}
