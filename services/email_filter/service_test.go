package email_filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/customeros/lenderinbox/dto"
	"github.com/customeros/lenderinbox/internal/enum"
)

func message(sender, subject string, headers ...string) *dto.InboundMessage {
	raw := "From: " + sender + "\r\nSubject: " + subject + "\r\n"
	for _, h := range headers {
		raw += h + "\r\n"
	}
	raw += "Content-Type: text/plain\r\n\r\nbody\r\n"
	return &dto.InboundMessage{Sender: sender, Subject: subject, Raw: []byte(raw)}
}

func TestScanMessage(t *testing.T) {
	tests := []struct {
		name    string
		message *dto.InboundMessage
		want    enum.EmailClassification
	}{
		{"lender reply", message("offers@fundco.com", "Re: Submission for Acme LLC"), enum.EmailOK},
		{"failed recipients", message("postmaster@broker.com", "Hello", "X-Failed-Recipients: lender@gone.com"), enum.EmailBounceNotification},
		{"mailer daemon", message("MAILER-DAEMON@mx.broker.com", "Hello"), enum.EmailBounceNotification},
		{"bounce subject", message("postmaster@fundco.com", "Undeliverable: Submission"), enum.EmailBounceNotification},
		{"delivery report", message("postmaster@fundco.com", "Report", "Content-Description: Delivery report"), enum.EmailBounceNotification},
		{"x-autoreply", message("offers@fundco.com", "Out of office", "X-Autoreply: yes"), enum.EmailAutoResponder},
		{"auto-submitted replied", message("offers@fundco.com", "Away", "Auto-Submitted: auto-replied"), enum.EmailAutoResponder},
		{"auto-submitted generated", message("offers@fundco.com", "Offer", "Auto-Submitted: auto-generated"), enum.EmailOK},
		{"precedence auto_reply", message("offers@fundco.com", "Away", "Precedence: auto_reply"), enum.EmailAutoResponder},
		{"bulk is not filtered", message("offers@fundco.com", "Offer", "Precedence: bulk"), enum.EmailOK},
	}

	filter := NewEmailFilterService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := filter.ScanMessage(context.Background(), tt.message)

			assert.Equal(t, tt.want, got)
			if tt.want == enum.EmailOK {
				assert.Empty(t, reason)
			} else {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestScanMessage_UnparseableRaw(t *testing.T) {
	got, _ := NewEmailFilterService().ScanMessage(context.Background(), &dto.InboundMessage{
		Sender: "offers@fundco.com",
		Raw:    []byte{0x00, 0xff},
	})

	assert.Equal(t, enum.EmailOK, got)
}
