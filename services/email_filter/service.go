package email_filter

import (
	"bytes"
	"context"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/lenderinbox/dto"
	"github.com/customeros/lenderinbox/interfaces"
	"github.com/customeros/lenderinbox/internal/enum"
	"github.com/customeros/lenderinbox/internal/tracing"
)

type emailFilterService struct{}

func NewEmailFilterService() interfaces.EmailFilterService {
	return &emailFilterService{}
}

type messageHeaders struct {
	from               string
	subject            string
	returnPath         string
	contentDescription string
	precedence         string
	autoSubmitted      string
	xAutoreply         string
	xAutoresponse      string
	xFailedRecipients  string
}

// ScanMessage classifies bounces and auto-replies. Messages whose headers cannot
// be parsed are reported as EmailOK and left to the extraction pipeline.
func (s *emailFilterService) ScanMessage(ctx context.Context, message *dto.InboundMessage) (enum.EmailClassification, string) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailFilterService.ScanMessage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	headers := readHeaders(message)

	classification, reason := enum.EmailOK, ""
	if ok, r := s.isBounceNotification(headers); ok {
		classification, reason = enum.EmailBounceNotification, r
	} else if ok, r := s.isAutoresponder(headers); ok {
		classification, reason = enum.EmailAutoResponder, r
	}

	span.SetTag("classification", classification.String())
	return classification, reason
}

func readHeaders(message *dto.InboundMessage) messageHeaders {
	headers := messageHeaders{
		from:    message.Sender,
		subject: message.Subject,
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(message.Raw))
	if err != nil || env == nil {
		return headers
	}
	if headers.subject == "" {
		headers.subject = env.GetHeader("Subject")
	}
	if headers.from == "" {
		headers.from = env.GetHeader("From")
	}
	headers.returnPath = env.GetHeader("Return-Path")
	headers.contentDescription = env.GetHeader("Content-Description")
	headers.precedence = env.GetHeader("Precedence")
	headers.autoSubmitted = env.GetHeader("Auto-Submitted")
	headers.xAutoreply = env.GetHeader("X-Autoreply")
	headers.xAutoresponse = env.GetHeader("X-Autorespond")
	if headers.xAutoresponse == "" {
		headers.xAutoresponse = env.GetHeader("X-Autoresponse")
	}
	headers.xFailedRecipients = env.GetHeader("X-Failed-Recipients")
	return headers
}

func (s *emailFilterService) isAutoresponder(headers messageHeaders) (bool, string) {
	switch {
	case headers.xAutoreply != "":
		return true, "X-AUTOREPLY header present"
	case headers.xAutoresponse != "":
		return true, "X-AUTORESPONSE header present"
	case strings.EqualFold(headers.autoSubmitted, "auto-replied"):
		return true, "AUTO-SUBMITTED: AUTO-REPLIED header present"
	case strings.EqualFold(headers.precedence, "auto_reply"):
		return true, "PRECEDENCE: AUTO_REPLY, header present"
	default:
		return false, ""
	}
}

func (s *emailFilterService) isBounceNotification(headers messageHeaders) (bool, string) {
	switch {
	case headers.xFailedRecipients != "":
		return true, "X-FAILED-RECIPIENTS header present"
	case strings.EqualFold(headers.contentDescription, "delivery report"):
		return true, "CONTENT-DESCRIPTION: DELIVERY REPORT header present"
	case s.hasBounceKeywords(headers.returnPath):
		return true, "RETURN-PATH contains bounce keywords"
	case s.hasBounceKeywords(headers.from):
		return true, "FROM contains bounce keywords"
	case s.isBounceSubject(headers.subject):
		return true, "SUBJECT contains bounce keywords"
	default:
		return false, ""
	}
}

func (s *emailFilterService) hasBounceKeywords(str string) bool {
	return strings.Contains(strings.ToLower(str), "mailer-daemon")
}

func (s *emailFilterService) isBounceSubject(subject string) bool {
	subject = strings.ToLower(subject)
	keywords := []string{
		"mail delivery failure",
		"undelivered mail returned to sender",
		"delivery status notification",
		"undeliverable",
		"undelivered",
		"delivery failure",
		"failure notice",
		"returned mail",
		"returned to sender",
	}
	for _, phrase := range keywords {
		if strings.Contains(subject, phrase) {
			return true
		}
	}

	return false
}
