package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/lenderinbox/interfaces"
	lenderinbox_errors "github.com/customeros/lenderinbox/internal/errors"
	"github.com/customeros/lenderinbox/internal/logger"
	"github.com/customeros/lenderinbox/internal/tracing"
	"github.com/customeros/lenderinbox/internal/utils"
)

type Method string

const (
	MethodEmbedded    Method = "embedded"
	MethodSenderEmail Method = "sender_email"
)

type Resolution struct {
	LenderID string
	Method   Method
}

// Resolver decides which lender a reply came from. A lender id embedded in the
// body is authoritative; otherwise the sender must match exactly one lender.
type Resolver struct {
	lenders interfaces.LenderRepository
	log     logger.Logger
}

func NewResolver(lenders interfaces.LenderRepository, log logger.Logger) *Resolver {
	return &Resolver{
		lenders: lenders,
		log:     log,
	}
}

func (r *Resolver) Resolve(ctx context.Context, sender string, embeddedLenderID *string) (*Resolution, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Resolver.Resolve")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("sender", sender)

	normalizedSender := NormalizeSender(sender)

	if embeddedLenderID != nil && *embeddedLenderID != "" {
		r.checkSenderMatchesLender(ctx, span, *embeddedLenderID, normalizedSender)
		span.LogKV("resolution.method", MethodEmbedded)
		return &Resolution{LenderID: *embeddedLenderID, Method: MethodEmbedded}, nil
	}

	if normalizedSender == "" {
		err := fmt.Errorf("empty sender: %w", lenderinbox_errors.ErrLenderNotFound)
		tracing.TraceErr(span, err)
		return nil, err
	}

	lenderIDs, err := r.lenders.FindLenderIDsByEmail(ctx, normalizedSender)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("lookup lender by email: %w", err)
	}
	lenderIDs = utils.UniqueStrings(lenderIDs)

	switch len(lenderIDs) {
	case 0:
		return nil, fmt.Errorf("%s: %w", normalizedSender, lenderinbox_errors.ErrLenderNotFound)
	case 1:
		span.LogKV("resolution.method", MethodSenderEmail)
		return &Resolution{LenderID: lenderIDs[0], Method: MethodSenderEmail}, nil
	default:
		span.LogKV("candidates", lenderIDs)
		return nil, fmt.Errorf("%s matches %d lenders: %w", normalizedSender, len(lenderIDs), lenderinbox_errors.ErrLenderAmbiguous)
	}
}

// checkSenderMatchesLender only reports a mismatch; an embedded id is never overridden.
func (r *Resolver) checkSenderMatchesLender(ctx context.Context, span opentracing.Span, lenderID, sender string) {
	contacts, err := r.lenders.FindContactEmails(ctx, []string{lenderID})
	if err != nil {
		r.log.Warnf("Could not load contact email for lender %s: %v", lenderID, err)
		return
	}
	contact, ok := contactFor(contacts, lenderID)
	if !ok {
		r.log.Warnf("Embedded lender id %s is not a known lender", lenderID)
		span.LogKV("lender.unknown", lenderID)
		return
	}
	contact = utils.NormalizeEmailAddress(contact)
	if contact == "" || sender == "" || contact == sender {
		return
	}
	span.LogKV("sender.mismatch", contact)
	if utils.ExtractDomainFromEmail(contact) == utils.ExtractDomainFromEmail(sender) {
		r.log.Infof("Sender %s differs from contact email %s of lender %s on the same domain", sender, contact, lenderID)
		return
	}
	r.log.Warnf("Sender %s does not match contact email %s of lender %s", sender, contact, lenderID)
}

func contactFor(contacts map[string]string, lenderID string) (string, bool) {
	if contact, ok := contacts[lenderID]; ok {
		return contact, true
	}
	for id, contact := range contacts {
		if strings.EqualFold(id, lenderID) {
			return contact, true
		}
	}
	return "", false
}

// NormalizeSender reduces "Name <User@Host>" to a lowercase bare address.
func NormalizeSender(sender string) string {
	address := utils.ExtractEmailAddress(sender)
	if address == "" {
		return ""
	}
	validation := mailvalidate.ValidateEmailSyntax(address)
	if validation.IsValid && validation.CleanEmail != "" {
		return strings.ToLower(validation.CleanEmail)
	}
	return strings.ToLower(address)
}
