package interfaces

import (
	"context"

	"github.com/customeros/lenderinbox/dto"
	"github.com/customeros/lenderinbox/internal/enum"
)

// EmailFilterService recognizes automated mail that is never a lender reply.
type EmailFilterService interface {
	ScanMessage(ctx context.Context, message *dto.InboundMessage) (enum.EmailClassification, string)
}
