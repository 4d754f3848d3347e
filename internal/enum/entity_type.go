package enum

type EntityType string

const (
	SUBMISSION EntityType = "SUBMISSION"
	MAILBOX    EntityType = "MAILBOX"
)

func (entityType EntityType) String() string {
	return string(entityType)
}
