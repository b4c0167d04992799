package models

// Kind identifies one of the request types flowing through the coordinator.
type Kind string

const (
	KindBooking      Kind = "booking"
	KindClaim        Kind = "claim"
	KindInquiry      Kind = "inquiry"
	KindRegistration Kind = "registration"
	KindFeedback     Kind = "feedback"
)

// AllKinds lists every record kind in a stable order.
var AllKinds = []Kind{KindBooking, KindClaim, KindInquiry, KindRegistration, KindFeedback}

// Valid reports whether k is a known record kind.
func (k Kind) Valid() bool {
	switch k {
	case KindBooking, KindClaim, KindInquiry, KindRegistration, KindFeedback:
		return true
	default:
		return false
	}
}

// Status is a kind-specific lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusResolved  Status = "resolved"
	StatusReplied   Status = "replied"
)

// Role is the actor's authorization role. The zero value is anonymous.
type Role string

const (
	RoleAnonymous Role = ""
	RoleStudent   Role = "student"
	RolePartner   Role = "partner"
	RoleOperator  Role = "operator"
)

const (
	// DefaultNotifyTimeout время, после которого попытка доставки уведомления бросается
	DefaultNotifyTimeout = 5 // секунд

	// DefaultNotifyQueueSize размер очереди уведомлений
	DefaultNotifyQueueSize = 256

	// DefaultLedgerTTL время жизни записи о последнем статусе в Redis
	DefaultLedgerTTL = 7 * 24 * 60 * 60 // 7 дней в секундах

	// DefaultRateLimitRPS частота запросов к API на один ключ
	DefaultRateLimitRPS = 10

	// DefaultRateLimitBurst всплеск запросов к API на один ключ
	DefaultRateLimitBurst = 20

	// DefaultSendRate число исходящих сообщений в секунду
	DefaultSendRate = 1

	// MaxRemarkLength максимальная длина комментария к решению
	MaxRemarkLength = 2000
)

const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)
