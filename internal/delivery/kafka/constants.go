package kafka

const (
	TopicQueueAdmitted = "queue.admitted"

	TopicCheckoutCompleted = "checkout.completed"
	TopicCheckoutFailed    = "checkout.failed"
	TopicCheckoutExpired   = "checkout.expired"
)
