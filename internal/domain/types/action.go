package types

// Action values populate LogCtx.Action; they name the operation being
// logged, not the outcome.
const (
	ActionDatabaseTransactionFailed = "database_transaction_failed"
	ActionCreateRide                = "create_ride"
	ActionPhaseAdvance              = "phase_advance"
	ActionOfferAccept               = "offer_accept"
	ActionOfferExpireSweep          = "offer_expire_sweep"
	ActionCrashRecovery             = "crash_recovery"
	ActionSetAvailability           = "set_driver_availability"
	ActionSetLocation               = "set_driver_location"
	ActionRabbitMQConnected         = "rabbitmq_connected"
	ActionRabbitConnectionClosing   = "rabbitmq_connection_closing"
	ActionRabbitConnectionClosed    = "rabbitmq_connection_closed"
	ActionNotifyPublish             = "notify_publish"
)
