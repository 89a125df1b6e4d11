package models

// All returns every model for AutoMigrate, in dependency order.
func All() []any {
	return []any{
		&Property{},
		&Unit{},
		&Tenant{},
		&RentPayment{},
		&PaymentConfig{},
		&PaymentTransaction{},
		&ReconciliationLog{},
		&ReconcileJob{},
		&PushRequest{},
		&ReminderRule{},
		&ReminderInstance{},
		&PaymentNotificationLog{},
	}
}
