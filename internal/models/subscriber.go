package models

// Subscriber is one row per Telegram user. SubscriptionEnd is epoch millis;
// 0 means no entitlement (never subscribed, cancelled or already revoked),
// a past value means lapsed but not yet processed by the reconciler.
type Subscriber struct {
	UserID          int64  `bson:"user_id"          json:"user_id"`
	Username        string `bson:"username"         json:"username"`
	FirstName       string `bson:"first_name"       json:"first_name"`
	SubscriptionEnd int64  `bson:"subscription_end" json:"subscription_end"`
	CreatedAt       int64  `bson:"created_at"       json:"created_at"`
}
