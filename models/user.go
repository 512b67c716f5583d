package models

// User is a registered field user. Registration happens out of band
// (admin inserts the row); the bot only resolves by Telegram username.
type User struct {
	ID          int64
	TelUsername string
	Name        string
}
