package users

import "time"

// User is a field worker who scans packages through the survey app. The
// code is what they type into a device-binding form; the device ID ties
// scans back to them.
type User struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DeviceID     *string   `json:"device_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
