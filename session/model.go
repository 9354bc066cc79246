package session

import (
	"strings"
	"time"
)

// User is the profile blob cached under user_data.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	PhotoURL    string `json:"photoUrl,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
}

// Initials returns the upper-cased first letter of every word in Name.
func (u User) Initials() string {
	var b strings.Builder
	for _, part := range strings.Fields(u.Name) {
		r := []rune(part)
		b.WriteString(strings.ToUpper(string(r[0])))
	}
	return b.String()
}

// Session is the authenticated identity held for one client.
//
// ID and ExpiresAt are not persisted separately; they are recovered from
// the token by the engine when needed.
type Session struct {
	ID        string    `json:"-"`
	Token     string    `json:"-"`
	User      User      `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// Device describes the client that opened a session.
type Device struct {
	Name      string `json:"device"`
	Browser   string `json:"browser"`
	IP        string `json:"ip"`
	Location  string `json:"location"`
	UserAgent string `json:"-"`
}

// DeviceSession is one row of the active-sessions listing.
type DeviceSession struct {
	ID         string    `json:"id"`
	Device     Device    `json:"device"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
	IsCurrent  bool      `json:"isCurrentSession"`
}

// Registration is the input for account creation.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileUpdate carries the editable profile fields.
type ProfileUpdate struct {
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	DateOfBirth string `json:"dateOfBirth"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
}
