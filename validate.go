package goOTP

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/goOTP/password"
	"github.com/MrEthical07/goOTP/session"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
)

const (
	minNameRunes = 2
	maxNameRunes = 50
	minimumAge   = 18
	dateLayout   = "2006-01-02"
)

// validEmail is the client-side shape check done before any request.
func validEmail(email string) bool {
	return len(email) <= 254 && emailPattern.MatchString(email)
}

func validName(name string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	return n >= minNameRunes && n <= maxNameRunes
}

func validateRegistration(reg session.Registration) error {
	fields := map[string]string{}
	if !validName(reg.Name) {
		fields["name"] = "must be 2 to 50 characters"
	}
	if !validEmail(strings.TrimSpace(reg.Email)) {
		fields["email"] = "must be a valid email address"
	}
	if len(reg.Password) < password.MinLength {
		fields["password"] = "must be at least 8 characters"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validateProfile(upd session.ProfileUpdate, now time.Time) error {
	fields := map[string]string{}
	if !validName(upd.FullName) {
		fields["fullName"] = "must be 2 to 50 characters"
	}
	if !validEmail(strings.TrimSpace(upd.Email)) {
		fields["email"] = "must be a valid email address"
	}
	if !phonePattern.MatchString(upd.Phone) {
		fields["phone"] = "must be an E.164 phone number"
	}
	if strings.TrimSpace(upd.Address) == "" {
		fields["address"] = "is required"
	}
	dob, err := time.Parse(dateLayout, upd.DateOfBirth)
	switch {
	case err != nil:
		fields["dateOfBirth"] = "must be YYYY-MM-DD"
	case ageOn(dob, now) < minimumAge:
		fields["dateOfBirth"] = "must be at least 18 years old"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ageOn returns completed years between dob and now.
func ageOn(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}
