package identity

import (
	"errors"

	"github.com/wolfman30/rams-care-platform/internal/failure"
)

// Auth collaborator errors.
var (
	ErrDuplicatePhone  = errors.New("identity: phone number already bound to another account")
	ErrDuplicateEmail  = errors.New("identity: email already bound to another account")
	ErrInvalidCode     = errors.New("identity: invalid or expired verification code")
	ErrAccountNotFound = errors.New("identity: account not found")
)

// Failures reported by the directory.
var (
	ErrEmailInUse = failure.New(failure.KindDuplicateContact, "email_in_use",
		"This email address is already in use by another account.")
	ErrPhoneInUse = failure.New(failure.KindDuplicateContact, "phone_in_use",
		"This phone number is already in use by another account.")
	ErrAlreadyRegistered = failure.New(failure.KindAlreadyExists, "already_registered",
		"This account is already registered.")
	ErrProfileNotFound = failure.New(failure.KindNotFound, "profile_not_found",
		"No profile is registered for this account.")
	ErrProfileNotEditable = failure.New(failure.KindForbidden, "profile_not_editable",
		"Only patient and doctor profiles can be edited.")
	ErrNotAmbulance = failure.New(failure.KindForbidden, "not_ambulance",
		"Only ambulance operators can change availability.")
	ErrCodeRejected = failure.New(failure.KindUnauthorized, "invalid_code",
		"The verification code is incorrect or has expired.")
	ErrMissingAccount = failure.New(failure.KindUnauthorized, "missing_account",
		"Please sign in to continue.")
)

const (
	registrationFailed = "An unexpected error occurred during registration. Please try again."
	updateFailed       = "Failed to update profile. Please try again."
)

func contactFailure(err error) *failure.Error {
	switch {
	case errors.Is(err, ErrDuplicateEmail):
		return ErrEmailInUse.Wrap(err)
	case errors.Is(err, ErrDuplicatePhone):
		return ErrPhoneInUse.Wrap(err)
	}
	return nil
}
