package domain

import "errors"

var (
	ErrProfileNotFound        = errors.New("student profile not found")
	ErrSettingsNotInitialized = errors.New("system settings not initialized")
)
