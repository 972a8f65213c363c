package errors

import "errors"

var (
	// Settings record errors 📦
	ErrInvalidMagic     = errors.New("❌ invalid settings magic")
	ErrChecksumMismatch = errors.New("❌ settings checksum mismatch")
	ErrVersionTooNew    = errors.New("❌ settings written by newer firmware")
	ErrRecordTooShort   = errors.New("❌ settings record too short")

	// Driver errors 💾
	ErrNoLaunchSlot    = errors.New("❌ no launch slot available")
	ErrLocked          = errors.New("❌ flash is locked")
	ErrBankOutOfRange  = errors.New("❌ bank out of range")
	ErrOffsetOverflow  = errors.New("❌ access crosses bank boundary")
	ErrWriteUnerased   = errors.New("❌ write to unerased flash")
	ErrNotSupported    = errors.New("❌ operation not supported by driver")
	ErrInvalidSRAMSlot = errors.New("❌ invalid SRAM slot")

	// Host image errors 🔒
	ErrImageLocked     = errors.New("❌ image is locked by another process")
	ErrInvalidManifest = errors.New("❌ invalid image manifest")
)
