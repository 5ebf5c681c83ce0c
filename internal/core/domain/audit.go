package domain

import "time"

// Audit action names recorded for externally visible outcomes.
const (
	AuditUserRegistered          = "User Registered"
	AuditLoginFailed             = "Login Failed"
	AuditLoginSuccessful         = "Login Successful"
	AuditAccountLocked           = "Account Locked"
	AuditAccountAutoUnlocked     = "Account Auto-Unlocked"
	AuditTwoFactorCodeSent       = "2FA Code Sent"
	AuditTwoFactorVerified       = "2FA Verified"
	AuditTwoFactorFailed         = "2FA Failed"
	AuditSessionCreated          = "Session Created"
	AuditConcurrentLoginDetected = "Concurrent Login Detected"
	AuditSessionTerminated       = "Session Terminated"
	AuditAllSessionsTerminated   = "All Sessions Terminated"
	AuditPasswordChanged         = "Password Changed"
	AuditPasswordChangeFailed    = "Password Change Failed"
	AuditPasswordResetRequested  = "Password Reset Requested"
	AuditPasswordReset           = "Password Reset"
	AuditLogout                  = "Logout"
)

// AuditEntry is an append-only record of an authentication-related outcome.
// PrincipalID is nil when the attempt could not be tied to an account.
type AuditEntry struct {
	ID          string
	PrincipalID *string
	Action      string
	Details     string
	IP          *string
	Success     bool
	At          time.Time
}
