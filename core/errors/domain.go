package errors

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Handoff Domain Errors
// =============================================================================

// ErrGenerationAbort marks a response generation that was superseded by a
// newer request, a user barge-in or a handoff. It is expected cancellation.
var ErrGenerationAbort = errors.New("response generation superseded")

// ConfigurationError reports a reference to something the closed
// configuration does not declare, such as an unknown persona name.
type ConfigurationError struct {
	// Subject is what was referenced (usually a persona name).
	Subject string

	// Reason describes what is wrong with it.
	Reason string

	// Known lists the valid names, when meaningful.
	Known []string
}

// NewUnknownPersonaError builds the error raised for an unregistered persona.
func NewUnknownPersonaError(name string, known []string) *ConfigurationError {
	return &ConfigurationError{
		Subject: name,
		Reason:  "persona is not registered",
		Known:   known,
	}
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error: %q: %s", e.Subject, e.Reason)
	if len(e.Known) > 0 {
		msg += " (known: " + strings.Join(e.Known, ", ") + ")"
	}
	return msg
}

// Tier classifies configuration errors as permanent.
func (e *ConfigurationError) Tier() ErrorTier {
	return TierPermanent
}

// TransientChannelError wraps a failed best-effort operation on the room,
// such as tagging it with the active persona. It is logged, never fatal.
type TransientChannelError struct {
	Op  string
	Err error
}

func (e *TransientChannelError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

func (e *TransientChannelError) Unwrap() error {
	return e.Err
}

// Tier classifies channel errors as transient.
func (e *TransientChannelError) Tier() ErrorTier {
	return TierTransient
}

// ConnectionError reports a collaborator that could not be reached at
// bootstrap. Its tier follows the cause so retry policy can apply.
type ConnectionError struct {
	Service string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Service, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Tier returns the tier of the underlying cause.
func (e *ConnectionError) Tier() ErrorTier {
	var te *TieredError
	if errors.As(e.Err, &te) {
		return te.Tier
	}
	return TierTransient
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
