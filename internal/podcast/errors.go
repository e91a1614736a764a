package podcast

import (
	"errors"
	"fmt"
)

// ErrNoClips is returned when speech synthesis produced nothing to assemble.
var ErrNoClips = errors.New("no audio clips generated")

// ConfigurationError reports missing credentials or invalid input. Raised
// before any stage work begins.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string { return fmt.Sprintf("configuration: %s: %v", e.Op, e.Err) }
func (e *ConfigurationError) Unwrap() error { return e.Err }

// ProviderError reports a failed or malformed text-generation or
// speech-synthesis call.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("provider %s: %v", e.Provider, e.Err) }
func (e *ProviderError) Unwrap() error { return e.Err }

// AssemblyError reports a failure of the mandatory normalize/concatenate step.
type AssemblyError struct {
	Op  string
	Err error
}

func (e *AssemblyError) Error() string { return fmt.Sprintf("assembly: %s: %v", e.Op, e.Err) }
func (e *AssemblyError) Unwrap() error { return e.Err }

// RegistrationError reports a manifest or upload failure after the artifact
// exists. Never fatal to a run.
type RegistrationError struct {
	Op  string
	Err error
}

func (e *RegistrationError) Error() string { return fmt.Sprintf("registration: %s: %v", e.Op, e.Err) }
func (e *RegistrationError) Unwrap() error { return e.Err }

// CleanupError reports a failed work directory removal. Never fatal.
type CleanupError struct {
	Path string
	Err  error
}

func (e *CleanupError) Error() string { return fmt.Sprintf("cleanup %s: %v", e.Path, e.Err) }
func (e *CleanupError) Unwrap() error { return e.Err }

func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func IsProvider(err error) bool {
	var target *ProviderError
	return errors.As(err, &target)
}

func IsAssembly(err error) bool {
	var target *AssemblyError
	return errors.As(err, &target)
}
