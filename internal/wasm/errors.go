package wasm

import (
	"fmt"
	"time"
)

// CompilationError occurs when Wasm module compilation fails
type CompilationError struct {
	ModuleName string
	Err        error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("failed to compile Wasm module '%s': %v", e.ModuleName, e.Err)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// InstantiationError occurs when module instantiation fails
type InstantiationError struct {
	ModuleName string
	InstanceID string
	Err        error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("failed to instantiate module '%s' (instance: %s): %v",
		e.ModuleName, e.InstanceID, e.Err)
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// ModuleNotFoundError occurs when a module is not in cache
type ModuleNotFoundError struct {
	ModuleName string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module '%s' not found in cache", e.ModuleName)
}

// FunctionNotFoundError occurs when an exported function is missing
type FunctionNotFoundError struct {
	ModuleName   string
	FunctionName string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("function '%s' not found in module '%s'",
		e.FunctionName, e.ModuleName)
}

// HostFunctionError occurs when a host import fails. The guest call traps.
type HostFunctionError struct {
	FunctionName string
	Err          error
}

func (e *HostFunctionError) Error() string {
	return fmt.Sprintf("host function '%s' failed: %v", e.FunctionName, e.Err)
}

func (e *HostFunctionError) Unwrap() error {
	return e.Err
}

// GuestAbortError is raised when the guest calls env.abort or logs at
// critical level.
type GuestAbortError struct {
	Message string
	File    string
	Line    uint32
	Column  uint32
}

func (e *GuestAbortError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("mapping aborted: %s", e.Message)
	}
	return fmt.Sprintf("mapping aborted at %s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
}

// TimeoutError occurs when Wasm execution times out
type TimeoutError struct {
	Handler  string
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("handler '%s' timed out after %v", e.Handler, e.Duration)
}

// InstanceLimitError occurs when MaxInstances instances are already live.
type InstanceLimitError struct {
	Limit int
}

func (e *InstanceLimitError) Error() string {
	return fmt.Sprintf("instance limit of %d reached", e.Limit)
}
