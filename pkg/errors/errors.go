package errors

import "fmt"

// ErrMethodNotFound is returned when an application has no method by that name
func ErrMethodNotFound(method, service string) error {
	return fmt.Errorf("method [%s] not found for %s", method, service)
}

// ErrDuplicateMethod is returned when a method name is registered twice
func ErrDuplicateMethod(name string) error {
	return fmt.Errorf("duplicate method name: %s", name)
}

// ErrNotEnoughParams is returned when a call carries fewer params than the method requires
func ErrNotEnoughParams(method string, want, got int) error {
	return fmt.Errorf("not enough params for method %s: expected at least %d, got %d", method, want, got)
}

// ErrUnsupportedDriver is returned for an unknown journal database type
func ErrUnsupportedDriver(driver string) error {
	return fmt.Errorf("unsupported database type: %s", driver)
}
