package validation

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Errors collects the validation failures of one configuration.
//
// The zero value is not usable; create one with NewErrors. Errors
// implements error so that an invalid result can be returned directly.
type Errors struct {
	propertyName string
	result       *multierror.Error
}

// NewErrors returns an empty collector for the configuration stored at
// propertyName.
func NewErrors(propertyName string) *Errors {
	return &Errors{
		propertyName: propertyName,
		result:       &multierror.Error{},
	}
}

// PropertyName returns the property key the errors belong to.
func (e *Errors) PropertyName() string {
	return e.propertyName
}

// Add records a message.
func (e *Errors) Add(msg string) *Errors {
	e.result = multierror.Append(e.result, message(msg))
	return e
}

// Addf records a formatted message.
func (e *Errors) Addf(format string, args ...interface{}) *Errors {
	return e.Add(fmt.Sprintf(format, args...))
}

// Messages returns the recorded messages in the order they were added.
func (e *Errors) Messages() []string {
	result := make([]string, 0, len(e.result.Errors))
	for _, err := range e.result.Errors {
		result = append(result, err.Error())
	}
	return result
}

// Valid reports whether no message was recorded.
func (e *Errors) Valid() bool {
	return len(e.result.Errors) == 0
}

// ErrorOrNil returns e if any message was recorded and nil otherwise.
func (e *Errors) ErrorOrNil() error {
	if e.Valid() {
		return nil
	}
	return e
}

// Error renders a report naming the property and listing each message
// on its own line.
func (e *Errors) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "dynamic data source configuration %q is invalid:", e.propertyName)
	for _, msg := range e.Messages() {
		b.WriteString("\n  * ")
		b.WriteString(msg)
	}
	return b.String()
}

func (e *Errors) String() string {
	return e.Error()
}

// Unwrap returns the underlying multierror.
func (e *Errors) Unwrap() error {
	return e.result
}

type message string

func (m message) Error() string { return string(m) }
