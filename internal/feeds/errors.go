package feeds

import (
	"errors"
	"fmt"
	"time"
)

// ProviderFault means the upstream tracking service answered but reported
// an error, or answered with something that could not be read.
type ProviderFault struct {
	Scope  string // device GID or batch name
	Detail string
}

func (e *ProviderFault) Error() string {
	return fmt.Sprintf("provider fault for %s: %s", e.Scope, e.Detail)
}

// NetworkFault means the upstream tracking service could not be reached or
// did not answer with a successful HTTP status.
type NetworkFault struct {
	Scope string
	Err   error
}

func (e *NetworkFault) Error() string {
	return fmt.Sprintf("network fault for %s: %v", e.Scope, e.Err)
}

func (e *NetworkFault) Unwrap() error { return e.Err }

// AnomalousOrdering reports a message newer than the one taken as latest.
// The normalizer keeps the first message as latest regardless.
type AnomalousOrdering struct {
	DeviceID  string
	Latest    time.Time
	Offending time.Time
}

func (a AnomalousOrdering) String() string {
	return fmt.Sprintf("device %s: message at %s is newer than latest %s",
		a.DeviceID, a.Offending.Format(time.RFC3339), a.Latest.Format(time.RFC3339))
}

// Outcome classifies a provider fetch so that an empty answer is never
// confused with a failed one.
type Outcome int

const (
	OutcomeData Outcome = iota
	OutcomeEmpty
	OutcomeProviderFault
	OutcomeNetworkFault
)

func (o Outcome) String() string {
	switch o {
	case OutcomeData:
		return "data"
	case OutcomeEmpty:
		return "empty"
	case OutcomeProviderFault:
		return "provider_fault"
	case OutcomeNetworkFault:
		return "network_fault"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Failed reports whether the fetch produced no usable answer.
func (o Outcome) Failed() bool {
	return o == OutcomeProviderFault || o == OutcomeNetworkFault
}

// Classify maps the result of a fetch onto an Outcome. Errors that are
// neither fault type, such as a cancelled context, count as network faults.
func Classify(msgs []Message, err error) Outcome {
	if err != nil {
		var pf *ProviderFault
		if errors.As(err, &pf) {
			return OutcomeProviderFault
		}
		return OutcomeNetworkFault
	}
	if len(msgs) == 0 {
		return OutcomeEmpty
	}
	return OutcomeData
}
