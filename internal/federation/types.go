package federation

import (
	"context"
	"fmt"
)

// Time is simulated time in seconds.
type Time = float64

type FederateID uint64

// Handle identifies a publication or input within one federate.
type Handle uint32

type Mode int

const (
	ModeCreated Mode = iota
	ModeExecuting
	ModeFinalized
)

func (m Mode) String() string {
	switch m {
	case ModeCreated:
		return "created"
	case ModeExecuting:
		return "executing"
	case ModeFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Flags are the timing options a federate hands to the core.
type Flags struct {
	// Uninterruptible forces the granted time to equal the requested time.
	Uninterruptible bool `yaml:"uninterruptible" toml:"uninterruptible"`
	// TerminateOnError stops the whole federation if this federate fails.
	TerminateOnError bool `yaml:"terminate_on_error" toml:"terminate_on_error"`
	// WaitForCurrentTimeUpdate makes this federate the last one granted a
	// given time, so it sees every value published at that time.
	WaitForCurrentTimeUpdate bool `yaml:"wait_for_current_time_update" toml:"wait_for_current_time_update"`
}

type FederateInfo struct {
	Name     string `yaml:"name" toml:"name"`
	CoreType string `yaml:"coreType" toml:"core_type"`
	CoreInit string `yaml:"coreInit" toml:"core_init"`
	Period   Time   `yaml:"period" toml:"period"`
	LogLevel string `yaml:"logLevel" toml:"log_level"`
	Flags    `yaml:",inline" toml:"flags"`
}

func (i FederateInfo) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("%w: federate name is required", ErrInvalidInfo)
	}
	if i.Period <= 0 {
		return fmt.Errorf("%w: period must be positive, got %v", ErrInvalidInfo, i.Period)
	}
	return nil
}

type PublicationSpec struct {
	Key    string `yaml:"key" toml:"key"`
	Type   string `yaml:"type" toml:"type"`
	Units  string `yaml:"units" toml:"units"`
	Global bool   `yaml:"global" toml:"global"`
}

type SubscriptionSpec struct {
	Target string `yaml:"key" toml:"key"`
	Units  string `yaml:"units" toml:"units"`
}

// Update is one value delivered to an input on a time grant.
type Update struct {
	Input  Handle
	Target string
	Value  float64
	Time   Time
}

type Grant struct {
	Time    Time
	Updates []Update
}

// Core is the co-simulation runtime as seen by a single federate process.
// Blocking calls honour ctx cancellation.
type Core interface {
	Register(ctx context.Context, info FederateInfo) (FederateID, error)
	RegisterPublication(ctx context.Context, id FederateID, spec PublicationSpec) (Handle, error)
	RegisterSubscription(ctx context.Context, id FederateID, spec SubscriptionSpec) (Handle, error)
	EnterExecutingMode(ctx context.Context, id FederateID) error
	RequestTime(ctx context.Context, id FederateID, t Time) (Grant, error)
	Publish(ctx context.Context, id FederateID, pub Handle, value float64) error
	Finalize(ctx context.Context, id FederateID) error
}

// Failer is implemented by cores that accept a failure report in place of a
// clean finalize.
type Failer interface {
	Fail(id FederateID, cause error)
}
