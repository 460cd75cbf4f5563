// Package scenario runs scripted host controller sessions against the
// software core and checks the notifications the engine produces.
//
// A script names a controller profile, configures channels, and lists steps:
// transfer submissions, hardware events injected into the simulated core,
// port activity, and hub routing. After every step the driver's interrupt
// handler runs until the core has nothing pending. Expectations are checked
// against the final URB state and count of each channel and, optionally,
// the ordered notification log.
package scenario

import (
	"fmt"
	"os"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/ardnew/softhcd/pkg"
)

// Script is one scenario.
type Script struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Profile     string        `yaml:"profile"`
	Channels    []ChannelSpec `yaml:"channels"`
	Steps       []Step        `yaml:"steps"`
	Expect      []Expectation `yaml:"expect"`

	// Notifications, when set, must match the notification log exactly.
	Notifications []string `yaml:"notifications"`
	// Port, when set, is the expected final port state.
	Port string `yaml:"port"`
}

// ChannelSpec configures one channel before the steps run.
type ChannelSpec struct {
	Num   uint8  `yaml:"num"`
	EP    uint8  `yaml:"ep"`
	Dev   uint8  `yaml:"dev"`
	Type  string `yaml:"type"`
	MPS   uint16 `yaml:"mps"`
	Speed string `yaml:"speed"`
}

// Step is one action. Exactly one field is set.
type Step struct {
	Submit *Submit    `yaml:"submit"`
	Event  *Event     `yaml:"event"`
	Rx     *Rx        `yaml:"rx"`
	Halt   *ChannelID `yaml:"halt"`
	Port   *Port      `yaml:"port"`
	Hub    *Hub       `yaml:"hub"`
}

// Submit arms a transfer of Len bytes.
type Submit struct {
	Ch    uint8 `yaml:"ch"`
	Len   int   `yaml:"len"`
	Setup bool  `yaml:"setup"`
	Ping  bool  `yaml:"ping"`
}

// Event raises channel events in the core. On packet-memory cores an "ack"
// carries the packet: Count bytes, in the double-buffer Slot when set, with
// Soft the slot software owns.
type Event struct {
	Ch       uint8    `yaml:"ch"`
	Events   []string `yaml:"events"`
	Count    int      `yaml:"count"`
	Slot     *int     `yaml:"slot"`
	Soft     *int     `yaml:"soft"`
	Residual *int     `yaml:"residual"`
}

// Rx queues a receive FIFO entry: an IN data packet of Count bytes, or a
// status entry named by Status ("complete", "toggle", "halted").
type Rx struct {
	Ch     uint8  `yaml:"ch"`
	Count  int    `yaml:"count"`
	Status string `yaml:"status"`
}

// ChannelID names a channel.
type ChannelID struct {
	Ch uint8 `yaml:"ch"`
}

// Port drives port activity: connect, disconnect, reset, sof, suspend,
// wakeup, resume, or overcurrent.
type Port struct {
	Action string `yaml:"action"`
	Speed  string `yaml:"speed"`
}

// Hub routes a channel through a high-speed hub. Addr zero clears the
// routing.
type Hub struct {
	Ch   uint8 `yaml:"ch"`
	Addr uint8 `yaml:"addr"`
	Port uint8 `yaml:"port"`
}

// Expectation is the expected final state of one channel.
type Expectation struct {
	Ch    uint8  `yaml:"ch"`
	URB   string `yaml:"urb"`
	Count *int   `yaml:"count"`
	State string `yaml:"state"`
}

// kind returns the name of the step's action.
func (s Step) kind() string {
	kinds := lo.Filter([]lo.Tuple2[string, bool]{
		lo.T2("submit", s.Submit != nil),
		lo.T2("event", s.Event != nil),
		lo.T2("rx", s.Rx != nil),
		lo.T2("halt", s.Halt != nil),
		lo.T2("port", s.Port != nil),
		lo.T2("hub", s.Hub != nil),
	}, func(t lo.Tuple2[string, bool], _ int) bool { return t.B })
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0].A
}

// Parse decodes and validates a script.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: scenario: %w", pkg.ErrInvalidParameter, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and parses the script at path. A script without a name is
// named after its file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = path
	}
	return s, nil
}

func (s *Script) validate() error {
	if s.Profile == "" {
		return fmt.Errorf("%w: scenario %q has no profile", pkg.ErrInvalidParameter, s.Name)
	}
	for i, st := range s.Steps {
		if st.kind() == "" {
			return fmt.Errorf("%w: step %d must set exactly one action", pkg.ErrInvalidParameter, i+1)
		}
	}
	return nil
}
