package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/ardnew/softhcd/hcd"
	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/hcd/core/sim"
	"github.com/ardnew/softhcd/pkg"
	"github.com/ardnew/softhcd/profile"
)

// drainLimit bounds the interrupt handler passes after one step.
const drainLimit = 16

// Result is the outcome of one script.
type Result struct {
	Name     string
	Profile  string
	Steps    int
	Failures []string
	Log      []string
	Duration time.Duration

	// Err is set by RunAll when the script could not run to completion.
	Err error
}

// Passed reports whether the script ran and every expectation held.
func (r Result) Passed() bool {
	return r.Err == nil && len(r.Failures) == 0
}

// recorder collects notifications in order.
type recorder struct {
	log []string
}

func (r *recorder) add(s string) { r.log = append(r.log, s) }

func (r *recorder) notifier() *hcd.NotifierFuncs {
	return &hcd.NotifierFuncs{
		URBStateChanged: func(ch uint8, st hcd.URBState) {
			r.add(fmt.Sprintf("urb %d %s", ch, st))
		},
		Connect:    func() { r.add("connect") },
		Disconnect: func() { r.add("disconnect") },
		Enabled:    func() { r.add("enabled") },
		Disabled:   func() { r.add("disabled") },
		Suspend:    func() { r.add("suspend") },
		Resume:     func() { r.add("resume") },
	}
}

// session is one script run in progress.
type session struct {
	script *Script
	sim    *sim.Core
	drv    *hcd.Driver
	rec    *recorder
	dirs   map[uint8]core.Direction
}

// Run executes s and checks its expectations. Setup and step errors end the
// run and are returned; failed expectations are reported in the Result.
func (s *Script) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	res := Result{Name: s.Name, Profile: s.Profile}

	p, err := profile.Lookup(s.Profile)
	if err != nil {
		return res, err
	}
	cfg, err := p.Config()
	if err != nil {
		return res, err
	}
	v, err := p.CoreVariant()
	if err != nil {
		return res, err
	}

	ss := &session{script: s, sim: sim.New(v), rec: &recorder{}, dirs: make(map[uint8]core.Direction)}
	ss.sim.SetChannels(cfg.Channels)
	ss.drv = hcd.New(ss.sim,
		hcd.WithNotifier(ss.rec.notifier()),
		hcd.WithSleeper(func(time.Duration) {}))
	if err := ss.drv.Init(cfg); err != nil {
		return res, err
	}
	if err := ss.drv.Start(); err != nil {
		return res, err
	}
	defer ss.drv.Stop()

	for _, c := range s.Channels {
		if err := ss.configure(c); err != nil {
			return res, err
		}
	}

	for i, st := range s.Steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := ss.step(st); err != nil {
			return res, fmt.Errorf("step %d (%s): %w", i+1, st.kind(), err)
		}
		ss.drain()
		res.Steps++
	}

	res.Log = ss.rec.log
	res.Failures = ss.check()
	res.Duration = time.Since(start)
	pkg.LogInfo(pkg.ComponentScenario, "scenario finished",
		"name", s.Name, "profile", s.Profile, "passed", res.Passed(), "failures", len(res.Failures))
	return res, nil
}

func (ss *session) configure(c ChannelSpec) error {
	typ, ok := core.ParseEndpointType(c.Type)
	if !ok {
		return fmt.Errorf("%w: channel %d type %q", pkg.ErrInvalidParameter, c.Num, c.Type)
	}
	speed := core.SpeedFull
	if c.Speed != "" {
		if speed, ok = core.ParseSpeed(c.Speed); !ok {
			return fmt.Errorf("%w: channel %d speed %q", pkg.ErrInvalidParameter, c.Num, c.Speed)
		}
	}
	err := ss.drv.ConfigureChannel(c.Num, hcd.ChannelConfig{
		EndpointAddress: c.EP,
		DeviceAddress:   c.Dev,
		Speed:           speed,
		Type:            typ,
		MaxPacket:       c.MPS,
	})
	if err != nil {
		return err
	}
	ss.dirs[c.Num] = core.DirOut
	if c.EP&0x80 != 0 {
		ss.dirs[c.Num] = core.DirIn
	}
	return nil
}

func (ss *session) step(st Step) error {
	switch {
	case st.Submit != nil:
		return ss.submit(st.Submit)
	case st.Event != nil:
		return ss.event(st.Event)
	case st.Rx != nil:
		return ss.rx(st.Rx)
	case st.Halt != nil:
		return ss.drv.HaltChannel(st.Halt.Ch)
	case st.Port != nil:
		return ss.port(st.Port)
	case st.Hub != nil:
		if st.Hub.Addr == 0 {
			return ss.drv.ClearHubRouting(st.Hub.Ch)
		}
		return ss.drv.SetHubRouting(st.Hub.Ch, st.Hub.Addr, st.Hub.Port)
	}
	return nil
}

// pattern returns n bytes counting up from zero.
func pattern(n int) []byte {
	return lo.Times(n, func(i int) byte { return byte(i) })
}

func (ss *session) submit(s *Submit) error {
	req := hcd.TransferRequest{Buffer: pattern(s.Len), Length: s.Len, Ping: s.Ping}
	if s.Setup {
		req.Token = hcd.TokenSetup
	}
	return ss.drv.SubmitTransfer(s.Ch, req)
}

func (ss *session) event(e *Event) error {
	var ev core.Event
	for _, name := range e.Events {
		x, ok := core.ParseEvent(name)
		if !ok {
			return fmt.Errorf("%w: event %q", pkg.ErrInvalidParameter, name)
		}
		ev |= x
	}
	if ev == 0 {
		return fmt.Errorf("%w: no events", pkg.ErrInvalidParameter)
	}
	dir := ss.dirs[e.Ch]

	if ss.sim.Variant() == core.VariantDRD && ev == core.EventAck {
		switch {
		case e.Slot != nil && dir == core.DirIn:
			ss.sim.DeliverSlot(e.Ch, *e.Slot, softSlot(e), pattern(e.Count))
		case e.Slot != nil:
			ss.sim.AckSlot(e.Ch, *e.Slot, softSlot(e))
		case dir == core.DirIn:
			ss.sim.Deliver(e.Ch, pattern(e.Count))
		default:
			ss.sim.AckOut(e.Ch)
		}
		return nil
	}

	ss.sim.Raise(e.Ch, dir, ev)
	if e.Residual != nil {
		ss.sim.SetResidual(e.Ch, *e.Residual)
	}
	return nil
}

// softSlot defaults the software slot to the one not completing.
func softSlot(e *Event) int {
	if e.Soft != nil {
		return *e.Soft
	}
	return 1 - *e.Slot
}

var rxKinds = map[string]core.RxKind{
	"":         core.RxInData,
	"data":     core.RxInData,
	"complete": core.RxInComplete,
	"toggle":   core.RxToggleErr,
	"halted":   core.RxHalted,
}

func (ss *session) rx(r *Rx) error {
	kind, ok := rxKinds[strings.ToLower(r.Status)]
	if !ok {
		return fmt.Errorf("%w: rx status %q", pkg.ErrInvalidParameter, r.Status)
	}
	if kind == core.RxInData {
		ss.sim.Receive(r.Ch, pattern(r.Count))
	} else {
		ss.sim.ReceiveStatus(r.Ch, kind)
	}
	return nil
}

func (ss *session) port(p *Port) error {
	switch strings.ToLower(p.Action) {
	case "connect":
		speed := core.SpeedFull
		if p.Speed != "" {
			var ok bool
			if speed, ok = core.ParseSpeed(p.Speed); !ok {
				return fmt.Errorf("%w: speed %q", pkg.ErrInvalidParameter, p.Speed)
			}
		}
		ss.sim.Connect(speed)
	case "disconnect":
		ss.sim.Disconnect()
	case "reset":
		return ss.drv.ResetPort()
	case "sof":
		ss.sim.SOF()
	case "suspend":
		return ss.drv.SuspendPort()
	case "bus-suspend":
		ss.sim.Suspend()
	case "wakeup":
		ss.sim.Wakeup()
	case "resume":
		return ss.drv.ResumePort()
	case "overcurrent":
		ss.sim.OverCurrent()
	default:
		return fmt.Errorf("%w: port action %q", pkg.ErrInvalidParameter, p.Action)
	}
	return nil
}

// drain runs the interrupt handler until the core has nothing pending.
func (ss *session) drain() {
	for i := 0; i < drainLimit && ss.sim.ReadInterrupts().Pending(); i++ {
		ss.drv.IRQHandler()
	}
}

func (ss *session) check() []string {
	var fails []string
	for _, e := range ss.script.Expect {
		if e.URB != "" {
			want, ok := hcd.ParseURBState(e.URB)
			got := ss.drv.URBState(e.Ch)
			if !ok || got != want {
				fails = append(fails, fmt.Sprintf("ch %d urb = %s, want %s", e.Ch, got, e.URB))
			}
		}
		if e.Count != nil {
			if got := ss.drv.TransferCount(e.Ch); got != *e.Count {
				fails = append(fails, fmt.Sprintf("ch %d count = %d, want %d", e.Ch, got, *e.Count))
			}
		}
		if e.State != "" {
			if got := ss.drv.ChannelState(e.Ch); !strings.EqualFold(got.String(), e.State) {
				fails = append(fails, fmt.Sprintf("ch %d state = %s, want %s", e.Ch, got, e.State))
			}
		}
	}
	if ss.script.Port != "" {
		if got := ss.drv.PortState(); !strings.EqualFold(got.String(), ss.script.Port) {
			fails = append(fails, fmt.Sprintf("port = %s, want %s", got, ss.script.Port))
		}
	}
	if ss.script.Notifications != nil && !slices.Equal(ss.rec.log, ss.script.Notifications) {
		fails = append(fails, fmt.Sprintf("notifications = %q, want %q", ss.rec.log, ss.script.Notifications))
	}
	return fails
}

// RunAll runs scripts with at most parallel running at once and returns
// their results in input order. Run errors are joined; the other scripts
// still run.
func RunAll(ctx context.Context, scripts []*Script, parallel int) ([]Result, error) {
	results := make([]Result, len(scripts))
	errs := make([]error, len(scripts))

	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, s := range scripts {
		g.Go(func() error {
			res, err := s.Run(ctx)
			if err != nil {
				res.Err = err
				errs[i] = fmt.Errorf("%s: %w", s.Name, err)
				pkg.LogWarn(pkg.ComponentScenario, "scenario aborted", "name", s.Name, "err", err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, errors.Join(errs...)
}

// Summary counts passed and failed results.
func Summary(results []Result) (passed, failed int) {
	passed = lo.CountBy(results, Result.Passed)
	return passed, len(results) - passed
}
