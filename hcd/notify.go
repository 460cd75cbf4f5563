package hcd

// Notifier receives URB and port events from the engine. Methods are called
// from IRQHandler and must not call back into the Driver's entry points for
// the same channel.
type Notifier interface {
	// OnURBStateChanged is called once for every URB state a channel
	// produces.
	OnURBStateChanged(ch uint8, st URBState)

	OnConnect()
	OnDisconnect()
	OnEnabled()
	OnDisabled()
	OnSuspend()
	OnResume()
	OnSOF()
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) OnURBStateChanged(uint8, URBState) {}
func (NopNotifier) OnConnect()                         {}
func (NopNotifier) OnDisconnect()                      {}
func (NopNotifier) OnEnabled()                         {}
func (NopNotifier) OnDisabled()                        {}
func (NopNotifier) OnSuspend()                         {}
func (NopNotifier) OnResume()                          {}
func (NopNotifier) OnSOF()                             {}

var _ Notifier = NopNotifier{}

// NotifierFuncs adapts optional callbacks to a Notifier. Nil fields are
// skipped.
type NotifierFuncs struct {
	URBStateChanged func(ch uint8, st URBState)
	Connect         func()
	Disconnect      func()
	Enabled         func()
	Disabled        func()
	Suspend         func()
	Resume          func()
	SOF             func()
}

var _ Notifier = (*NotifierFuncs)(nil)

func (f *NotifierFuncs) OnURBStateChanged(ch uint8, st URBState) {
	if f.URBStateChanged != nil {
		f.URBStateChanged(ch, st)
	}
}

func (f *NotifierFuncs) OnConnect()    { call(f.Connect) }
func (f *NotifierFuncs) OnDisconnect() { call(f.Disconnect) }
func (f *NotifierFuncs) OnEnabled()    { call(f.Enabled) }
func (f *NotifierFuncs) OnDisabled()   { call(f.Disabled) }
func (f *NotifierFuncs) OnSuspend()    { call(f.Suspend) }
func (f *NotifierFuncs) OnResume()     { call(f.Resume) }
func (f *NotifierFuncs) OnSOF()        { call(f.SOF) }

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
