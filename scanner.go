package bluetooth

import (
	"context"
	"sync"
	"time"
)

// ScanningMode selects whether a scan requests scan responses (active, the
// default) or only listens passively. Passive scanning is only meaningful
// on backends that implement it at the OS level; elsewhere the request is
// treated as active and an advisory log entry is emitted.
type ScanningMode int

const (
	ScanningModeActive ScanningMode = iota
	ScanningModePassive
)

// ScanOptions configures a Scanner.
type ScanOptions struct {
	ServiceUUIDs []UUID
	Mode         ScanningMode

	// DetectionCallback, if set, is invoked for every advertisement event,
	// pre-deduplication, before the merged DiscoveredDevice is published to
	// Advertisements.
	DetectionCallback func(DiscoveredDevice, Advertisement)

	// PlatformSpecific is an opaque bag passed through to the backend.
	PlatformSpecific map[string]any
}

var (
	errScanning    = newError(KindInvalidArgument, "scan already in progress")
	errNotScanning = newError(KindInvalidArgument, "no scan in progress")
)

// Scanner scans for advertising peripherals. It is restartable: Start may
// be called again after Stop, but double-starting a single running Scanner
// is an error.
type Scanner struct {
	backend Backend
	opts    ScanOptions

	sched *scheduler

	mu       sync.Mutex
	running  bool
	devices  map[string]*DiscoveredDevice
	outgoing chan AdvertisementStreamEvent
}

// AdvertisementStreamEvent is one element of the channel returned by
// Scanner.Advertisements: the merged device state and the just-received
// advertisement that produced this event.
type AdvertisementStreamEvent struct {
	Device        DiscoveredDevice
	Advertisement Advertisement
}

// NewScanner constructs a Scanner against the given backend (normally
// DefaultBackend(); a mock Backend may be substituted in tests).
func NewScanner(backend Backend, opts ScanOptions) *Scanner {
	return &Scanner{
		backend: backend,
		opts:    opts,
		devices: make(map[string]*DiscoveredDevice),
	}
}

// Start begins scanning. It returns once scanning has started; advertisement
// events are delivered asynchronously to the DetectionCallback and to the
// stream returned by Advertisements.
func (s *Scanner) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errScanning
	}
	s.running = true
	s.devices = make(map[string]*DiscoveredDevice)
	s.sched = newScheduler(128)
	s.outgoing = make(chan AdvertisementStreamEvent, 128)
	s.mu.Unlock()

	if s.opts.Mode == ScanningModePassive {
		Log.Debug("bluetooth: passive scanning requested; backend may silently scan actively if it lacks OS-level passive support")
	}

	filters := ScanFilters{
		ServiceUUIDs:     s.opts.ServiceUUIDs,
		Active:           s.opts.Mode != ScanningModePassive,
		PlatformSpecific: s.opts.PlatformSpecific,
	}

	err := s.backend.ScanStart(filters, func(evt AdvertisementEvent) {
		s.sched.post(func() { s.handleEvent(evt) })
	})
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.sched.stop()
		s.mu.Unlock()
		return err
	}
	return nil
}

// handleEvent runs on the scanner's own scheduler goroutine and merges the
// event into the device already known under that identity, if any.
// DetectionCallback is invoked for every advertisement event, pre-
// deduplication; the in-process service filter only gates the
// Advertisements()/Discover() stream, not the callback.
func (s *Scanner) handleEvent(evt AdvertisementEvent) {
	key := evt.Identity.String()

	s.mu.Lock()
	device, ok := s.devices[key]
	if !ok {
		device = &DiscoveredDevice{Identity: evt.Identity}
		s.devices[key] = device
	}
	raw := device.merge(evt.Advertisement, time.Now())
	snapshot := *device
	s.mu.Unlock()

	if s.opts.DetectionCallback != nil {
		s.opts.DetectionCallback(snapshot, raw)
	}

	if !s.matchesServiceFilter(evt.Advertisement) {
		return
	}

	select {
	case s.outgoing <- AdvertisementStreamEvent{Device: snapshot, Advertisement: raw}:
	default:
		Log.Warn("bluetooth: advertisement stream consumer too slow; dropping event")
	}
}

// matchesServiceFilter applies ServiceUUIDs in-process for backends that
// don't support OS-level filtering; it always passes when no filter is
// configured.
func (s *Scanner) matchesServiceFilter(adv Advertisement) bool {
	if len(s.opts.ServiceUUIDs) == 0 {
		return true
	}
	for _, want := range s.opts.ServiceUUIDs {
		if adv.hasServiceUUID(want) {
			return true
		}
	}
	return false
}

// Stop stops any in-progress scan. It is idempotent: calling Stop when no
// scan is running succeeds.
func (s *Scanner) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	sched := s.sched
	out := s.outgoing
	s.mu.Unlock()

	err := s.backend.ScanStop()

	if sched != nil {
		sched.stop()
	}
	if out != nil {
		close(out)
	}
	return err
}

// Advertisements returns a channel of (device, advertisement) pairs, one
// per received advertisement event after merging. The channel is closed
// when Stop is called.
func (s *Scanner) Advertisements() <-chan AdvertisementStreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outgoing
}

// Discover scans for the given duration and returns every device seen that
// passes the ServiceUUIDs filter.
func (s *Scanner) Discover(ctx context.Context, timeout time.Duration) ([]DiscoveredDevice, error) {
	if err := s.Start(); err != nil {
		return nil, err
	}
	defer s.Stop()

	deadline := time.After(timeout)
	select {
	case <-deadline:
	case <-ctx.Done():
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DiscoveredDevice, 0, len(s.devices))
	for _, d := range s.devices {
		if !s.matchesServiceFilter(d.MostRecentAdvertisement) {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

// FindDeviceBy starts a scan, returns on the first advertisement matching
// predicate, and stops the scan before returning — guaranteed even if
// predicate panics or ctx is cancelled. On timeout it returns (nil, nil),
// not an error.
func (s *Scanner) FindDeviceBy(ctx context.Context, timeout time.Duration, predicate func(DiscoveredDevice, Advertisement) bool) (*DiscoveredDevice, error) {
	if err := s.Start(); err != nil {
		return nil, err
	}
	defer s.Stop()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	events := s.Advertisements()
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return nil, nil
			}
			if predicate(evt.Device, evt.Advertisement) {
				found := evt.Device
				return &found, nil
			}
		case <-deadline.C:
			return nil, nil
		case <-ctx.Done():
			return nil, wrapError(KindCancelled, "FindDeviceBy cancelled", ctx.Err())
		}
	}
}
