package bluetooth

import (
	"context"
	"testing"
	"time"
)

func testDevice() DiscoveredDevice {
	return DiscoveredDevice{Identity: NewMACIdentity(MAC{0x11, 0x22, 0x33, 0xAA, 0xBB, 0xCC}, AddressTypePublic)}
}

// connectedClient builds a Client already connected to a mockConnection
// pre-loaded with services, returning both for the test to drive further.
func connectedClient(t *testing.T, services []RawService) (*Client, *mockConnection) {
	t.Helper()
	backend := newMockBackend()
	backend.conn = newMockConnection()
	backend.conn.setServices(services)

	c := NewClient(backend)
	if err := c.Connect(context.Background(), testDevice(), ConnectOptions{}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return c, backend.conn
}

// waitFor blocks until ch receives a value or the deadline elapses, failing
// the test on timeout. It exists because scheduler delivery happens on a
// separate goroutine.
func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scheduler callback")
	}
}

func TestClientConnectTransitionsToConnected(t *testing.T) {
	c, _ := connectedClient(t, sampleRawServices())
	if got := c.State(); got != StateConnected {
		t.Fatalf("expected StateConnected after a successful Connect, got %s", got)
	}
}

func TestClientConnectFromNonDisconnectedStateFails(t *testing.T) {
	c, _ := connectedClient(t, sampleRawServices())
	err := c.Connect(context.Background(), testDevice(), ConnectOptions{})
	if err == nil {
		t.Fatal("expected an error connecting a Client that is already connected")
	}
}

func TestClientDisconnectIsIdempotent(t *testing.T) {
	c, _ := connectedClient(t, sampleRawServices())
	if err := c.Disconnect(); err != nil {
		t.Fatalf("unexpected error on first Disconnect: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect must be idempotent, got error on second call: %v", err)
	}
	if got := c.State(); got != StateDisconnected {
		t.Fatalf("expected StateDisconnected, got %s", got)
	}
}

func TestClientDisconnectFiresCallbackExactlyOnce(t *testing.T) {
	c, _ := connectedClient(t, sampleRawServices())
	calls := 0
	done := make(chan struct{})
	c.SetDisconnectedCallback(func(err error) {
		calls++
		close(done)
	})

	if err := c.Disconnect(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, done)

	_ = c.Disconnect()
	if calls != 1 {
		t.Fatalf("expected the disconnected callback to fire exactly once, fired %d times", calls)
	}
}

func TestClientBackendInitiatedDisconnectFiresCallback(t *testing.T) {
	c, conn := connectedClient(t, sampleRawServices())
	done := make(chan struct{})
	var gotCause error
	c.SetDisconnectedCallback(func(cause error) {
		gotCause = cause
		close(done)
	})

	wantCause := ErrNotConnected
	conn.disconnect(wantCause)
	waitFor(t, done)

	if gotCause != wantCause {
		t.Errorf("expected the disconnect cause to reach the callback, got %v", gotCause)
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("expected StateDisconnected after a backend-initiated disconnect, got %s", got)
	}
}

func TestReadGATTCharRejectsNonReadableCharacteristic(t *testing.T) {
	c, _ := connectedClient(t, sampleRawServices())
	// Handle 2/valueHandle 3 is notify-only (no CharPropRead) in sampleRawServices.
	_, err := c.ReadGATTChar(context.Background(), ByHandle(2))
	if err != ErrNotReadable {
		t.Fatalf("expected ErrNotReadable, got %v", err)
	}
}

func TestReadGATTCharReturnsBackendValue(t *testing.T) {
	c, conn := connectedClient(t, sampleRawServices())
	conn.setValue(5, []byte("98 bpm"))

	data, err := c.ReadGATTChar(context.Background(), ByHandle(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "98 bpm" {
		t.Errorf("expected the backend's stored value, got %q", data)
	}
}

func TestWriteGATTCharEnforcesMaxWriteWithoutResponseSize(t *testing.T) {
	raw := []RawService{
		{
			UUID:   New16BitUUID(0x1523),
			Handle: 1,
			Characteristics: []RawCharacteristic{
				{UUID: New16BitUUID(0x1524), Handle: 2, ValueHandle: 3, Properties: CharPropWriteWithoutResponse},
			},
		},
	}
	c, _ := connectedClient(t, raw)

	tooLong := make([]byte, 200)
	err := c.WriteGATTChar(context.Background(), ByHandle(2), tooLong, false)
	if err != ErrDataTooLong {
		t.Fatalf("expected ErrDataTooLong for an oversized write-without-response, got %v", err)
	}
}

func TestWriteGATTCharFallsBackToSupportedMode(t *testing.T) {
	raw := []RawService{
		{
			UUID:   New16BitUUID(0x1523),
			Handle: 1,
			Characteristics: []RawCharacteristic{
				{UUID: New16BitUUID(0x1524), Handle: 2, ValueHandle: 3, Properties: CharPropWrite},
			},
		},
	}
	c, conn := connectedClient(t, raw)

	// Characteristic only supports write-with-response; asking for
	// without-response should be upgraded (with a logged warning) rather
	// than failing.
	if err := c.WriteGATTChar(context.Background(), ByHandle(2), []byte{1}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	writes := conn.writesFor(3)
	if len(writes) != 1 || writes[0][0] != 1 {
		t.Errorf("expected one write of [1] to reach the backend, got %v", writes)
	}
}

func TestStartNotifyDeliversInOrderOnSchedulerGoroutine(t *testing.T) {
	c, conn := connectedClient(t, sampleRawServices())

	var received [][]byte
	done := make(chan struct{})
	err := c.StartNotify(context.Background(), ByHandle(2), func(handle uint16, data []byte) {
		received = append(received, data)
		if len(received) == 3 {
			close(done)
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conn.deliverNotification(3, []byte{1})
	conn.deliverNotification(3, []byte{2})
	conn.deliverNotification(3, []byte{3})
	waitFor(t, done)

	for i, want := range [][]byte{{1}, {2}, {3}} {
		if string(received[i]) != string(want) {
			t.Errorf("expected notification %d to be %v, got %v", i, want, received[i])
		}
	}
}

func TestStartNotifyRejectsSecondSubscription(t *testing.T) {
	c, _ := connectedClient(t, sampleRawServices())
	cb := func(uint16, []byte) {}
	if err := c.StartNotify(context.Background(), ByHandle(2), cb); err != nil {
		t.Fatalf("unexpected error on first subscribe: %v", err)
	}
	if err := c.StartNotify(context.Background(), ByHandle(2), cb); err == nil {
		t.Fatal("expected an error subscribing a second time to the same handle")
	}
}

func TestStartNotifySelectsIndicateWhenNotifyUnsupported(t *testing.T) {
	raw := []RawService{
		{
			UUID:   New16BitUUID(0x1523),
			Handle: 1,
			Characteristics: []RawCharacteristic{
				{UUID: New16BitUUID(0x1524), Handle: 2, ValueHandle: 3, Properties: CharPropIndicate},
			},
		},
	}
	c, _ := connectedClient(t, raw)
	if err := c.StartNotify(context.Background(), ByHandle(2), func(uint16, []byte) {}); err != nil {
		t.Fatalf("expected indicate-only characteristic to subscribe transparently, got %v", err)
	}
}

func TestStopNotifyWithoutActiveSubscriptionFails(t *testing.T) {
	c, _ := connectedClient(t, sampleRawServices())
	err := c.StopNotify(context.Background(), ByHandle(2))
	if err != ErrNotSubscribed {
		t.Fatalf("expected ErrNotSubscribed, got %v", err)
	}
}

func TestStopNotifyStopsFurtherDelivery(t *testing.T) {
	c, conn := connectedClient(t, sampleRawServices())

	calls := 0
	if err := c.StartNotify(context.Background(), ByHandle(2), func(uint16, []byte) { calls++ }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.StopNotify(context.Background(), ByHandle(2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conn.deliverNotification(3, []byte{1})
	// Give the scheduler a moment to have processed it if it were (wrongly)
	// still subscribed.
	time.Sleep(50 * time.Millisecond)
	if calls != 0 {
		t.Errorf("expected no callback invocations after StopNotify, got %d", calls)
	}
}

func TestOperationOnDisconnectedClientFailsWithNotConnected(t *testing.T) {
	c, _ := connectedClient(t, sampleRawServices())
	if err := c.Disconnect(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := c.ReadGATTChar(context.Background(), ByHandle(4))
	if err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected after Disconnect, got %v", err)
	}
}

func TestResolveCharSpecByObjectAcrossReconnectFails(t *testing.T) {
	c, _ := connectedClient(t, sampleRawServices())
	ch, err := c.AttributeTable().GetCharacteristic(ByHandle(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Connect(context.Background(), testDevice(), ConnectOptions{}); err != nil {
		t.Fatalf("unexpected error reconnecting: %v", err)
	}

	_, err = c.ReadGATTChar(context.Background(), ByCharacteristic(ch))
	if err == nil {
		t.Fatal("expected a *Characteristic captured before a reconnect to fail to resolve against the new table")
	}
}

func TestMTUSizeUpdatesMaxWriteWithoutResponseSize(t *testing.T) {
	c, conn := connectedClient(t, sampleRawServices())
	conn.setMTU(185)

	mtu, err := c.MTUSize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mtu != 185 {
		t.Fatalf("expected MTU 185, got %d", mtu)
	}

	ch, err := c.AttributeTable().GetCharacteristic(ByHandle(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ch.MaxWriteWithoutResponseSize(); got != 182 {
		t.Errorf("expected MaxWriteWithoutResponseSize to reflect the refreshed MTU, got %d", got)
	}
}
