package simulator

import "testing"

func TestSwitchedNetworkSingleMessage(t *testing.T) {
	loop := NewEventLoop()

	switcher := NewGreedyDropSwitcher(2, 2.0)
	node1, node2 := NewNode(), NewNode()
	port1, port2 := node1.Port(loop), node2.Port(loop)
	network := NewSwitcherNetwork(switcher, []*Node{node1, node2}, 3.0)

	loop.Go(func(h *Handle) {
		network.Send(h, &Message{
			Source:  port1,
			Dest:    port2,
			Message: "hi node 2",
			Size:    124.0,
		})
		if val := port1.Recv(h).Message; val != "hi node 1" {
			t.Errorf("unexpected message: %s", val)
		}
	})
	loop.Go(func(h *Handle) {
		network.Send(h, &Message{
			Source:  port2,
			Dest:    port1,
			Message: "hi node 1",
			Size:    124.0,
		})
		if val := port2.Recv(h).Message; val != "hi node 2" {
			t.Errorf("unexpected message: %s", val)
		}
	})

	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}

	expectedTime := 124.0/2.0 + 3.0
	if loop.Time() != expectedTime {
		t.Errorf("time should be %f but got %f", expectedTime, loop.Time())
	}
}

func TestSwitchedNetworkOversubscribed(t *testing.T) {
	loop := NewEventLoop()

	dataRate := 4.0
	switcher := NewGreedyDropSwitcher(2, dataRate)
	node1, node2 := NewNode(), NewNode()
	port1, port2 := node1.Port(loop), node2.Port(loop)
	network := NewSwitcherNetwork(switcher, []*Node{node1, node2}, 2.0)

	loop.Go(func(h *Handle) {
		network.Send(h, &Message{
			Source:  port1,
			Dest:    port2,
			Message: "hi node 2 (message 1)",
			Size:    123.0,
		})
		network.Send(h, &Message{
			Source:  port1,
			Dest:    port2,
			Message: "hi node 2 (message 2)",
			Size:    124.0,
		})
		if val := port1.Recv(h).Message; val != "hi node 1" {
			t.Errorf("unexpected message: %s", val)
		}
		expectedTime := 1.0 + 2.0 + 124.0/dataRate
		if h.Time() != expectedTime {
			t.Errorf("expected time %f but got %f", expectedTime, h.Time())
		}
	})

	loop.Go(func(h *Handle) {
		// Make sure the other messages are in-flight.
		// This helps us test for the fact that we can
		// reschedule a message before the other messages.
		h.Sleep(1)

		network.Send(h, &Message{
			Source:  port2,
			Dest:    port1,
			Message: "hi node 1",
			Size:    124.0,
		})
		if val := port2.Recv(h).Message; val != "hi node 2 (message 1)" {
			t.Errorf("unexpected message: %s", val)
		}
		expectedTime := 2.0 + 2.0*123.0/dataRate
		if h.Time() != expectedTime {
			t.Errorf("expected time %f but got %f", expectedTime, h.Time())
		}
		if val := port2.Recv(h).Message; val != "hi node 2 (message 2)" {
			t.Errorf("unexpected message: %s", val)
		}
		expectedTime += 1.0 / dataRate
		if h.Time() != expectedTime {
			t.Errorf("expected time %f but got %f", expectedTime, h.Time())
		}
	})

	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}

	expectedTime := 2.0 + 2.0*123.0/dataRate + 1.0/dataRate
	if loop.Time() != expectedTime {
		t.Errorf("time should be %f but got %f", expectedTime, loop.Time())
	}

	// Make sure that there are no stray messages.
	for _, port := range []*Port{port1, port2} {
		p := port
		loop.Go(func(h *Handle) {
			h.Poll(p.Incoming)
		})
		if loop.Run() == nil {
			t.Error("expected deadlock error")
		}
	}
}

func TestOrderedNetworkOrder(t *testing.T) {
	loop := NewEventLoopSeed(1337)
	network := NewOrderedNetwork(8.0, 5.0)
	src, dst := NewNode().Port(loop), NewNode().Port(loop)

	const numMessages = 50
	loop.Go(func(h *Handle) {
		for i := 0; i < numMessages; i++ {
			network.Send(h, &Message{Source: src, Dest: dst, Message: i, Size: 8})
		}
	})
	loop.Go(func(h *Handle) {
		for i := 0; i < numMessages; i++ {
			if val := dst.Recv(h).Message; val != i {
				t.Errorf("message %d: got %v", i, val)
			}
		}
	})
	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}
	if loop.Time() < numMessages*1.0 {
		t.Errorf("transfers should queue up, but finished at %f", loop.Time())
	}
}

func TestRandomNetworkLatency(t *testing.T) {
	loop := NewEventLoopSeed(42)
	network := RandomNetwork{MaxLatency: 0.5}
	src, dst := NewNode().Port(loop), NewNode().Port(loop)

	loop.Go(func(h *Handle) {
		for i := 0; i < 20; i++ {
			network.Send(h, &Message{Source: src, Dest: dst, Message: i})
		}
	})
	received := map[interface{}]bool{}
	loop.Go(func(h *Handle) {
		for i := 0; i < 20; i++ {
			received[dst.Recv(h).Message] = true
		}
	})
	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}
	if len(received) != 20 {
		t.Errorf("expected 20 distinct messages but got %d", len(received))
	}
	if loop.Time() >= 0.5 {
		t.Errorf("latency bound exceeded: %f", loop.Time())
	}
}
