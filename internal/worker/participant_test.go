package worker

import (
	"context"
	"testing"

	"github.com/streamdesk/server/internal/protocol"
	"github.com/streamdesk/server/internal/session"
)

func TestParticipantWorkerForwardsControlWhenController(t *testing.T) {
	hostSrv, hostClient := pairedChannels(t)
	partSrv, partClient := pairedChannels(t)

	sess, _, code := hostSession(t, hostSrv)
	decision := sess.RequestJoin("bob", session.Connection{Channel: partSrv})

	// Admit bob directly (bypassing the host-side notification plumbing,
	// which is covered by the host worker's own tests) and promote to
	// controller so ControlPacket forwarding has somewhere to land.
	replayDone := make(chan struct{})
	go func() {
		defer close(replayDone)
		_, _ = partClient.ReceiveResult()
		_, _ = partClient.Receive()
	}()
	if _, _, ok := sess.Admit("bob"); !ok {
		t.Fatal("Admit failed")
	}
	<-replayDone
	select {
	case <-decision:
	default:
	}
	sess.SetRole("bob", protocol.RoleController)

	errc := make(chan error, 1)
	go func() {
		errc <- ParticipantWorker(context.Background(), partClient, sess, code, "bob", nil)
	}()

	if err := partClient.Send(protocol.ControlPacket{Payload: protocol.MouseMove{X: 10, Y: 20}}); err != nil {
		t.Fatalf("Send Control: %v", err)
	}

	got, err := hostClient.Receive()
	if err != nil {
		t.Fatalf("host Receive: %v", err)
	}
	if _, ok := got.(protocol.ControlPacket); !ok {
		t.Fatalf("host got %T, want ControlPacket", got)
	}

	if err := partClient.Send(protocol.SessionExitPacket{}); err != nil {
		t.Fatalf("Send SessionExit: %v", err)
	}
	ack, err := partClient.Receive()
	if err != nil {
		t.Fatalf("Receive ack: %v", err)
	}
	if _, ok := ack.(protocol.SessionExitPacket); !ok {
		t.Fatalf("ack = %T, want SessionExitPacket", ack)
	}

	if err := <-errc; err != nil {
		t.Fatalf("ParticipantWorker returned error: %v", err)
	}

	if _, ok := sess.Get("bob"); ok {
		t.Fatal("expected bob removed from session after SessionExit")
	}
}

func TestParticipantWorkerDeniesRequestControlWhenNotParticipant(t *testing.T) {
	hostSrv, _ := pairedChannels(t)
	partSrv, partClient := pairedChannels(t)

	sess, _, code := hostSession(t, hostSrv)
	sess.RequestJoin("bob", session.Connection{Channel: partSrv})
	// bob stays RoleUnready (pending), never admitted: RequestControl
	// should be refused locally rather than forwarded to the host.

	errc := make(chan error, 1)
	go func() {
		errc <- ParticipantWorker(context.Background(), partClient, sess, code, "bob", nil)
	}()

	if err := partClient.Send(protocol.RequestControlPacket{Username: "bob"}); err != nil {
		t.Fatalf("Send RequestControl: %v", err)
	}

	got, err := partClient.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if _, ok := got.(protocol.DenyControlPacket); !ok {
		t.Fatalf("got %T, want local DenyControlPacket", got)
	}

	partClient.Close()
	<-errc
}

func TestParticipantWorkerRemovesAndBroadcastsOnReceiveError(t *testing.T) {
	hostSrv, hostClient := pairedChannels(t)
	partSrv, partClient := pairedChannels(t)

	sess, _, code := hostSession(t, hostSrv)
	replayDone := make(chan struct{})
	go func() {
		defer close(replayDone)
		_, _ = partClient.ReceiveResult()
		_, _ = partClient.Receive()
	}()
	sess.RequestJoin("bob", session.Connection{Channel: partSrv})
	if _, _, ok := sess.Admit("bob"); !ok {
		t.Fatal("Admit failed")
	}
	<-replayDone

	errc := make(chan error, 1)
	go func() {
		errc <- ParticipantWorker(context.Background(), partClient, sess, code, "bob", nil)
	}()

	leftDone := make(chan struct{})
	go func() {
		defer close(leftDone)
		got, err := hostClient.Receive()
		if err != nil {
			return
		}
		if u, ok := got.(protocol.UserUpdatePacket); !ok || u.Role != protocol.RoleLeaving {
			t.Errorf("host got %#v, want RoleLeaving UserUpdate", got)
		}
	}()

	partClient.Close()
	<-errc
	<-leftDone

	if _, ok := sess.Get("bob"); ok {
		t.Fatal("expected bob removed after the connection dropped")
	}
}
