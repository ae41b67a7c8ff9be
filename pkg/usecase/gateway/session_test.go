package gateway_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/chack/pkg/usecase/gateway"
	"github.com/m-mizutani/gt"
)

func TestSessionRegistryReturnsSameSession(t *testing.T) {
	registry := gateway.NewSessionRegistry()
	key := model.ConversationKey{Platform: "test", ChatID: "c1"}

	s1 := registry.Get(key)
	s2 := registry.Get(key)
	gt.True(t, s1 == s2)
	gt.Equal(t, registry.Len(), 1)

	s3 := registry.Get(model.ConversationKey{Platform: "test", ChatID: "c2"})
	gt.True(t, s1 != s3)
	gt.Equal(t, registry.Len(), 2)
}

func TestTicketsGrantInEnqueueOrder(t *testing.T) {
	sess := gateway.NewSessionRegistry().Get(model.ConversationKey{Platform: "test", ChatID: "c1"})

	t1 := sess.Enqueue()
	t2 := sess.Enqueue()
	t3 := sess.Enqueue()

	ctx := context.Background()
	var order []int
	var mu sync.Mutex
	record := func(n int) {
		mu.Lock()
		order = append(order, n)
		mu.Unlock()
	}

	gt.NoError(t, t1.Wait(ctx))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		gt.NoError(t, t2.Wait(ctx))
		record(2)
		sess.Release()
	}()
	go func() {
		defer wg.Done()
		gt.NoError(t, t3.Wait(ctx))
		record(3)
		sess.Release()
	}()

	// Let both waiters block before releasing the first grant.
	time.Sleep(10 * time.Millisecond)
	record(1)
	sess.Release()
	wg.Wait()

	gt.A(t, order).Length(3)
	gt.Equal(t, order, []int{1, 2, 3})
}

func TestTicketWaitCancelledWhileQueued(t *testing.T) {
	sess := gateway.NewSessionRegistry().Get(model.ConversationKey{Platform: "test", ChatID: "c1"})

	t1 := sess.Enqueue()
	t2 := sess.Enqueue()
	t3 := sess.Enqueue()

	gt.NoError(t, t1.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gt.Error(t, t2.Wait(ctx))

	// The cancelled claim is out of the queue: the next release reaches t3.
	sess.Release()
	gt.NoError(t, t3.Wait(context.Background()))
	sess.Release()
}

func TestTicketGrantedConcurrentlyWithCancelIsPassedOn(t *testing.T) {
	sess := gateway.NewSessionRegistry().Get(model.ConversationKey{Platform: "test", ChatID: "c1"})

	t1 := sess.Enqueue()
	gt.NoError(t, t1.Wait(context.Background()))

	t2 := sess.Enqueue()
	sess.Release() // grant t2 before it waits

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// t2 may see the grant or the cancellation first. Either way the session
	// must not leak: on cancellation the held grant is handed over.
	if err := t2.Wait(ctx); err == nil {
		sess.Release()
	}

	t3 := sess.Enqueue()
	gt.NoError(t, t3.Wait(context.Background()))
	sess.Release()
}
