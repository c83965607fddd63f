package keyedmutex

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestAcquireSerializesSameName(t *testing.T) {
	k := New()
	release := k.Acquire("build")

	done := make(chan struct{})
	go func() {
		release2 := k.Acquire("build")
		release2()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Acquire of the same name returned before the first was released")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	<-done
}

func TestAcquireDistinctNamesDoNotBlock(t *testing.T) {
	k := New()
	releaseA := k.Acquire("a")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB := k.Acquire("b")
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("distinct mutex names should not block each other")
	}
}

func TestAcquireEmptyNameIsNoOp(t *testing.T) {
	k := New()
	release1 := k.Acquire("")
	release2 := k.Acquire("")
	assert.Assert(t, release1 != nil)
	assert.Assert(t, release2 != nil)
	release1()
	release2()
}
