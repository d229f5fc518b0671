package buffer

import (
	"sync"
	"testing"
)

func TestPushPopOrder(t *testing.T) {
	q := NewQueue[int](2)
	for i := 0; i < 10; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) = false", i)
		}
	}
	for i := 0; i < 10; i++ {
		v, ok := q.TryPop()
		if !ok || v != i {
			t.Fatalf("TryPop() = %v,%v, want %d,true", v, ok, i)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("TryPop on empty queue returned true")
	}
}

func TestGrowPreservesWrappedItems(t *testing.T) {
	q := NewQueue[int](4)
	// Wrap the ring: fill, drain half, refill past the old capacity.
	for i := 0; i < 4; i++ {
		q.Push(i)
	}
	q.TryPop()
	q.TryPop()
	for i := 4; i < 10; i++ {
		q.Push(i)
	}

	want := []int{2, 3, 4, 5, 6, 7, 8, 9}
	for _, w := range want {
		v, ok := q.TryPop()
		if !ok || v != w {
			t.Fatalf("TryPop() = %v,%v, want %d,true", v, ok, w)
		}
	}
	if q.Stats().Resizes == 0 {
		t.Error("expected at least one resize")
	}
}

func TestCloseDrains(t *testing.T) {
	q := NewQueue[string](4)
	q.Push("a")
	q.Push("b")
	q.Close()

	if q.Push("c") {
		t.Error("Push after Close returned true")
	}

	if v, ok := q.Pop(); !ok || v != "a" {
		t.Errorf("Pop() = %v,%v, want a,true", v, ok)
	}
	if v, ok := q.Pop(); !ok || v != "b" {
		t.Errorf("Pop() = %v,%v, want b,true", v, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop on closed drained queue returned true")
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := NewQueue[int](1)

	got := make(chan int)
	go func() {
		v, _ := q.Pop()
		got <- v
	}()

	q.Push(42)
	if v := <-got; v != 42 {
		t.Errorf("Pop() = %d, want 42", v)
	}
}

func TestConcurrentProducers(t *testing.T) {
	q := NewQueue[int](8)

	const producers, per = 8, 100
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()
	q.Close()

	count := 0
	for {
		if _, ok := q.Pop(); !ok {
			break
		}
		count++
	}
	if count != producers*per {
		t.Errorf("drained %d items, want %d", count, producers*per)
	}
}
