package queue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"postpilot/internal/post"
)

func TestPopDueOrdering(t *testing.T) {
	t.Parallel()
	q := New()
	base := time.Unix(1700000000, 0)

	q.Push(Item{At: base.Add(30 * time.Second), PostID: "c"})
	q.Push(Item{At: base.Add(10 * time.Second), PostID: "a"})
	q.Push(Item{At: base.Add(20 * time.Second), PostID: "b"})

	now := base.Add(time.Minute)
	var got []string
	for {
		it, ok := q.PopDue(now)
		if !ok {
			break
		}
		got = append(got, it.PostID)
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("popped %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("popped %v, want %v", got, want)
		}
	}
}

func TestPopDueNeverEarly(t *testing.T) {
	t.Parallel()
	q := New()
	base := time.Unix(1700000000, 0)
	q.Push(Item{At: base.Add(time.Hour), PostID: "later"})

	if it, ok := q.PopDue(base); ok {
		t.Fatalf("PopDue returned %q before due time", it.PostID)
	}
	if q.Len() != 1 {
		t.Fatalf("Len = %d after failed pop, want 1", q.Len())
	}

	it, ok := q.PopDue(base.Add(time.Hour))
	if !ok || it.PostID != "later" {
		t.Fatalf("PopDue at due time = %+v, %v", it, ok)
	}
}

func TestPopDueExactlyAtDueTime(t *testing.T) {
	t.Parallel()
	q := New()
	at := time.Unix(1700000000, 0)
	q.Push(Item{At: at, PostID: "x"})

	if _, ok := q.PopDue(at); !ok {
		t.Fatal("item due exactly at now should pop")
	}
}

func TestTiesPopExactlyOnce(t *testing.T) {
	t.Parallel()
	q := New()
	at := time.Unix(1700000000, 0)
	for i := 0; i < 10; i++ {
		q.Push(Item{At: at, PostID: fmt.Sprintf("p%d", i)})
	}

	seen := make(map[string]bool)
	for {
		it, ok := q.PopDue(at)
		if !ok {
			break
		}
		if seen[it.PostID] {
			t.Fatalf("item %q popped twice", it.PostID)
		}
		seen[it.PostID] = true
	}
	if len(seen) != 10 {
		t.Fatalf("popped %d distinct items, want 10", len(seen))
	}
}

func TestConcurrentPushPop(t *testing.T) {
	t.Parallel()
	q := New()
	base := time.Unix(1700000000, 0)

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Push(Item{At: base.Add(time.Duration(i) * time.Millisecond), PostID: fmt.Sprintf("p%d", i), Platform: post.Twitter})
		}()
	}

	var mu sync.Mutex
	popped := make(map[string]int)
	var pwg sync.WaitGroup
	for w := 0; w < 4; w++ {
		pwg.Add(1)
		go func() {
			defer pwg.Done()
			for {
				it, ok := q.PopDue(base.Add(time.Hour))
				if !ok {
					return
				}
				mu.Lock()
				popped[it.PostID]++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	pwg.Wait()

	// Poppers may have finished before the last pushes; sweep the rest.
	for {
		it, ok := q.PopDue(base.Add(time.Hour))
		if !ok {
			break
		}
		popped[it.PostID]++
	}

	if len(popped) != n {
		t.Fatalf("popped %d distinct items, want %d", len(popped), n)
	}
	for id, c := range popped {
		if c != 1 {
			t.Fatalf("item %s popped %d times", id, c)
		}
	}
}

func TestDrain(t *testing.T) {
	t.Parallel()
	q := New()
	base := time.Unix(1700000000, 0)
	q.Push(Item{At: base.Add(2 * time.Second), PostID: "b"})
	q.Push(Item{At: base.Add(1 * time.Second), PostID: "a"})

	items := q.Drain()
	if len(items) != 2 || items[0].PostID != "a" || items[1].PostID != "b" {
		t.Fatalf("Drain = %+v", items)
	}
	if q.Len() != 0 {
		t.Fatalf("Len after Drain = %d", q.Len())
	}
}
