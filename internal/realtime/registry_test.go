package realtime

import (
	"sync"
	"testing"
)

func TestRegistry_BindJoinRemove(t *testing.T) {
	r := NewRegistry()
	a1, a2, b := &Client{ID: "a1"}, &Client{ID: "a2"}, &Client{ID: "b"}

	r.Bind(a1, 1)
	r.Bind(a2, 1)
	r.Bind(b, 2)
	r.Join(a1, "community")
	r.Join(b, "community")

	if got := len(r.UserClients(1)); got != 2 {
		t.Fatalf("user 1 connections = %d, want 2", got)
	}
	if got := len(r.RoomClients("community")); got != 2 {
		t.Fatalf("room size = %d, want 2", got)
	}
	if r.Online() != 2 {
		t.Fatalf("online = %d, want 2", r.Online())
	}

	r.Remove(a1)
	if got := len(r.UserClients(1)); got != 1 {
		t.Fatalf("user 1 connections after remove = %d, want 1", got)
	}
	r.Remove(a2)
	r.Remove(b)
	if r.Online() != 0 || len(r.RoomClients("community")) != 0 {
		t.Fatalf("registry not empty after removing everyone")
	}
	if len(r.users) != 0 || len(r.rooms) != 0 {
		t.Fatalf("empty sets were not deleted")
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			c := &Client{}
			r.Bind(c, id%5)
			r.Join(c, "community")
			_ = r.RoomClients("community")
			r.Remove(c)
		}(uint(i))
	}
	wg.Wait()
	if r.Online() != 0 {
		t.Fatalf("online = %d after all removed", r.Online())
	}
}
