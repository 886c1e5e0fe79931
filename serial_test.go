// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg_test

import (
	"context"
	"sync"
	"testing"

	"code.hybscloud.com/taskmsg"
	"code.hybscloud.com/taskmsg/transport"
)

func TestTaskIDsUnique(t *testing.T) {
	var ids taskmsg.TaskIDs
	const goroutines, per = 8, 1000
	var (
		mu   sync.Mutex
		seen = make(map[uint32]bool, goroutines*per)
		wg   sync.WaitGroup
	)
	for range goroutines {
		wg.Go(func() {
			local := make([]uint32, 0, per)
			prev := uint32(0)
			for range per {
				id := ids.Next()
				if id <= prev {
					t.Errorf("ids not increasing within a goroutine: %d after %d", id, prev)
				}
				prev = id
				local = append(local, id)
			}
			mu.Lock()
			for _, id := range local {
				if seen[id] {
					t.Errorf("duplicate id %d", id)
				}
				seen[id] = true
			}
			mu.Unlock()
		})
	}
	wg.Wait()
	if len(seen) != goroutines*per {
		t.Fatalf("got %d distinct ids, want %d", len(seen), goroutines*per)
	}
	if seen[0] {
		t.Fatal("id 0 was handed out")
	}
}

func TestSessionSerialMonotonic(t *testing.T) {
	skipRace(t)
	s := startScheduler(t)
	m := taskmsg.NewManager(s)
	defer m.Shutdown(context.Background())

	var prev taskmsg.Serial
	for range 3 {
		a, b := transport.Pipe()
		defer b.Close()
		id, err := m.CreateSession(a)
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		if id <= prev {
			t.Fatalf("serials not increasing: %d after %d", id, prev)
		}
		prev = id
	}
	if prev != 3 {
		t.Fatalf("third session id = %d, want 3", prev)
	}
}
