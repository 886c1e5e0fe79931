// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg_test

import (
	"testing"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/taskmsg"
)

func TestLoopCountdown(t *testing.T) {
	protocol := taskmsg.Loop(5, func(n int) kont.Eff[kont.Either[int, string]] {
		if n == 0 {
			return kont.Pure(kont.Right[int, string]("done"))
		}
		return kont.Pure(kont.Left[int, string](n - 1))
	})
	got, err := taskmsg.Exec(protocol)
	if err != nil || got != "done" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestLoopWithEffects(t *testing.T) {
	s := startScheduler(t)
	protocol := taskmsg.Loop(0, func(sum int) kont.Eff[kont.Either[int, int]] {
		return kont.Bind(kont.Perform(newCountdown(2)), func(n int) kont.Eff[kont.Either[int, int]] {
			sum += n
			if sum >= 10 {
				return kont.Pure(kont.Right[int, int](sum))
			}
			return kont.Pure(kont.Left[int, int](sum))
		})
	})
	r := spawnWait(t, s, protocol)
	if v, ok := r.GetRight(); !ok || v != 10 {
		t.Fatalf("got %v, want Right(10)", r)
	}
}

func TestLoopManyIterations(t *testing.T) {
	protocol := taskmsg.Loop(10000, func(n int) kont.Eff[kont.Either[int, int]] {
		if n == 0 {
			return kont.Pure(kont.Right[int, int](0))
		}
		return kont.Pure(kont.Left[int, int](n - 1))
	})
	if _, err := taskmsg.Exec(protocol); err != nil {
		t.Fatalf("Exec: %v", err)
	}
}

func TestDefer(t *testing.T) {
	built := 0
	protocol := taskmsg.Defer(func() kont.Eff[int] {
		built++
		return kont.Pure(built)
	})
	if built != 0 {
		t.Fatal("Defer built the protocol eagerly")
	}
	for want := 1; want <= 2; want++ {
		got, err := taskmsg.Exec(protocol)
		if err != nil || got != want {
			t.Fatalf("run %d: got %d, %v", want, got, err)
		}
	}
}
