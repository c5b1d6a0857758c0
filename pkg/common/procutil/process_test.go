// Copyright The TrustTunnel Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package procutil

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestFindChildProcesses(t *testing.T) {
	processes := []*Process{
		{PID: 2, PPID: 1, Name: "a"},
		{PID: 3, PPID: 2, Name: "b"},
		{PID: 4, PPID: 2, Name: "c"},
		{PID: 5, PPID: 3, Name: "d"},
		{PID: 6, PPID: 99, Name: "e"},
	}

	got := FindChildProcesses(1, processes)

	want := map[int]bool{2: true, 3: true, 4: true, 5: true}
	if len(got) != len(want) {
		t.Fatalf("FindChildProcesses() = %v, want pids %v", got, want)
	}

	for _, pid := range got {
		if !want[pid] {
			t.Errorf("unexpected pid %d in result", pid)
		}
	}
}

func TestReverseSlice(t *testing.T) {
	s := []int{1, 2, 3, 4}
	ReverseSlice(s)

	want := []int{4, 3, 2, 1}
	if !reflect.DeepEqual(s, want) {
		t.Errorf("ReverseSlice() = %v, want %v", s, want)
	}
}

func TestContains(t *testing.T) {
	s := []string{"a", "b", "c"}

	if !Contains(s, "b") {
		t.Errorf("Contains(%v, %q) = false, want true", s, "b")
	}

	if Contains(s, "z") {
		t.Errorf("Contains(%v, %q) = true, want false", s, "z")
	}
}

func TestRunZombieReaperStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunZombieReaper(ctx, time.Millisecond)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunZombieReaper did not stop after cancellation")
	}
}
