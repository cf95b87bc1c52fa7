// Copyright 2025 The Daemonet Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daemon

import "sync"

// Latch is a single-writer, many-reader shutdown signal. Once set it
// stays set; there is no reset. The signal handler is the intended
// writer and the service body's run loop the reader, either by polling
// IsSet or by selecting on Done.
type Latch struct {
	once sync.Once
	ch   chan struct{}
}

// NewLatch returns an unset latch.
func NewLatch() *Latch {
	return &Latch{ch: make(chan struct{})}
}

// Set trips the latch. Safe to call from multiple goroutines and from
// repeated signal deliveries; only the first call has any effect.
func (l *Latch) Set() {
	l.once.Do(func() { close(l.ch) })
}

// IsSet reports whether the latch has been tripped.
func (l *Latch) IsSet() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the latch is set.
func (l *Latch) Done() <-chan struct{} {
	return l.ch
}
