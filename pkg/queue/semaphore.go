/*
 * Copyright 2024-2025 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package queue

import (
	"context"
	"math"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Semaphore is the in-process notification counter. The monitor
// advances it for each enqueued record, and the consumer waits on it
// before retrieving the record, which gives bounded waits that the
// blocking GetRequest lacks.
type Semaphore struct {
	sem   *semaphore.Weighted
	count int64
}

// NewSemaphore creates the counter with zero count.
func NewSemaphore() *Semaphore {
	s := &Semaphore{sem: semaphore.NewWeighted(math.MaxInt64)}
	// the whole weight is held up front, so each Add makes n units available
	_ = s.sem.TryAcquire(math.MaxInt64)
	return s
}

// Add advances the counter by n.
func (s *Semaphore) Add(n int) {
	if n <= 0 {
		return
	}
	atomic.AddInt64(&s.count, int64(n))
	s.sem.Release(int64(n))
}

// Wait decrements the counter, blocking while it is zero or until the
// context is done.
func (s *Semaphore) Wait(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	atomic.AddInt64(&s.count, -1)
	return nil
}

// TryWait decrements the counter if it is positive.
func (s *Semaphore) TryWait() bool {
	if !s.sem.TryAcquire(1) {
		return false
	}
	atomic.AddInt64(&s.count, -1)
	return true
}

// Count returns the current counter value.
func (s *Semaphore) Count() int { return int(atomic.LoadInt64(&s.count)) }
