/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package redlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func TestLocker_Lock_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "sync:frm_1", "holder-1")

	mock.ExpectSetNX("sync:frm_1", "holder-1", 30*time.Second).SetVal(true)

	err := locker.Lock(context.Background(), 30*time.Second)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Lock_Held(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "sync:frm_1", "holder-2")

	mock.ExpectSetNX("sync:frm_1", "holder-2", 30*time.Second).SetVal(false)

	err := locker.Lock(context.Background(), 30*time.Second)
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.EqualError(t, err, "lock for key sync:frm_1: lock already held")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Unlock_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "sync:frm_1", "holder-1")

	mock.ExpectEval(unlockScript, []string{"sync:frm_1"}, "holder-1").SetVal(int64(1))

	err := locker.Unlock(context.Background())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Unlock_NotHolder(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "sync:frm_1", "holder-2")

	// Simulate a failed unlock (either lock expired or not the lock holder)
	mock.ExpectEval(unlockScript, []string{"sync:frm_1"}, "holder-2").SetVal(int64(0))

	err := locker.Unlock(context.Background())
	assert.EqualError(t, err, "unlock failed, either lock expired or you're not the lock holder for key sync:frm_1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewProvider(t *testing.T) {
	assert.IsType(t, &KeyedMutex{}, NewProvider(nil))

	db, _ := redismock.NewClientMock()
	p := NewProvider(db)
	assert.IsType(t, RedisProvider{}, p)
	assert.IsType(t, &Locker{}, p.NewMutex("sync:frm_1"))
}

func TestKeyedMutex_Exclusive(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	first := k.NewMutex("sync:frm_1")
	second := k.NewMutex("sync:frm_1")
	other := k.NewMutex("sync:frm_2")

	assert.NoError(t, first.Lock(ctx, time.Minute))
	assert.ErrorIs(t, second.Lock(ctx, time.Minute), ErrLockHeld)
	assert.NoError(t, other.Lock(ctx, time.Minute))

	assert.Error(t, second.Unlock(ctx))
	assert.NoError(t, first.Unlock(ctx))
	assert.NoError(t, second.Lock(ctx, time.Minute))
}

func TestKeyedMutex_Expires(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	assert.NoError(t, k.NewMutex("sync:frm_1").Lock(ctx, 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, k.NewMutex("sync:frm_1").Lock(ctx, time.Minute))
}

func TestKeyedMutex_SingleWinner(t *testing.T) {
	k := NewKeyedMutex()
	var wins int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if k.NewMutex("sync:frm_1").Lock(context.Background(), time.Minute) == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}
