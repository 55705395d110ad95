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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is wrapped by Lock when another holder owns the key.
var ErrLockHeld = errors.New("lock already held")

// Mutex is a non-blocking, expiring lock on one key.
type Mutex interface {
	Lock(ctx context.Context, timeout time.Duration) error
	Unlock(ctx context.Context) error
}

// Provider hands out a fresh Mutex for a key; each Mutex carries its own holder token.
type Provider interface {
	NewMutex(key string) Mutex
}

// NewProvider returns a Redis provider when a client is configured and a
// process local one otherwise.
func NewProvider(client redis.UniversalClient) Provider {
	if client == nil {
		return NewKeyedMutex()
	}
	return RedisProvider{client: client}
}

type RedisProvider struct {
	client redis.UniversalClient
}

func (p RedisProvider) NewMutex(key string) Mutex {
	return NewLocker(p.client, key, uuid.NewString())
}

// Locker is a Redis lock taken with SET NX and released only by its holder.
type Locker struct {
	client redis.UniversalClient
	key    string
	value  string // Used for ensuring that only the lock holder can unlock the lock
}

func NewLocker(client redis.UniversalClient, key, value string) *Locker {
	return &Locker{
		client: client,
		key:    key,
		value:  value,
	}
}

func (l *Locker) Lock(ctx context.Context, timeout time.Duration) error {
	success, err := l.client.SetNX(ctx, l.key, l.value, timeout).Result()
	if err != nil {
		return err
	}
	if !success {
		return fmt.Errorf("lock for key %s: %w", l.key, ErrLockHeld)
	}
	return nil
}

const unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"

func (l *Locker) Unlock(ctx context.Context) error {
	result, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("unlock failed, either lock expired or you're not the lock holder for key %s", l.key)
	}
	return nil
}

// KeyedMutex is the single-process Provider used when Redis is not configured.
type KeyedMutex struct {
	mu   sync.Mutex
	held map[string]heldLock
}

type heldLock struct {
	token   string
	expires time.Time
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{held: make(map[string]heldLock)}
}

func (k *KeyedMutex) NewMutex(key string) Mutex {
	return &localMutex{owner: k, key: key, token: uuid.NewString()}
}

func (k *KeyedMutex) acquire(key, token string, timeout time.Duration) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := time.Now()
	if h, ok := k.held[key]; ok && now.Before(h.expires) {
		return false
	}
	k.held[key] = heldLock{token: token, expires: now.Add(timeout)}
	return true
}

func (k *KeyedMutex) release(key, token string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	h, ok := k.held[key]
	if !ok || h.token != token {
		return false
	}
	delete(k.held, key)
	return true
}

type localMutex struct {
	owner *KeyedMutex
	key   string
	token string
}

func (m *localMutex) Lock(_ context.Context, timeout time.Duration) error {
	if !m.owner.acquire(m.key, m.token, timeout) {
		return fmt.Errorf("lock for key %s: %w", m.key, ErrLockHeld)
	}
	return nil
}

func (m *localMutex) Unlock(_ context.Context) error {
	if !m.owner.release(m.key, m.token) {
		return fmt.Errorf("unlock failed, either lock expired or you're not the lock holder for key %s", m.key)
	}
	return nil
}
