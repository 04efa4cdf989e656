// Package memory keeps key-value data in process memory. Nothing survives a
// restart.
package memory

import (
	"context"
	"sync"
)

type KV struct {
	m sync.Map
}

func NewKV() *KV {
	return &KV{}
}

func (r *KV) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := r.m.Load(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (r *KV) Set(_ context.Context, key, value string) error {
	r.m.Store(key, value)
	return nil
}

func (r *KV) Delete(_ context.Context, key string) error {
	r.m.Delete(key)
	return nil
}

// Keys returns every stored key in no particular order.
func (r *KV) Keys(context.Context) ([]string, error) {
	var keys []string
	r.m.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	return keys, nil
}
