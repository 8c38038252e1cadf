package pipeline

import (
	"context"
	"sync"
)

// flight 一次在途作业
type flight struct {
	done chan struct{}
	val  interface{}
	err  error
}

// Registry 在途作业登记表：同一键同一时刻至多一个作业在执行，
// 后到的调用方挂起等待首个作业的结果，而不是重复触发。
type Registry struct {
	mu       sync.Mutex
	inflight map[string]*flight
}

// NewRegistry 创建登记表
func NewRegistry() *Registry {
	return &Registry{
		inflight: make(map[string]*flight),
	}
}

// Do 以key为单位执行fn。若该key已有作业在途则等待其完成并共享结果，
// shared 为 true 表示结果来自他人触发的作业。等待可被ctx取消。
func (r *Registry) Do(ctx context.Context, key string, fn func() (interface{}, error)) (val interface{}, shared bool, err error) {
	r.mu.Lock()
	if f, ok := r.inflight[key]; ok {
		r.mu.Unlock()
		select {
		case <-f.done:
			return f.val, true, f.err
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}

	f := &flight{done: make(chan struct{})}
	r.inflight[key] = f
	r.mu.Unlock()

	f.val, f.err = fn()

	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()
	close(f.done)

	return f.val, false, f.err
}

// InFlight 判断某键是否有在途作业
func (r *Registry) InFlight(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inflight[key]
	return ok
}
