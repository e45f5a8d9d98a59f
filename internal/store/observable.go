package store

import (
	"slices"
	"sync"

	"todoapp/internal/pkg/metrics"
)

type stampedState[S any] struct {
	seq   uint64
	state S
}

// observers 保存订阅者，在状态迁移完成后通知。
//
// 每个快照在 store 写锁内通过 stamp 取得序号，投递严格按序号递增：
// 同一时刻只有一个 goroutine 在投递，其间到达的快照只保留最新一个，
// 序号落后于已投递快照的直接丢弃。因此订阅者最后收到的总是最新状态。
type observers[S any] struct {
	name string

	mu         sync.Mutex
	next       int
	subs       map[int]func(S)
	seq        uint64
	delivered  uint64
	pending    *stampedState[S]
	delivering bool
}

func newObservers[S any](name string) *observers[S] {
	return &observers[S]{name: name, subs: make(map[int]func(S))}
}

// subscribe 注册回调并返回取消函数，取消函数可重复调用。
func (o *observers[S]) subscribe(fn func(S)) func() {
	o.mu.Lock()
	id := o.next
	o.next++
	o.subs[id] = fn
	metrics.SubscribersGauge.WithLabelValues(o.name).Set(float64(len(o.subs)))
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			metrics.SubscribersGauge.WithLabelValues(o.name).Set(float64(len(o.subs)))
			o.mu.Unlock()
		})
	}
}

// stamp 分配下一个序号。调用方必须持有 store 写锁，保证序号顺序与状态迁移顺序一致。
func (o *observers[S]) stamp() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	return o.seq
}

// notify 投递快照。调用时不得持有 store 锁。
//
// 若已有 goroutine 在投递，本次快照交给它处理后立即返回；
// 回调内再次修改 store 也不会死锁。
func (o *observers[S]) notify(seq uint64, state S) {
	o.mu.Lock()
	if seq <= o.delivered || (o.pending != nil && seq <= o.pending.seq) {
		o.mu.Unlock()
		return
	}
	o.pending = &stampedState[S]{seq: seq, state: state}
	if o.delivering {
		o.mu.Unlock()
		return
	}
	o.delivering = true
	o.mu.Unlock()

	finished := false
	defer func() {
		if !finished {
			o.mu.Lock()
			o.delivering = false
			o.mu.Unlock()
		}
	}()

	for {
		o.mu.Lock()
		p := o.pending
		if p == nil {
			o.delivering = false
			o.mu.Unlock()
			finished = true
			return
		}
		o.pending = nil
		o.delivered = p.seq
		fns := o.listenersLocked()
		o.mu.Unlock()

		for _, fn := range fns {
			fn(p.state)
		}
	}
}

// listenersLocked 按注册顺序返回订阅者。
func (o *observers[S]) listenersLocked() []func(S) {
	ids := make([]int, 0, len(o.subs))
	for id := range o.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(S), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, o.subs[id])
	}
	return fns
}
