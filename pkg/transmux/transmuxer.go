// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package transmux

import (
	"sync"
	"time"

	"github.com/q191201771/lalfmp4/pkg/amf0"
	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/naza/pkg/nazaatomic"
)

// Transmuxer 对Controller的异步封装
//
// 内部有两个协程：
// 1. loop协程，串行执行所有命令（Start、Seek等）以及字节源的回调，Controller只在这个协程中被访问
// 2. dispatch协程，按产生的顺序回调ITransmuxingObserver以及写入ISink
//
// 所有方法都是协程安全的，并且不会等待命令执行完成，可以在ITransmuxingObserver的回调中调用
type Transmuxer struct {
	uniqueKey  string
	config     Config
	observer   ITransmuxingObserver
	controller *Controller
	sinkQueue  *SinkQueue

	taskChan chan func()
	events   eventQueue
	done     chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	disposed  nazaatomic.Bool
	wg        sync.WaitGroup
}

func NewTransmuxer(mds MediaDataSource, observer ITransmuxingObserver, modOptions ...ModConfigOption) (*Transmuxer, error) {
	if observer == nil {
		return nil, base.ErrNilObserver
	}
	config := NewConfig(modOptions...)

	t := &Transmuxer{
		uniqueKey: base.GenUkTransmuxer(),
		config:    config,
		observer:  observer,
		taskChan:  make(chan func(), 64),
		events:    eventQueue{notify: make(chan struct{}, 1)},
		done:      make(chan struct{}),
	}
	controller, err := NewController(mds, config, &eventObserver{t: t}, func(option *ControllerOption) {
		option.Executor = t.execute
	})
	if err != nil {
		return nil, err
	}
	t.controller = controller
	Log.Infof("[%s] lifecycle new transmuxer. controller=%s", t.uniqueKey, controller.UniqueKey())
	return t, nil
}

// WithSink 设置后init segment以及media segment会写入sink，sink忙时由内部的SinkQueue缓存
//
// 需要在Start之前调用
func (t *Transmuxer) WithSink(sink ISink) *Transmuxer {
	if sq, err := NewSinkQueue(sink); err == nil {
		t.sinkQueue = sq
	}
	return t
}

func (t *Transmuxer) UniqueKey() string {
	return t.uniqueKey
}

func (t *Transmuxer) Start() error {
	if t.disposed.Load() {
		return base.ErrTransmuxerDisposed
	}
	t.startOnce.Do(func() {
		t.wg.Add(2)
		go t.runLoop()
		go t.runDispatcher()
	})
	return t.post(t.controller.Start)
}

// Stop 可重复调用。不等待字节源的协程退出，未回调的事件以及SinkQueue中的数据被丢弃
func (t *Transmuxer) Stop() {
	t.stopOnce.Do(func() {
		Log.Infof("[%s] lifecycle dispose transmuxer.", t.uniqueKey)
		t.disposed.Store(true)

		started := true
		t.startOnce.Do(func() {
			started = false
		})
		close(t.done)
		if !started {
			t.controller.Dispose()
		}
	})
}

// Wait 等待内部协程退出，不能在ITransmuxingObserver的回调中调用
func (t *Transmuxer) Wait() {
	t.wg.Wait()
}

func (t *Transmuxer) Pause() error {
	return t.post(t.controller.Pause)
}

func (t *Transmuxer) Resume() error {
	return t.post(t.controller.Resume)
}

// Seek 单位毫秒。SinkQueue中还没有发送给sink的media segment被丢弃
func (t *Transmuxer) Seek(ms int64) error {
	return t.post(func() {
		// 在seek产生的新segment之前入队，只影响seek之前的数据
		t.events.push(func() {
			if t.sinkQueue != nil {
				t.sinkQueue.DropMediaSegments()
			}
		})
		t.controller.Seek(ms)
	})
}

// NotifySinkReady 见ISink
func (t *Transmuxer) NotifySinkReady(typ base.TrackType) error {
	return t.post(func() {
		t.events.push(func() {
			if t.sinkQueue == nil {
				return
			}
			if err := t.sinkQueue.NotifySinkReady(typ); err != nil {
				Log.Errorf("[%s] append to sink failed. type=%s, err=%+v", t.uniqueKey, typ, err)
			}
		})
	})
}

// ---------------------------------------------------------------------------------------------------------------------

func (t *Transmuxer) post(task func()) error {
	if t.disposed.Load() {
		return base.ErrTransmuxerDisposed
	}
	select {
	case t.taskChan <- task:
		return nil
	case <-t.done:
		return base.ErrTransmuxerDisposed
	}
}

// execute 作为字节源回调的Executor，字节源的协程阻塞直到回调在loop协程中执行完成
func (t *Transmuxer) execute(task func()) bool {
	finished := make(chan struct{})
	wrapped := func() {
		task()
		close(finished)
	}
	select {
	case t.taskChan <- wrapped:
	case <-t.done:
		return false
	}
	select {
	case <-finished:
		return true
	case <-t.done:
		return false
	}
}

func (t *Transmuxer) runLoop() {
	defer t.wg.Done()

	interval := t.config.StatisticsInfoReportIntervalMs
	if interval <= 0 {
		interval = defaultConfig.StatisticsInfoReportIntervalMs
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case task := <-t.taskChan:
			task()
		case <-t.done:
			// Controller只在loop协程中访问，所以在这里释放
			t.controller.Dispose()
			Log.Debugf("[%s] loop exit.", t.uniqueKey)
			return
		case <-ticker.C:
			if t.controller.IsStatisticsEnabled() {
				t.controller.ReportStatisticsInfo()
			}
		}
	}
}

func (t *Transmuxer) runDispatcher() {
	defer t.wg.Done()

	for {
		select {
		case <-t.done:
			return
		case <-t.events.notify:
			for _, ev := range t.events.popAll() {
				if t.disposed.Load() {
					return
				}
				ev()
			}
		}
	}
}

func (t *Transmuxer) appendToSink(typ base.TrackType, fn func(sq *SinkQueue) error) {
	if t.sinkQueue == nil {
		return
	}
	if err := fn(t.sinkQueue); err != nil {
		Log.Errorf("[%s] append to sink failed. type=%s, err=%+v", t.uniqueKey, typ, err)
	}
}

// ---------------------------------------------------------------------------------------------------------------------

// eventQueue 无上限的FIFO，loop协程写入事件时不会被使用方的回调阻塞
type eventQueue struct {
	mu     sync.Mutex
	events []func()
	notify chan struct{}
}

func (q *eventQueue) push(ev func()) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *eventQueue) popAll() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	evs := q.events
	q.events = nil
	return evs
}

// eventObserver 在loop协程中被Controller回调，把事件转交给dispatch协程
type eventObserver struct {
	t *Transmuxer
}

func (o *eventObserver) OnIoError(err *base.IoError) {
	o.t.events.push(func() {
		o.t.observer.OnIoError(err)
	})
}

func (o *eventObserver) OnDemuxError(err *base.DemuxError) {
	o.t.events.push(func() {
		o.t.observer.OnDemuxError(err)
	})
}

func (o *eventObserver) OnInitSegment(seg base.InitSegment) {
	o.t.events.push(func() {
		o.t.appendToSink(seg.Type, func(sq *SinkQueue) error {
			return sq.AppendInitSegment(seg)
		})
		o.t.observer.OnInitSegment(seg)
	})
}

func (o *eventObserver) OnMediaSegment(seg base.MediaSegment) {
	o.t.events.push(func() {
		o.t.appendToSink(seg.Type, func(sq *SinkQueue) error {
			return sq.AppendMediaSegment(seg)
		})
		o.t.observer.OnMediaSegment(seg)
	})
}

func (o *eventObserver) OnLoadingComplete() {
	o.t.events.push(o.t.observer.OnLoadingComplete)
}

func (o *eventObserver) OnRecoveredEarlyEof() {
	o.t.events.push(o.t.observer.OnRecoveredEarlyEof)
}

func (o *eventObserver) OnMediaInfo(mi base.MediaInfo) {
	o.t.events.push(func() {
		o.t.observer.OnMediaInfo(mi)
	})
}

func (o *eventObserver) OnMetadataArrived(metadata amf0.ObjectPairArray) {
	o.t.events.push(func() {
		o.t.observer.OnMetadataArrived(metadata)
	})
}

func (o *eventObserver) OnScriptDataArrived(name string, value interface{}) {
	o.t.events.push(func() {
		o.t.observer.OnScriptDataArrived(name, value)
	})
}

func (o *eventObserver) OnStatisticsInfo(info StatisticsInfo) {
	o.t.events.push(func() {
		o.t.observer.OnStatisticsInfo(info)
	})
}

func (o *eventObserver) OnRecommendSeekpoint(ms int64) {
	o.t.events.push(func() {
		o.t.observer.OnRecommendSeekpoint(ms)
	})
}
