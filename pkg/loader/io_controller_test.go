// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package loader

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/naza/pkg/assert"
)

type fakeSource struct {
	ds       DataSource
	r        Range
	observer IByteSourceObserver
	working  bool
	aborted  bool
	openErr  error
}

func (s *fakeSource) Open(ds DataSource, r Range) error {
	if s.openErr != nil {
		return s.openErr
	}
	s.ds = ds
	s.r = r
	s.working = true
	return nil
}

func (s *fakeSource) Abort() {
	s.working = false
	s.aborted = true
}

func (s *fakeSource) IsWorking() bool {
	return s.working
}

func (s *fakeSource) Type() string {
	return "fake"
}

func (s *fakeSource) feed(from int64, n int) {
	s.observer.OnDataArrival(makeBytes(from, n), from, int64(n))
}

type fakeSourceFactory struct {
	sources []*fakeSource
	openErr error
}

func (f *fakeSourceFactory) create(ds DataSource, config SourceConfig, observer IByteSourceObserver) (IByteSource, error) {
	s := &fakeSource{observer: observer, openErr: f.openErr}
	f.sources = append(f.sources, s)
	return s, nil
}

func (f *fakeSourceFactory) last() *fakeSource {
	return f.sources[len(f.sources)-1]
}

type dispatched struct {
	ByteStart int64
	Data      []byte
}

type fakeConsumer struct {
	consumeList []int // 依次返回的消费字节数，用完后全部消费
	chunks      []dispatched
	seekedCount int
	completed   int
	errs        []*base.IoError
}

func (c *fakeConsumer) OnDataArrival(chunk []byte, byteStart int64) int {
	c.chunks = append(c.chunks, dispatched{ByteStart: byteStart, Data: append([]byte(nil), chunk...)})
	if len(c.consumeList) == 0 {
		return len(chunk)
	}
	n := c.consumeList[0]
	c.consumeList = c.consumeList[1:]
	return n
}

func (c *fakeConsumer) OnSeeked() {
	c.seekedCount++
}

func (c *fakeConsumer) OnComplete() {
	c.completed++
}

func (c *fakeConsumer) OnError(err *base.IoError) {
	c.errs = append(c.errs, err)
}

// makeBytes 生成内容等于文件偏移（取低8位）的数据
func makeBytes(from int64, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(from + int64(i))
	}
	return b
}

func newTestIoController(t *testing.T, consumer *fakeConsumer, enableStash bool, stashSize int) (*IoController, *fakeSourceFactory) {
	factory := &fakeSourceFactory{}
	c, err := NewIoController(DataSource{Url: "/tmp/test.flv"}, consumer, func(option *IoControllerConfig) {
		option.EnableStash = enableStash
		option.StashInitialSize = stashSize
		option.SourceFactory = factory.create
	})
	assert.Equal(t, nil, err)
	return c, factory
}

func TestIoController_NoStash(t *testing.T) {
	consumer := &fakeConsumer{consumeList: []int{0, 20, 5}}
	c, factory := newTestIoController(t, consumer, false, 16)
	assert.Equal(t, nil, c.Open(0))
	assert.Equal(t, true, c.IsWorking())
	assert.Equal(t, "fake", c.SourceType())

	src := factory.last()
	src.feed(0, 10)
	assert.Equal(t, 10, c.stash.Len())
	src.feed(10, 10)
	assert.Equal(t, 0, c.stash.Len())
	src.feed(20, 5)
	assert.Equal(t, 0, c.stash.Len())

	expected := []dispatched{
		{ByteStart: 0, Data: makeBytes(0, 10)},
		{ByteStart: 0, Data: makeBytes(0, 20)},
		{ByteStart: 20, Data: makeBytes(20, 5)},
	}
	if diff := cmp.Diff(expected, consumer.chunks); diff != "" {
		t.Errorf("dispatch mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Range{From: 0, To: 24}, c.CurrentRange())

	src.observer.OnComplete(0, 24)
	assert.Equal(t, 1, consumer.completed)
	assert.Equal(t, false, c.IsWorking())
}

func TestIoController_Stash(t *testing.T) {
	consumer := &fakeConsumer{}
	c, factory := newTestIoController(t, consumer, true, 16)
	assert.Equal(t, nil, c.Open(0))

	src := factory.last()
	src.feed(0, 10)
	assert.Equal(t, 0, len(consumer.chunks))
	// 超过stash大小，先把stash中的数据回调出去，新数据进stash
	src.feed(10, 10)
	assert.Equal(t, 1, len(consumer.chunks))
	src.feed(20, 5)
	assert.Equal(t, 1, len(consumer.chunks))
	assert.Equal(t, 15, c.stash.Len())

	src.observer.OnComplete(0, 24)
	expected := []dispatched{
		{ByteStart: 0, Data: makeBytes(0, 10)},
		{ByteStart: 10, Data: makeBytes(10, 15)},
	}
	if diff := cmp.Diff(expected, consumer.chunks); diff != "" {
		t.Errorf("dispatch mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, consumer.completed)
	assert.Equal(t, 0, c.stash.Len())
}

func TestIoController_StashLargeChunk(t *testing.T) {
	// stash为空时，大块数据直接回调，剩余部分进stash
	consumer := &fakeConsumer{consumeList: []int{30, 10}}
	c, factory := newTestIoController(t, consumer, true, 16)
	assert.Equal(t, nil, c.Open(0))

	src := factory.last()
	src.feed(0, 40)
	assert.Equal(t, 10, c.stash.Len())
	assert.Equal(t, int64(30), c.stashByteStart)

	src.observer.OnComplete(0, 39)
	assert.Equal(t, 2, len(consumer.chunks))
	assert.Equal(t, int64(30), consumer.chunks[1].ByteStart)
	assert.Equal(t, makeBytes(30, 10), consumer.chunks[1].Data)
}

func TestIoController_CompleteDropUnconsumed(t *testing.T) {
	consumer := &fakeConsumer{consumeList: []int{4, 0}}
	c, factory := newTestIoController(t, consumer, false, 16)
	assert.Equal(t, nil, c.Open(0))

	src := factory.last()
	src.feed(0, 10)
	assert.Equal(t, 6, c.stash.Len())
	src.observer.OnComplete(0, 9)
	assert.Equal(t, 0, c.stash.Len())
	assert.Equal(t, 1, consumer.completed)
}

func TestIoController_ErrorKeepUnconsumed(t *testing.T) {
	consumer := &fakeConsumer{consumeList: []int{4, 2}}
	c, factory := newTestIoController(t, consumer, false, 16)
	assert.Equal(t, nil, c.Open(0))

	src := factory.last()
	src.feed(0, 10)
	src.observer.OnError(base.NewIoError(base.IoErrorKindEarlyEof, -1, "eof"))
	assert.Equal(t, 4, c.stash.Len())
	assert.Equal(t, int64(6), c.stashByteStart)
	assert.Equal(t, 1, len(consumer.errs))
	assert.Equal(t, base.IoErrorKindEarlyEof, consumer.errs[0].Kind)
	assert.Equal(t, 0, consumer.completed)
}

func TestIoController_SeekTo(t *testing.T) {
	consumer := &fakeConsumer{consumeList: []int{6}}
	c, factory := newTestIoController(t, consumer, false, 16)
	assert.Equal(t, nil, c.Open(0))

	old := factory.last()
	old.feed(0, 10)
	assert.Equal(t, 4, c.stash.Len())

	c.SeekTo(100)
	assert.Equal(t, true, old.aborted)
	assert.Equal(t, 2, len(factory.sources))
	assert.Equal(t, Range{From: 100, To: -1}, factory.last().r)
	assert.Equal(t, 1, consumer.seekedCount)
	assert.Equal(t, 0, c.stash.Len())

	// 旧字节源的回调被忽略
	n := len(consumer.chunks)
	old.feed(10, 10)
	assert.Equal(t, n, len(consumer.chunks))

	factory.last().feed(100, 8)
	assert.Equal(t, n+1, len(consumer.chunks))
	assert.Equal(t, int64(100), consumer.chunks[n].ByteStart)
	assert.Equal(t, []Range{{From: 0, To: 9}, {From: 100, To: -1}}, c.RangeList())
}

func TestIoController_PauseResume(t *testing.T) {
	consumer := &fakeConsumer{consumeList: []int{10, 4}}
	c, factory := newTestIoController(t, consumer, false, 16)
	assert.Equal(t, nil, c.Open(0))

	src := factory.last()
	src.feed(0, 10)
	c.Pause()
	assert.Equal(t, true, c.IsPaused())
	assert.Equal(t, false, c.IsWorking())
	assert.Equal(t, true, src.aborted)
	assert.Equal(t, int64(10), c.resumeFrom)

	c.Resume()
	assert.Equal(t, false, c.IsPaused())
	assert.Equal(t, Range{From: 10, To: -1}, factory.last().r)

	// stash中有数据时，从stash的起始位置恢复
	src = factory.last()
	src.feed(10, 10)
	assert.Equal(t, 6, c.stash.Len())
	c.Pause()
	assert.Equal(t, int64(14), c.resumeFrom)
	assert.Equal(t, 0, c.stash.Len())
	c.Resume()
	assert.Equal(t, Range{From: 14, To: -1}, factory.last().r)
	assert.Equal(t, 3, len(factory.sources))
}

func TestIoController_Destroy(t *testing.T) {
	consumer := &fakeConsumer{}
	c, factory := newTestIoController(t, consumer, false, 16)
	assert.Equal(t, nil, c.Open(0))
	src := factory.last()

	c.Destroy()
	c.Destroy()
	assert.Equal(t, true, src.aborted)
	src.feed(0, 10)
	assert.Equal(t, 0, len(consumer.chunks))
	assert.Equal(t, base.ErrLoaderDisposed, c.Open(0))
}

func TestIoController_OpenFailed(t *testing.T) {
	consumer := &fakeConsumer{}
	factory := &fakeSourceFactory{openErr: errors.New("open failed")}
	c, err := NewIoController(DataSource{Url: "/tmp/test.flv"}, consumer, func(option *IoControllerConfig) {
		option.SourceFactory = factory.create
	})
	assert.Equal(t, nil, err)
	assert.IsNotNil(t, c.Open(0))
	assert.Equal(t, false, c.IsWorking())

	// seek时打开失败通过回调上报
	c.SeekTo(10)
	assert.Equal(t, 1, len(consumer.errs))
	assert.Equal(t, base.IoErrorKindException, consumer.errs[0].Kind)
	assert.Equal(t, 0, consumer.seekedCount)
}

func TestIoController_Executor(t *testing.T) {
	var tasks []func()
	consumer := &fakeConsumer{}
	factory := &fakeSourceFactory{}
	c, err := NewIoController(DataSource{Url: "/tmp/test.flv"}, consumer, func(option *IoControllerConfig) {
		option.EnableStash = false
		option.SourceFactory = factory.create
		option.Executor = func(task func()) bool {
			tasks = append(tasks, task)
			return true
		}
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, c.Open(0))

	factory.last().feed(0, 10)
	assert.Equal(t, 0, len(consumer.chunks))
	assert.Equal(t, 1, len(tasks))
	tasks[0]()
	assert.Equal(t, 1, len(consumer.chunks))
}

func TestNewIoController(t *testing.T) {
	_, err := NewIoController(DataSource{Url: "/tmp/test.flv"}, nil)
	assert.Equal(t, base.ErrNilObserver, err)
}
