// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package loader

import (
	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/naza/pkg/bitrate"
)

type IIoControllerObserver interface {
	// OnDataArrival
	//
	// @param chunk:     回调结束后IoController不再使用这块内存
	// @param byteStart: chunk在整个文件中的偏移位置
	//
	// @return 消费掉的字节数，没消费的部分由IoController暂存，和后续数据拼接后再次回调
	//
	OnDataArrival(chunk []byte, byteStart int64) int

	OnSeeked()
	OnComplete()
	OnError(err *base.IoError)
}

// Executor 把字节源的回调切换到IoController使用者的执行上下文中
//
// 返回false表示使用者已经不再接收任务
type Executor func(task func()) bool

type IoControllerConfig struct {
	IsLive           bool
	EnableStash      bool // 为false时收到数据立即回调给上层
	StashInitialSize int  // 单位字节

	ReadChunkSize        int
	HttpConnectTimeoutMs int
	HttpReadTimeoutMs    int
	Headers              map[string]string

	// 不设置时使用NewByteSource
	SourceFactory SourceFactory

	// 不设置时直接在字节源的协程中执行回调，此时IoController的所有方法需要由调用方自己保证串行
	Executor Executor
}

var defaultIoControllerConfig = IoControllerConfig{
	IsLive:               false,
	EnableStash:          true,
	StashInitialSize:     defaultStashInitialSize,
	ReadChunkSize:        defaultReadChunkSize,
	HttpConnectTimeoutMs: 10000,
	HttpReadTimeoutMs:    10000,
}

type ModIoControllerOption func(option *IoControllerConfig)

// IoController
//
// 管理一个DataSource的读取：
// 1. 创建字节源，seek、pause时销毁旧的字节源并重新创建
// 2. 上层没有消费完的数据暂存在stash中，和后续数据拼接
// 3. 根据网速调整stash的大小
type IoController struct {
	uniqueKey  string
	config     IoControllerConfig
	dataSource DataSource
	observer   IIoControllerObserver

	source     IByteSource
	sourceType string
	generation int // 每次创建字节源时加1，用于过滤已经abort的字节源的回调

	totalLength  int64
	currentRange Range
	rangeList    RangeList

	stash          *base.Buffer
	stashByteStart int64
	stashSize      int

	speedSampler    bitrate.Bitrate
	speedNormalized int

	paused     bool
	resumeFrom int64
	disposed   bool
}

func NewIoController(ds DataSource, observer IIoControllerObserver, modOptions ...ModIoControllerOption) (*IoController, error) {
	if observer == nil {
		return nil, base.ErrNilObserver
	}

	config := defaultIoControllerConfig
	for _, fn := range modOptions {
		fn(&config)
	}
	if config.StashInitialSize <= 0 {
		config.StashInitialSize = defaultStashInitialSize
	}
	if config.ReadChunkSize <= 0 {
		config.ReadChunkSize = defaultReadChunkSize
	}
	if config.SourceFactory == nil {
		config.SourceFactory = NewByteSource
	}
	if config.Executor == nil {
		config.Executor = func(task func()) bool {
			task()
			return true
		}
	}

	uk := base.GenUkIoController()
	c := &IoController{
		uniqueKey:    uk,
		config:       config,
		dataSource:   ds,
		observer:     observer,
		totalLength:  ds.Filesize,
		currentRange: Range{From: 0, To: -1},
		stash:        base.NewBuffer(config.StashInitialSize),
		stashSize:    config.StashInitialSize,
		speedSampler: newSpeedSampler(),
	}
	Log.Infof("[%s] lifecycle new io controller. url=%s, config=%+v", uk, ds.Url, config)
	return c, nil
}

// Open 从optionalFrom开始读取
func (c *IoController) Open(optionalFrom int64) error {
	if c.disposed {
		return base.ErrLoaderDisposed
	}
	if c.source != nil && c.source.IsWorking() {
		return base.ErrLoaderBusy
	}

	c.currentRange = Range{From: optionalFrom, To: -1}
	c.rangeList.Add(c.currentRange)
	c.speedSampler = newSpeedSampler()
	return c.openSource(c.currentRange)
}

// Abort 停止读取，暂存的数据保留
func (c *IoController) Abort() {
	c.abortSource()
	if c.paused {
		c.paused = false
		c.resumeFrom = 0
	}
}

func (c *IoController) Pause() {
	if !c.IsWorking() {
		return
	}

	c.abortSource()
	if c.stash.Len() != 0 {
		c.resumeFrom = c.stashByteStart
		c.currentRange.To = c.stashByteStart - 1
	} else {
		c.resumeFrom = c.currentRange.To + 1
	}
	c.stash.Reset()
	c.stashByteStart = 0
	c.paused = true
	Log.Debugf("[%s] pause. resumeFrom=%d", c.uniqueKey, c.resumeFrom)
}

func (c *IoController) Resume() {
	if !c.paused {
		return
	}

	c.paused = false
	bytes := c.resumeFrom
	c.resumeFrom = 0
	Log.Debugf("[%s] resume. from=%d", c.uniqueKey, bytes)
	c.internalSeek(bytes, true)
}

// SeekTo 丢弃暂存的数据，从文件的bytes位置开始重新读取
func (c *IoController) SeekTo(bytes int64) {
	if c.disposed {
		return
	}

	c.paused = false
	c.stash.Reset()
	c.stashByteStart = 0
	c.internalSeek(bytes, true)
}

// Destroy 可重复调用
func (c *IoController) Destroy() {
	if c.disposed {
		return
	}
	Log.Infof("[%s] lifecycle dispose io controller.", c.uniqueKey)
	c.disposed = true
	c.abortSource()
	c.stash.Reset()
	c.stashByteStart = 0
}

func (c *IoController) IsWorking() bool {
	return c.source != nil && c.source.IsWorking() && !c.paused
}

func (c *IoController) IsPaused() bool {
	return c.paused
}

// CurrentSpeed 单位KB/s
func (c *IoController) CurrentSpeed() float64 {
	return float64(c.speedSampler.Rate()) / 8
}

func (c *IoController) CurrentUrl() string {
	return c.dataSource.Url
}

func (c *IoController) SourceType() string {
	return c.sourceType
}

func (c *IoController) TotalLength() int64 {
	return c.totalLength
}

func (c *IoController) CurrentRange() Range {
	return c.currentRange
}

func (c *IoController) RangeList() []Range {
	return c.rangeList.Ranges()
}

func (c *IoController) UniqueKey() string {
	return c.uniqueKey
}

// ---------------------------------------------------------------------------------------------------------------------

func (c *IoController) openSource(r Range) error {
	c.generation++
	sc := SourceConfig{
		ReadChunkSize:        c.config.ReadChunkSize,
		HttpConnectTimeoutMs: c.config.HttpConnectTimeoutMs,
		HttpReadTimeoutMs:    c.config.HttpReadTimeoutMs,
		Headers:              c.config.Headers,
	}
	src, err := c.config.SourceFactory(c.dataSource, sc, &sourceObserver{c: c, generation: c.generation})
	if err != nil {
		Log.Errorf("[%s] create source failed. err=%+v", c.uniqueKey, err)
		return err
	}
	c.source = src
	c.sourceType = src.Type()

	Log.Debugf("[%s] open source. type=%s, range=%s", c.uniqueKey, c.sourceType, r)
	if err = src.Open(c.dataSource, r); err != nil {
		Log.Errorf("[%s] open source failed. err=%+v", c.uniqueKey, err)
		c.source = nil
		return err
	}
	return nil
}

func (c *IoController) abortSource() {
	if c.source == nil {
		return
	}
	c.source.Abort()
	c.source = nil
	c.generation++
}

func (c *IoController) internalSeek(bytes int64, dropUnconsumed bool) {
	c.abortSource()

	c.flushStash(dropUnconsumed)
	c.rangeList.Close(c.currentRange.From, c.currentRange.To)

	c.currentRange = Range{From: bytes, To: -1}
	c.rangeList.Add(c.currentRange)
	c.speedSampler = newSpeedSampler()
	c.speedNormalized = 0
	c.stashSize = c.config.StashInitialSize

	if err := c.openSource(c.currentRange); err != nil {
		c.observer.OnError(base.NewIoError(base.IoErrorKindException, -1, err.Error()))
		return
	}
	c.observer.OnSeeked()
}

// dispatch 把数据交给上层，返回上层消费掉的字节数
func (c *IoController) dispatch(chunk []byte, byteStart int64) int {
	c.currentRange.To = byteStart + int64(len(chunk)) - 1
	consumed := c.observer.OnDataArrival(chunk, byteStart)
	if consumed < 0 {
		consumed = 0
	}
	if consumed > len(chunk) {
		consumed = len(chunk)
	}
	return consumed
}

// dispatchStash stash中的内存后续还会复用，给上层的是拷贝
func (c *IoController) dispatchStash() (consumed int, remain int) {
	buf := make([]byte, c.stash.Len())
	copy(buf, c.stash.Bytes())
	consumed = c.dispatch(buf, c.stashByteStart)
	return consumed, len(buf) - consumed
}

// flushStash 把stash中的数据全部回调给上层
//
// @param dropUnconsumed: 上层没有消费完的数据是否丢弃
//
// @return 剩余没有被消费的字节数
func (c *IoController) flushStash(dropUnconsumed bool) int {
	if c.stash.Len() == 0 {
		return 0
	}

	consumed, remain := c.dispatchStash()
	if remain > 0 {
		if !dropUnconsumed {
			c.stash.Skip(consumed)
			c.stashByteStart += int64(consumed)
			return remain
		}
		Log.Warnf("[%s] %d bytes unconsumed data remain when flush buffer, dropped.", c.uniqueKey, remain)
	}
	c.stash.Reset()
	c.stashByteStart = 0
	return remain
}

func (c *IoController) adjustStashSize() {
	kbps := int(c.CurrentSpeed())
	if kbps <= 0 {
		// 样本太少
		return
	}
	normalized := normalizeSpeed(kbps)
	if normalized == c.speedNormalized {
		return
	}
	c.speedNormalized = normalized
	stashSizeKb := calcStashSizeKb(normalized, c.config.IsLive)
	if c.stashSize != stashSizeKb*1024 {
		Log.Debugf("[%s] adjust stash size. speed=%dKB/s, stash=%dKB", c.uniqueKey, kbps, stashSizeKb)
	}
	c.stashSize = stashSizeKb * 1024
}

func (c *IoController) onSourceContentLengthKnown(length int64) {
	if c.currentRange.From == 0 && c.totalLength == 0 {
		c.totalLength = length
	}
}

func (c *IoController) onSourceDataArrival(chunk []byte, byteStart int64) {
	if c.paused {
		return
	}

	c.speedSampler.Add(len(chunk))
	c.adjustStashSize()

	if !c.config.EnableStash {
		if c.stash.Len() == 0 {
			consumed := c.dispatch(chunk, byteStart)
			if consumed < len(chunk) {
				_, _ = c.stash.Write(chunk[consumed:])
				c.stashByteStart = byteStart + int64(consumed)
			}
		} else {
			_, _ = c.stash.Write(chunk)
			consumed, _ := c.dispatchStash()
			c.stash.Skip(consumed)
			c.stashByteStart += int64(consumed)
		}
		return
	}

	if c.stash.Len() == 0 {
		c.stashByteStart = byteStart
	}
	if c.stash.Len()+len(chunk) <= c.stashSize {
		_, _ = c.stash.Write(chunk)
		return
	}

	if c.stash.Len() > 0 {
		consumed, _ := c.dispatchStash()
		c.stash.Skip(consumed)
		c.stashByteStart += int64(consumed)
		_, _ = c.stash.Write(chunk)
		return
	}

	consumed := c.dispatch(chunk, byteStart)
	if consumed < len(chunk) {
		_, _ = c.stash.Write(chunk[consumed:])
		c.stashByteStart = byteStart + int64(consumed)
	}
}

func (c *IoController) onSourceComplete(from, to int64) {
	Log.Debugf("[%s] source complete. range=[%d, %d]", c.uniqueKey, from, to)
	c.flushStash(true)
	c.rangeList.Close(c.currentRange.From, to)
	c.source = nil
	c.observer.OnComplete()
}

func (c *IoController) onSourceError(err *base.IoError) {
	Log.Errorf("[%s] source error. err=%+v", c.uniqueKey, err)
	c.flushStash(false)
	c.source = nil
	c.observer.OnError(err)
}

func newSpeedSampler() bitrate.Bitrate {
	return bitrate.New(func(option *bitrate.Option) {
		option.WindowMs = 1000
	})
}

// ---------------------------------------------------------------------------------------------------------------------

// sourceObserver 把字节源的回调通过Executor切换回IoController的上下文，并过滤掉过期字节源的回调
type sourceObserver struct {
	c          *IoController
	generation int
}

func (o *sourceObserver) OnContentLengthKnown(length int64) {
	o.post(func() {
		o.c.onSourceContentLengthKnown(length)
	})
}

func (o *sourceObserver) OnDataArrival(chunk []byte, byteStart int64, receivedLength int64) {
	o.post(func() {
		o.c.onSourceDataArrival(chunk, byteStart)
	})
}

func (o *sourceObserver) OnComplete(from, to int64) {
	o.post(func() {
		o.c.onSourceComplete(from, to)
	})
}

func (o *sourceObserver) OnError(err *base.IoError) {
	o.post(func() {
		o.c.onSourceError(err)
	})
}

func (o *sourceObserver) post(task func()) {
	o.c.config.Executor(func() {
		if o.c.disposed || o.generation != o.c.generation {
			return
		}
		task()
	})
}
