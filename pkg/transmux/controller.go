// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package transmux

import (
	"github.com/q191201771/lalfmp4/pkg/amf0"
	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/lalfmp4/pkg/flv"
	"github.com/q191201771/lalfmp4/pkg/loader"
	"github.com/q191201771/lalfmp4/pkg/remux"
)

// Controller 串联IoController、flv.Demuxer、remux.Mp4Remuxer，处理多分片以及seek
//
// 非协程安全。所有方法以及字节源的回调需要在同一个协程中执行，
// 字节源的回调通过ModControllerOption中设置的Executor切换到该协程。
// 直接使用可参考Transmuxer的实现。
type Controller struct {
	uniqueKey string
	config    Config
	mds       MediaDataSource
	observer  ITransmuxingObserver
	executor  loader.Executor

	currentPartIndex int
	ioctl            *loader.IoController
	initChunkPending bool // 当前IoController的第一块数据还没有收到
	demuxer          *flv.Demuxer
	remuxer          *remux.Mp4Remuxer

	// mediaInfo 第一个分片的媒体信息，不包含关键帧索引，作为整体的媒体信息
	mediaInfo *base.MediaInfo
	seekable  bool
	partInfos []*base.MediaInfo

	hasPendingSeek             bool
	pendingSeekTime            int64
	hasPendingResolveSeekPoint bool
	pendingResolveSeekPoint    int64

	// 在回调中触发的、需要等回调返回后再执行的操作
	deferredTasks []func()

	started           bool
	disposed          bool
	statisticsEnabled bool
}

type ControllerOption struct {
	// Executor 字节源回调切换协程的方式，不设置时直接在字节源的协程中执行
	Executor loader.Executor
}

type ModControllerOption func(option *ControllerOption)

func NewController(mds MediaDataSource, config Config, observer ITransmuxingObserver, modOptions ...ModControllerOption) (*Controller, error) {
	if observer == nil {
		return nil, base.ErrNilObserver
	}
	normalized, err := mds.normalize()
	if err != nil {
		return nil, err
	}

	option := ControllerOption{}
	for _, fn := range modOptions {
		fn(&option)
	}
	if option.Executor == nil {
		option.Executor = func(task func()) bool {
			task()
			return true
		}
	}

	uk := base.GenUkController()
	c := &Controller{
		uniqueKey: uk,
		config:    config,
		mds:       normalized,
		observer:  observer,
		executor:  option.Executor,
		partInfos: make([]*base.MediaInfo, len(normalized.Parts)),
	}
	Log.Infof("[%s] lifecycle new transmuxing controller. mds=%s", uk, normalized)
	return c, nil
}

func (c *Controller) UniqueKey() string {
	return c.uniqueKey
}

func (c *Controller) Start() {
	if c.started || c.disposed {
		return
	}
	c.started = true
	c.enableStatistics()
	c.loadPart(0, 0)
	c.runDeferredTasks()
}

// Stop 可重复调用
func (c *Controller) Stop() {
	c.internalAbort()
	c.disableStatistics()
	c.deferredTasks = nil
}

// Dispose 停止并释放所有资源，可重复调用
func (c *Controller) Dispose() {
	if c.disposed {
		return
	}
	c.Stop()
	c.disposed = true
	if c.demuxer != nil {
		c.demuxer.Dispose()
		c.demuxer = nil
	}
	if c.remuxer != nil {
		c.remuxer.Dispose()
		c.remuxer = nil
	}
	Log.Infof("[%s] lifecycle dispose transmuxing controller.", c.uniqueKey)
}

func (c *Controller) Pause() {
	if c.ioctl != nil && c.ioctl.IsWorking() {
		c.ioctl.Pause()
		c.disableStatistics()
	}
}

func (c *Controller) Resume() {
	if c.ioctl != nil && c.ioctl.IsPaused() {
		c.ioctl.Resume()
		c.enableStatistics()
	}
	c.runDeferredTasks()
}

// Seek 跳转到ms毫秒（所有分片的全局时间）处，实际位置为之前最近的关键帧
//
// 媒体信息中没有关键帧索引时忽略
func (c *Controller) Seek(ms int64) {
	c.seek(ms)
	c.runDeferredTasks()
}

// MediaInfo 返回值为拷贝，媒体信息还未获取到时ok为false
func (c *Controller) MediaInfo() (mi base.MediaInfo, ok bool) {
	if c.mediaInfo == nil {
		return mi, false
	}
	return *c.mediaInfo.Clone(), true
}

func (c *Controller) IsStatisticsEnabled() bool {
	return c.statisticsEnabled
}

func (c *Controller) StatisticsInfo() StatisticsInfo {
	info := StatisticsInfo{
		CurrentPartIndex: c.currentPartIndex,
		TotalPartCount:   len(c.mds.Parts),
	}
	if c.ioctl != nil {
		info.Url = c.ioctl.CurrentUrl()
		info.Speed = c.ioctl.CurrentSpeed()
		info.SourceType = c.ioctl.SourceType()
	}
	return info
}

func (c *Controller) ReportStatisticsInfo() {
	if c.ioctl == nil {
		return
	}
	c.observer.OnStatisticsInfo(c.StatisticsInfo())
}

// ---------------------------------------------------------------------------------------------------------------------

func (c *Controller) seek(ms int64) {
	if c.disposed || c.mediaInfo == nil || !c.seekable {
		Log.Warnf("[%s] not seekable, ignore seek. ms=%d", c.uniqueKey, ms)
		return
	}

	target := c.searchPartIndexContains(ms)
	targetInfo := c.partInfos[target]
	Log.Debugf("[%s] seek. ms=%d, target part=%d, current part=%d", c.uniqueKey, ms, target, c.currentPartIndex)

	if target == c.currentPartIndex {
		if targetInfo == nil {
			// 当前分片已经开始读取，但是媒体信息还没有拿到，拿到后再seek
			c.setPendingSeek(ms)
		} else if c.ioctl != nil {
			kf, _ := targetInfo.GetNearestKeyframe(ms)
			c.dropPendingSamples()
			c.remuxer.Seek()
			c.ioctl.SeekTo(int64(kf.FilePosition))
			c.setPendingResolveSeekPoint(kf.Milliseconds)
		}
	} else {
		if targetInfo == nil {
			// 目标分片还没有读取过，先读取它的媒体信息再seek
			c.setPendingSeek(ms)
			c.internalAbort()
			c.remuxer.Seek()
			c.remuxer.InsertDiscontinuity()
			c.loadPart(target, 0)
		} else {
			kf, _ := targetInfo.GetNearestKeyframe(ms)
			c.internalAbort()
			c.dropPendingSamples()
			c.remuxer.Seek()
			c.remuxer.InsertDiscontinuity()
			c.demuxer.ResetMediaInfo()
			c.demuxer.SetTimestampBase(c.mds.Parts[target].TimestampBase)
			c.loadPart(target, int64(kf.FilePosition))
			c.setPendingResolveSeekPoint(kf.Milliseconds)
			c.reportPartMediaInfo(target)
		}
	}

	c.enableStatistics()
}

func (c *Controller) setPendingSeek(ms int64) {
	c.hasPendingSeek = true
	c.pendingSeekTime = ms
}

func (c *Controller) setPendingResolveSeekPoint(ms int64) {
	c.hasPendingResolveSeekPoint = true
	c.pendingResolveSeekPoint = ms
}

// searchPartIndexContains 查找ms所在的分片
func (c *Controller) searchPartIndexContains(ms int64) int {
	parts := c.mds.Parts
	idx := len(parts) - 1
	for i := range parts {
		if ms < parts[i].TimestampBase {
			idx = i - 1
			break
		}
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

func (c *Controller) loadPart(index int, optionalFrom int64) {
	c.currentPartIndex = index
	part := c.mds.Parts[index]
	Log.Debugf("[%s] load part. index=%d, url=%s, from=%d", c.uniqueKey, index, part.Url, optionalFrom)

	ds := loader.DataSource{
		Url:      part.Url,
		Filesize: part.Filesize,
	}
	ioctl, err := loader.NewIoController(ds, &ioObserver{c: c}, func(option *loader.IoControllerConfig) {
		option.IsLive = c.config.IsLive
		option.EnableStash = c.config.EnableStashBuffer
		option.StashInitialSize = c.config.StashInitialSize
		option.ReadChunkSize = c.config.ReadChunkSize
		option.HttpConnectTimeoutMs = c.config.HttpConnectTimeoutMs
		option.HttpReadTimeoutMs = c.config.HttpReadTimeoutMs
		option.Headers = c.config.Headers
		option.SourceFactory = c.config.SourceFactory
		option.Executor = c.runSourceTask
	})
	if err != nil {
		c.onIoError(base.NewIoError(base.IoErrorKindException, -1, err.Error()))
		return
	}
	c.ioctl = ioctl
	c.initChunkPending = true

	if err = ioctl.Open(optionalFrom); err != nil {
		c.onIoError(base.NewIoError(base.IoErrorKindException, -1, err.Error()))
	}
}

func (c *Controller) internalAbort() {
	if c.ioctl != nil {
		c.ioctl.Destroy()
		c.ioctl = nil
	}
}

func (c *Controller) enableStatistics() {
	c.statisticsEnabled = true
}

func (c *Controller) disableStatistics() {
	c.statisticsEnabled = false
}

func (c *Controller) reportPartMediaInfo(index int) {
	partInfo := c.partInfos[index]
	if partInfo == nil {
		return
	}
	info := partInfo.Clone()
	info.Duration = c.mediaInfo.Duration
	info.SegmentCount = c.mediaInfo.SegmentCount
	info.KeyframesIndex = nil
	c.observer.OnMediaInfo(*info)
}

func (c *Controller) deferTask(task func()) {
	c.deferredTasks = append(c.deferredTasks, task)
}

func (c *Controller) runDeferredTasks() {
	for len(c.deferredTasks) > 0 {
		task := c.deferredTasks[0]
		c.deferredTasks = c.deferredTasks[1:]
		task()
	}
}

// runSourceTask 执行字节源的回调，回调返回后再执行回调中产生的延迟任务
func (c *Controller) runSourceTask(task func()) bool {
	return c.executor(func() {
		if c.disposed {
			return
		}
		task()
		c.runDeferredTasks()
	})
}

// ----- IoController ---------------------------------------------------------------------------------------------------

func (c *Controller) onIoDataArrival(data []byte, byteStart int64) int {
	if c.initChunkPending {
		return c.onInitChunkArrival(data, byteStart)
	}
	return c.demuxer.ParseChunks(data, byteStart)
}

func (c *Controller) onInitChunkArrival(data []byte, byteStart int64) int {
	part := c.mds.Parts[c.currentPartIndex]

	if byteStart > 0 {
		// 打开后立即seek的情况，继续使用之前的demuxer
		if c.demuxer == nil {
			c.abortOnFormatUnsupported()
			return 0
		}
		c.initChunkPending = false
		c.demuxer.SetTimestampBase(part.TimestampBase)
		return c.demuxer.ParseChunks(data, byteStart)
	}

	if len(data) < flv.FlvHeaderSize+flv.PrevTagSizeFieldSize {
		// 等待更多数据
		return 0
	}
	probe := flv.Probe(data)
	if !probe.Match {
		c.abortOnFormatUnsupported()
		return 0
	}

	// 每个分片都使用新的demuxer，remuxer复用以保证时间戳连续
	if c.demuxer != nil {
		c.demuxer.Dispose()
	}
	demuxer, err := flv.NewDemuxer(probe, flv.DemuxerConfig{AacProfilePolicy: c.config.Capabilities.AacProfilePolicy}, &demuxerObserver{c: c})
	if err != nil {
		Log.Errorf("[%s] new demuxer failed. err=%+v", c.uniqueKey, err)
		return 0
	}
	c.demuxer = demuxer

	if c.remuxer == nil {
		c.remuxer, err = remux.NewMp4Remuxer(c, func(option *remux.Mp4RemuxerConfig) {
			option.IsLive = c.config.IsLive
			option.FixAudioTimestampGap = c.config.FixAudioTimestampGap
			option.ForceFirstIdr = c.config.ForceFirstIdr
		})
		if err != nil {
			Log.Errorf("[%s] new remuxer failed. err=%+v", c.uniqueKey, err)
			return 0
		}
	}

	if c.mds.Duration > 0 {
		demuxer.OverrideDuration(c.mds.Duration)
	}
	if c.mds.HasAudio != nil {
		demuxer.OverrideHasAudio(*c.mds.HasAudio)
	}
	if c.mds.HasVideo != nil {
		demuxer.OverrideHasVideo(*c.mds.HasVideo)
	}
	demuxer.SetTimestampBase(part.TimestampBase)

	c.initChunkPending = false
	return demuxer.ParseChunks(data, byteStart)
}

func (c *Controller) abortOnFormatUnsupported() {
	Log.Errorf("[%s] non-flv, unsupported media type.", c.uniqueKey)
	c.deferTask(c.internalAbort)
	c.observer.OnDemuxError(base.NewDemuxError(base.DemuxErrorKindFormatUnsupported, "non-flv, unsupported media type"))
}

func (c *Controller) onIoSeeked() {
	if c.remuxer != nil {
		c.remuxer.InsertDiscontinuity()
	}
}

func (c *Controller) onIoComplete() {
	next := c.currentPartIndex + 1
	if next < len(c.mds.Parts) {
		c.internalAbort()
		c.flushRemuxer()
		c.loadPart(next, 0)
		return
	}

	c.flushRemuxer()
	Log.Infof("[%s] loading complete.", c.uniqueKey)
	c.observer.OnLoadingComplete()
	c.disableStatistics()
}

// dropPendingSamples seek时丢弃demuxer中还没有被消费的帧
func (c *Controller) dropPendingSamples() {
	if c.demuxer == nil {
		return
	}
	audioTrack, videoTrack := c.demuxer.PendingTracks()
	audioTrack.Clear()
	videoTrack.Clear()
}

// flushRemuxer 当前分片结束，demuxer中剩余的帧以及remuxer暂存的帧全部输出
func (c *Controller) flushRemuxer() {
	if c.remuxer == nil {
		return
	}
	if c.demuxer != nil {
		audioTrack, videoTrack := c.demuxer.PendingTracks()
		c.remuxer.Flush(audioTrack, videoTrack)
		return
	}
	c.remuxer.FlushStashedSamples()
}

func (c *Controller) onIoError(err *base.IoError) {
	Log.Errorf("[%s] io error. err=%s", c.uniqueKey, err.Error())
	c.observer.OnIoError(err)
	c.disableStatistics()
}

// ----- flv.Demuxer ----------------------------------------------------------------------------------------------------

func (c *Controller) onMediaInfo(mi base.MediaInfo) {
	if c.mediaInfo == nil {
		global := mi.Clone()
		c.seekable = global.IsSeekable()
		global.KeyframesIndex = nil
		global.SegmentCount = len(c.mds.Parts)
		c.mediaInfo = global
	}
	c.partInfos[c.currentPartIndex] = mi.Clone()
	c.reportPartMediaInfo(c.currentPartIndex)

	if c.hasPendingSeek {
		c.deferTask(func() {
			if !c.hasPendingSeek {
				return
			}
			target := c.pendingSeekTime
			c.hasPendingSeek = false
			c.seek(target)
		})
	}
}

// ----- remux.Mp4Remuxer -----------------------------------------------------------------------------------------------

func (c *Controller) OnInitSegment(seg base.InitSegment) {
	c.observer.OnInitSegment(seg)
}

func (c *Controller) OnMediaSegment(seg base.MediaSegment) {
	if c.hasPendingSeek {
		// 等待seek的过程中，丢弃所有media segment
		return
	}
	c.observer.OnMediaSegment(seg)

	if c.hasPendingResolveSeekPoint && seg.Type == base.TrackTypeVideo {
		c.hasPendingResolveSeekPoint = false
		c.observer.OnRecommendSeekpoint(c.pendingResolveSeekPoint)
	}
}

// ---------------------------------------------------------------------------------------------------------------------

// ioObserver 和demuxerObserver都有OnError方法，所以拆成两个类型
type ioObserver struct {
	c *Controller
}

func (o *ioObserver) OnDataArrival(chunk []byte, byteStart int64) int {
	return o.c.onIoDataArrival(chunk, byteStart)
}

func (o *ioObserver) OnSeeked() {
	o.c.onIoSeeked()
}

func (o *ioObserver) OnComplete() {
	o.c.onIoComplete()
}

func (o *ioObserver) OnError(err *base.IoError) {
	o.c.onIoError(err)
}

type demuxerObserver struct {
	c *Controller
}

func (o *demuxerObserver) OnError(err *base.DemuxError) {
	o.c.observer.OnDemuxError(err)
}

func (o *demuxerObserver) OnMediaInfo(mi base.MediaInfo) {
	o.c.onMediaInfo(mi)
}

func (o *demuxerObserver) OnMetadataArrived(metadata amf0.ObjectPairArray) {
	o.c.observer.OnMetadataArrived(metadata)
}

func (o *demuxerObserver) OnScriptDataArrived(name string, value interface{}) {
	o.c.observer.OnScriptDataArrived(name, value)
}

func (o *demuxerObserver) OnTrackMetadata(meta base.TrackMetadata) {
	if err := o.c.remuxer.OnTrackMetadata(meta); err != nil {
		o.c.observer.OnDemuxError(base.NewDemuxError(base.DemuxErrorKindFormatError, "generate init segment failed. type=%s, err=%s", meta.Type, err.Error()))
	}
}

func (o *demuxerObserver) OnDataAvailable(audioTrack *base.AudioTrack, videoTrack *base.VideoTrack) {
	o.c.remuxer.Remux(audioTrack, videoTrack)
}
