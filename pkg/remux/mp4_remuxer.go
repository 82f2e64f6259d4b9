// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package remux

import (
	"fmt"
	"math"

	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/lalfmp4/pkg/fmp4"
)

type IMp4RemuxerObserver interface {
	// OnInitSegment
	//
	// 每个track收到新的codec配置时回调一次
	//
	OnInitSegment(seg base.InitSegment)

	// OnMediaSegment
	//
	// 每次Remux，每个有数据的track回调一次。seg.Data在回调结束后Mp4Remuxer不再使用
	//
	OnMediaSegment(seg base.MediaSegment)
}

type Mp4RemuxerConfig struct {
	IsLive               bool // 直播时不保存MediaSegmentInfoList
	FixAudioTimestampGap bool // 音频时间戳跳变较大时，填充静音帧
	ForceFirstIdr        bool // 强制把每个fragment的第一个sample标记为关键帧
}

var defaultMp4RemuxerConfig = Mp4RemuxerConfig{
	IsLive:               false,
	FixAudioTimestampGap: true,
	ForceFirstIdr:        false,
}

type ModMp4RemuxerOption func(option *Mp4RemuxerConfig)

// Mp4Remuxer 输入flv解析出来的音视频sample，输出fmp4 init segment以及media segment
//
// 非协程安全，所有方法需要在同一个协程中调用
type Mp4Remuxer struct {
	uniqueKey string
	config    Mp4RemuxerConfig
	observer  IMp4RemuxerObserver

	dtsBase       int64
	dtsBaseInited bool

	audioMeta *base.AudioMetadata
	videoMeta *base.VideoMetadata

	// audioNextDts为浮点数，用于按1024/samplerate累加音频时间戳，避免取整的误差累积
	audioNextDts      float64
	audioNextDtsValid bool
	videoNextDts      int64
	videoNextDtsValid bool

	audioStashedLastSample *base.AudioSample
	videoStashedLastSample *base.VideoSample

	audioSequenceNumber int
	videoSequenceNumber int

	audioSegmentInfoList *MediaSegmentInfoList
	videoSegmentInfoList *MediaSegmentInfoList
}

func NewMp4Remuxer(observer IMp4RemuxerObserver, modOptions ...ModMp4RemuxerOption) (*Mp4Remuxer, error) {
	if observer == nil {
		return nil, base.ErrNilObserver
	}
	config := defaultMp4RemuxerConfig
	for _, fn := range modOptions {
		fn(&config)
	}
	uk := base.GenUkMp4Remuxer()
	r := &Mp4Remuxer{
		uniqueKey:            uk,
		config:               config,
		observer:             observer,
		audioSegmentInfoList: NewMediaSegmentInfoList(base.TrackTypeAudio),
		videoSegmentInfoList: NewMediaSegmentInfoList(base.TrackTypeVideo),
	}
	Log.Infof("[%s] lifecycle new mp4 remuxer. config=%+v", uk, config)
	return r, nil
}

func (r *Mp4Remuxer) UniqueKey() string {
	return r.uniqueKey
}

func (r *Mp4Remuxer) Dispose() {
	Log.Infof("[%s] lifecycle dispose mp4 remuxer.", r.uniqueKey)
	r.audioStashedLastSample = nil
	r.videoStashedLastSample = nil
	r.audioSegmentInfoList.Clear()
	r.videoSegmentInfoList.Clear()
}

func (r *Mp4Remuxer) AudioSegmentInfoList() *MediaSegmentInfoList {
	return r.audioSegmentInfoList
}

func (r *Mp4Remuxer) VideoSegmentInfoList() *MediaSegmentInfoList {
	return r.videoSegmentInfoList
}

// OnTrackMetadata 生成对应track的init segment
func (r *Mp4Remuxer) OnTrackMetadata(meta base.TrackMetadata) error {
	data, err := fmp4.GenerateInitSegment(meta)
	if err != nil {
		Log.Errorf("[%s] generate init segment failed. type=%s, err=%+v", r.uniqueKey, meta.Type, err)
		return err
	}

	seg := base.InitSegment{
		Type:      meta.Type,
		Container: fmt.Sprintf("%s/mp4", meta.Type),
		Data:      data,
	}

	// 暂存的sample属于旧的编码配置，必须在新的init segment之前输出
	r.flushStashedSampleOf(meta.Type)

	switch meta.Type {
	case base.TrackTypeAudio:
		r.audioMeta = meta.Audio
		seg.Codec = meta.Audio.Codec
		seg.MediaDuration = meta.Audio.Duration
	case base.TrackTypeVideo:
		r.videoMeta = meta.Video
		seg.Codec = meta.Video.Codec
		seg.MediaDuration = meta.Video.Duration
	}
	Log.Debugf("[%s] init segment. %s", r.uniqueKey, seg.DebugString())
	r.observer.OnInitSegment(seg)
	return nil
}

// Remux 消费audioTrack和videoTrack中的sample，生成media segment
//
// 每个track的最后一个sample会被暂存到下一次Remux时使用，用于计算它的时长。
// 调用结束后两个track的样本被清空（只有一个样本且暂存的情况除外）。
func (r *Mp4Remuxer) Remux(audioTrack *base.AudioTrack, videoTrack *base.VideoTrack) {
	if !r.dtsBaseInited {
		r.calculateDtsBase(audioTrack, videoTrack)
	}
	if videoTrack != nil {
		r.remuxVideo(videoTrack, false)
	}
	if audioTrack != nil {
		r.remuxAudio(audioTrack, false)
	}
}

// Seek 丢弃暂存的sample以及已生成的segment索引
func (r *Mp4Remuxer) Seek() {
	r.audioStashedLastSample = nil
	r.videoStashedLastSample = nil
	r.videoSegmentInfoList.Clear()
	r.audioSegmentInfoList.Clear()
}

// InsertDiscontinuity 下一次Remux不再假设时间戳是连续的
func (r *Mp4Remuxer) InsertDiscontinuity() {
	r.audioNextDtsValid = false
	r.videoNextDtsValid = false
}

// FlushStashedSamples 把暂存的最后一个sample强制输出，比如在流结束时
func (r *Mp4Remuxer) FlushStashedSamples() {
	videoTrack := &base.VideoTrack{Id: base.VideoTrackId}
	if r.videoStashedLastSample != nil {
		videoTrack.Append(*r.videoStashedLastSample)
	}
	audioTrack := &base.AudioTrack{Id: base.AudioTrackId}
	if r.audioStashedLastSample != nil {
		audioTrack.Append(*r.audioStashedLastSample)
	}
	r.videoStashedLastSample = nil
	r.audioStashedLastSample = nil

	r.remuxVideo(videoTrack, true)
	r.remuxAudio(audioTrack, true)
}

func (r *Mp4Remuxer) flushStashedSampleOf(typ base.TrackType) {
	switch typ {
	case base.TrackTypeAudio:
		if r.audioMeta == nil || r.audioStashedLastSample == nil {
			return
		}
		audioTrack := &base.AudioTrack{Id: base.AudioTrackId}
		audioTrack.Append(*r.audioStashedLastSample)
		r.audioStashedLastSample = nil
		r.remuxAudio(audioTrack, true)
	case base.TrackTypeVideo:
		if r.videoMeta == nil || r.videoStashedLastSample == nil {
			return
		}
		videoTrack := &base.VideoTrack{Id: base.VideoTrackId}
		videoTrack.Append(*r.videoStashedLastSample)
		r.videoStashedLastSample = nil
		r.remuxVideo(videoTrack, true)
	}
}

// Flush 流（或者一个分片）结束时调用，把track中剩余的sample以及暂存的sample全部输出
func (r *Mp4Remuxer) Flush(audioTrack *base.AudioTrack, videoTrack *base.VideoTrack) {
	if !r.dtsBaseInited {
		r.calculateDtsBase(audioTrack, videoTrack)
	}
	if videoTrack != nil {
		r.remuxVideo(videoTrack, true)
	}
	if audioTrack != nil {
		r.remuxAudio(audioTrack, true)
	}
	r.FlushStashedSamples()
}

// ---------------------------------------------------------------------------------------------------------------------

// calculateDtsBase 音视频共用一个dts基准，取两个track第一个sample中较小的那个
func (r *Mp4Remuxer) calculateDtsBase(audioTrack *base.AudioTrack, videoTrack *base.VideoTrack) {
	dtsBase := int64(math.MaxInt64)
	if audioTrack != nil && len(audioTrack.Samples) > 0 {
		dtsBase = audioTrack.Samples[0].Dts
	}
	if videoTrack != nil && len(videoTrack.Samples) > 0 && videoTrack.Samples[0].Dts < dtsBase {
		dtsBase = videoTrack.Samples[0].Dts
	}
	if dtsBase == math.MaxInt64 {
		return
	}
	r.dtsBase = dtsBase
	r.dtsBaseInited = true
	Log.Debugf("[%s] dts base. %d", r.uniqueKey, dtsBase)
}

// calcDtsCorrection 没有nextDts时，通过segment索引中firstOriginalDts之前的最后一个sample推算校正值
func (r *Mp4Remuxer) calcDtsCorrection(list *MediaSegmentInfoList, firstOriginalDts int64) int64 {
	if list.IsEmpty() {
		return 0
	}
	last, ok := list.GetLastSampleBefore(firstOriginalDts)
	if !ok {
		return 0
	}
	distance := firstOriginalDts - (last.OriginalDts + last.Duration)
	if distance <= 3 {
		distance = 0
	}
	expectedDts := last.Dts + last.Duration + distance
	return firstOriginalDts - expectedDts
}

func newSegmentInfo(samples []fmp4.Sample) *base.MediaSegmentInfo {
	first := &samples[0]
	last := &samples[len(samples)-1]
	return &base.MediaSegmentInfo{
		BeginDts:         first.Dts,
		EndDts:           last.Dts + last.Duration,
		BeginPts:         first.Pts,
		EndPts:           last.Pts + last.Duration,
		OriginalBeginDts: first.OriginalDts,
		OriginalEndDts:   last.OriginalDts + last.Duration,
		FirstSample:      sampleInfoOf(first),
		LastSample:       sampleInfoOf(last),
	}
}

func sampleInfoOf(s *fmp4.Sample) base.SampleInfo {
	return base.SampleInfo{
		Dts:         s.Dts,
		Pts:         s.Pts,
		Duration:    s.Duration,
		OriginalDts: s.OriginalDts,
		IsSyncPoint: s.Flags.IsNonSync == 0 && s.Flags.DependsOn == 2,
	}
}

func (r *Mp4Remuxer) emitMediaSegment(typ base.TrackType, tf *fmp4.TrackFragment, mdat []byte, info *base.MediaSegmentInfo) {
	seg := base.MediaSegment{
		Type:        typ,
		Data:        fmp4.GenerateMediaSegment(tf, mdat),
		SampleCount: len(tf.Samples),
		BeginDts:    info.BeginDts,
		EndDts:      info.EndDts,
		BeginPts:    info.BeginPts,
		EndPts:      info.EndPts,
		Info:        info,
	}
	Log.Tracef("[%s] media segment. %s", r.uniqueKey, seg.DebugString())
	r.observer.OnMediaSegment(seg)
}
