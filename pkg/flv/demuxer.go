// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package flv

import (
	"fmt"
	"math"

	"github.com/q191201771/lalfmp4/pkg/aac"
	"github.com/q191201771/lalfmp4/pkg/amf0"
	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/naza/pkg/bele"
)

type IDemuxerObserver interface {
	// OnError 无法继续解析某个track时回调，同一个track只回调一次
	OnError(err *base.DemuxError)

	// OnMediaInfo 每次媒体信息有更新并且完整时回调
	OnMediaInfo(mi base.MediaInfo)

	// OnMetadataArrived onMetaData的内容，不包含keyframes
	OnMetadataArrived(metadata amf0.ObjectPairArray)

	// OnScriptDataArrived 所有script data tag
	OnScriptDataArrived(name string, value interface{})

	// OnTrackMetadata 音频或视频的配置（新的或者发生了变化）
	OnTrackMetadata(meta base.TrackMetadata)

	// OnDataAvailable 有音视频帧待处理
	//
	// 注意，track的所有权仍属于Demuxer，但消费方处理完后应自行清空（Clear）已消费的帧，未清空的帧会在下次回调时继续携带
	//
	OnDataAvailable(audioTrack *base.AudioTrack, videoTrack *base.VideoTrack)
}

type DemuxerConfig struct {
	AacProfilePolicy aac.ProfilePolicy
}

// 同一类丢帧日志最多打印的次数
const dropLogMaxNum = 8

type Demuxer struct {
	uniqueKey string
	config    DemuxerConfig
	observer  IDemuxerObserver

	dataOffset int
	firstParse bool
	dispatch   bool

	hasAudio              bool
	hasVideo              bool
	hasAudioFlagOverrided bool
	hasVideoFlagOverrided bool

	durationOverrided bool
	duration          int64
	timestampBase     int64

	audioInitialMetadataDispatched bool
	videoInitialMetadataDispatched bool
	// 出现了无法恢复的错误，后续该track的tag都忽略
	audioHalted bool
	videoHalted bool

	mediaInfo base.MediaInfo
	metadata  amf0.ObjectPairArray

	audioMetadata      *base.AudioMetadata
	videoMetadata      *base.VideoMetadata
	naluLengthSize     int
	referenceFrameRate base.FrameRate

	audioTrack base.AudioTrack
	videoTrack base.VideoTrack

	audioDropLogDump base.LogDump
	videoDropLogDump base.LogDump
}

func NewDemuxer(probe ProbeResult, config DemuxerConfig, observer IDemuxerObserver) (*Demuxer, error) {
	if observer == nil {
		return nil, base.ErrNilObserver
	}
	d := &Demuxer{
		uniqueKey:          base.GenUkFlvDemuxer(),
		config:             config,
		observer:           observer,
		dataOffset:         probe.DataOffset,
		firstParse:         true,
		hasAudio:           probe.HasAudioTrack,
		hasVideo:           probe.HasVideoTrack,
		naluLengthSize:     4,
		referenceFrameRate: base.DefaultReferenceFps,
		audioTrack:         base.AudioTrack{Id: base.AudioTrackId},
		videoTrack:         base.VideoTrack{Id: base.VideoTrackId},
		audioDropLogDump:   base.NewLogDump(Log, dropLogMaxNum),
		videoDropLogDump:   base.NewLogDump(Log, dropLogMaxNum),
	}
	d.mediaInfo.HasAudio = d.hasAudio
	d.mediaInfo.HasVideo = d.hasVideo
	Log.Infof("[%s] lifecycle new flv demuxer. probe=%+v, policy=%s", d.uniqueKey, probe, config.AacProfilePolicy)
	return d, nil
}

func (d *Demuxer) UniqueKey() string {
	return d.uniqueKey
}

func (d *Demuxer) Dispose() {
	Log.Infof("[%s] lifecycle dispose flv demuxer.", d.uniqueKey)
	d.audioTrack.Clear()
	d.videoTrack.Clear()
}

// TimestampBase 多分片场景下，当前分片的起始时间，单位毫秒，会加到所有帧的时间戳上
func (d *Demuxer) TimestampBase() int64 {
	return d.timestampBase
}

func (d *Demuxer) SetTimestampBase(ms int64) {
	d.timestampBase = ms
}

// OverrideDuration 使用外部传入的时长，忽略onMetaData中的duration
func (d *Demuxer) OverrideDuration(ms int64) {
	d.durationOverrided = true
	d.duration = ms
	d.mediaInfo.Duration = ms
}

func (d *Demuxer) OverrideHasAudio(hasAudio bool) {
	d.hasAudioFlagOverrided = true
	d.hasAudio = hasAudio
	d.mediaInfo.HasAudio = hasAudio
}

func (d *Demuxer) OverrideHasVideo(hasVideo bool) {
	d.hasVideoFlagOverrided = true
	d.hasVideo = hasVideo
	d.mediaInfo.HasVideo = hasVideo
}

// ResetMediaInfo 跨分片seek时使用，丢弃上一个分片的媒体信息
func (d *Demuxer) ResetMediaInfo() {
	d.mediaInfo = base.MediaInfo{
		HasAudio: d.hasAudio,
		HasVideo: d.hasVideo,
	}
	if d.durationOverrided {
		d.mediaInfo.Duration = d.duration
	}
}

// MediaInfo 返回值为拷贝
func (d *Demuxer) MediaInfo() base.MediaInfo {
	return *d.mediaInfo.Clone()
}

// PendingTracks 还没有被消费的音视频帧，流结束时由调用方取出做最后的处理
func (d *Demuxer) PendingTracks() (*base.AudioTrack, *base.VideoTrack) {
	return &d.audioTrack, &d.videoTrack
}

// ParseChunks 解析flv数据
//
// @param chunk:     函数调用结束后，内部会持有该内存块（音视频帧引用），调用方不应再修改
// @param byteStart: chunk在整个流中的绝对位置
//
// @return 消费的字节数，剩余部分（不完整的tag）需要调用方缓存，下次拼接在前面再传入
func (d *Demuxer) ParseChunks(chunk []byte, byteStart int64) int {
	offset := 0

	// 从头开始的流，需要跳过flv header
	if byteStart == 0 {
		if len(chunk) <= FlvHeaderSize+PrevTagSizeFieldSize {
			return 0
		}
		probe := Probe(chunk)
		if !probe.Match {
			d.audioHalted, d.videoHalted = true, true
			d.observer.OnError(base.NewDemuxError(base.DemuxErrorKindFormatUnsupported, "flv: non-flv, unsupported media type"))
			return 0
		}
		if probe.DataOffset+PrevTagSizeFieldSize > len(chunk) {
			return 0
		}
		offset = probe.DataOffset
		if !d.firstParse {
			// 重新从头开始读，e.g. seek到0
			offset += PrevTagSizeFieldSize
		}
	}

	if d.firstParse {
		if len(chunk)-offset < PrevTagSizeFieldSize {
			return offset
		}
		d.firstParse = false
		if byteStart+int64(offset) != int64(d.dataOffset) {
			Log.Warnf("[%s] first time parsing but chunk byteStart invalid. byteStart=%d, offset=%d, dataOffset=%d",
				d.uniqueKey, byteStart, offset, d.dataOffset)
		}
		prevTagSize0 := bele.BeUint32(chunk[offset:])
		if prevTagSize0 != 0 {
			Log.Warnf("[%s] PrevTagSize0 !== 0. value=%d", d.uniqueKey, prevTagSize0)
		}
		offset += PrevTagSizeFieldSize
	}

	for offset < len(chunk) {
		d.dispatch = true

		if offset+TagHeaderSize+PrevTagSizeFieldSize > len(chunk) {
			// 数据不够一个tag header
			break
		}
		h, _ := ParseTagHeader(chunk[offset:])
		tagSize := TagHeaderSize + int(h.DataSize)
		if offset+tagSize+PrevTagSizeFieldSize > len(chunk) {
			// 数据不够一个完整的tag
			break
		}

		if h.Type != TagTypeAudio && h.Type != TagTypeVideo && h.Type != TagTypeScriptData {
			Log.Warnf("[%s] unsupported tag type, skip. type=%d", d.uniqueKey, h.Type)
			offset += tagSize + PrevTagSizeFieldSize
			continue
		}

		if h.StreamId != 0 {
			Log.Warnf("[%s] meet tag which has StreamID != 0. streamId=%d", d.uniqueKey, h.StreamId)
		}

		body := chunk[offset+TagHeaderSize : offset+tagSize]
		switch h.Type {
		case TagTypeAudio:
			d.parseAudioData(body, h.Timestamp)
		case TagTypeVideo:
			d.parseVideoData(body, h.Timestamp, byteStart+int64(offset))
		case TagTypeScriptData:
			d.parseScriptData(body)
		}

		prevTagSize := bele.BeUint32(chunk[offset+tagSize:])
		if prevTagSize != uint32(tagSize) {
			Log.Warnf("[%s] invalid PrevTagSize. expected=%d, actual=%d", d.uniqueKey, tagSize, prevTagSize)
		}

		offset += tagSize + PrevTagSizeFieldSize
	}

	// 所有track的配置都已经通知给上层后，才开始吐帧
	if d.isInitialMetadataDispatched() {
		if d.dispatch && (d.audioTrack.Length != 0 || d.videoTrack.Length != 0) {
			d.observer.OnDataAvailable(&d.audioTrack, &d.videoTrack)
		}
	}

	return offset
}

// ---------------------------------------------------------------------------------------------------------------------

func (d *Demuxer) isInitialMetadataDispatched() bool {
	if d.hasAudio && d.hasVideo {
		return d.audioInitialMetadataDispatched && d.videoInitialMetadataDispatched
	}
	if d.hasAudio {
		return d.audioInitialMetadataDispatched
	}
	if d.hasVideo {
		return d.videoInitialMetadataDispatched
	}
	return false
}

// dispatchTrackMetadata 如果是配置变化，先将旧配置下的帧吐出去，再通知新的配置
func (d *Demuxer) dispatchTrackMetadata(meta base.TrackMetadata) {
	if d.isInitialMetadataDispatched() {
		if d.dispatch && (d.audioTrack.Length != 0 || d.videoTrack.Length != 0) {
			d.observer.OnDataAvailable(&d.audioTrack, &d.videoTrack)
		}
	} else {
		switch meta.Type {
		case base.TrackTypeAudio:
			d.audioInitialMetadataDispatched = true
		case base.TrackTypeVideo:
			d.videoInitialMetadataDispatched = true
		}
	}
	d.dispatch = false
	d.observer.OnTrackMetadata(meta)
}

func (d *Demuxer) updateMimeType() {
	mi := &d.mediaInfo
	switch {
	case mi.HasAudio && mi.HasVideo:
		if mi.AudioCodec != "" && mi.VideoCodec != "" {
			mi.MimeType = fmt.Sprintf(`video/x-flv; codecs="%s,%s"`, mi.VideoCodec, mi.AudioCodec)
		}
	case mi.HasAudio:
		if mi.AudioCodec != "" {
			mi.MimeType = fmt.Sprintf(`video/x-flv; codecs="%s"`, mi.AudioCodec)
		}
	case mi.HasVideo:
		if mi.VideoCodec != "" {
			mi.MimeType = fmt.Sprintf(`video/x-flv; codecs="%s"`, mi.VideoCodec)
		}
	}
}

func (d *Demuxer) notifyMediaInfoIfComplete() {
	if d.mediaInfo.IsComplete() {
		d.observer.OnMediaInfo(*d.mediaInfo.Clone())
	}
}

// reportError
//
// @param isAudio: 出错的track，该track后续的tag都被忽略
func (d *Demuxer) reportError(isAudio bool, kind base.DemuxErrorKind, format string, v ...interface{}) {
	err := base.NewDemuxError(kind, format, v...)
	Log.Errorf("[%s] %s", d.uniqueKey, err.Error())
	if isAudio {
		d.audioHalted = true
	} else {
		d.videoHalted = true
	}
	d.observer.OnError(err)
}

// ----- script data ---------------------------------------------------------------------------------------------------

func (d *Demuxer) parseScriptData(body []byte) {
	name, value, err := amf0.ParseScriptData(body)
	if err != nil {
		Log.Warnf("[%s] parse script data failed. err=%+v", d.uniqueKey, err)
		return
	}

	if name == metadataNameOnMetaData {
		d.parseOnMetaData(value)
	}

	d.observer.OnScriptDataArrived(name, value)
}

func (d *Demuxer) parseOnMetaData(value interface{}) {
	onMetaData, ok := value.(amf0.ObjectPairArray)
	if !ok {
		Log.Warnf("[%s] invalid onMetaData format. type=%T", d.uniqueKey, value)
		return
	}
	if d.metadata != nil {
		Log.Warnf("[%s] found another onMetaData tag.", d.uniqueKey)
	}

	mi := &d.mediaInfo

	if v, err := onMetaData.FindBoolean("hasAudio"); err == nil && !d.hasAudioFlagOverrided {
		d.hasAudio = v
		mi.HasAudio = v
	}
	if v, err := onMetaData.FindBoolean("hasVideo"); err == nil && !d.hasVideoFlagOverrided {
		d.hasVideo = v
		mi.HasVideo = v
	}
	if v, err := onMetaData.FindNumber("audiodatarate"); err == nil {
		mi.AudioDataRate = v
	}
	if v, err := onMetaData.FindNumber("videodatarate"); err == nil {
		mi.VideoDataRate = v
	}
	if v, err := onMetaData.FindNumber("width"); err == nil {
		mi.Width = int(v)
	}
	if v, err := onMetaData.FindNumber("height"); err == nil {
		mi.Height = int(v)
	}
	if v, err := onMetaData.FindNumber("duration"); err == nil {
		if !d.durationOverrided {
			d.duration = int64(math.Floor(v * base.TimescaleMs))
			mi.Duration = d.duration
		}
	} else if !d.durationOverrided {
		mi.Duration = 0
	}
	if v, err := onMetaData.FindNumber("framerate"); err == nil {
		fpsNum := uint32(math.Floor(v * 1000))
		if fpsNum > 0 {
			d.referenceFrameRate = base.FrameRate{Fixed: true, Num: fpsNum, Den: 1000}
			mi.Fps = d.referenceFrameRate.Fps()
		}
	}

	// keyframes单独存放，不放在metadata中
	var others amf0.ObjectPairArray
	mi.KeyframesIndex = nil
	for _, op := range onMetaData {
		if op.Key == "keyframes" {
			if kf, ok := op.Value.(amf0.ObjectPairArray); ok {
				mi.KeyframesIndex = d.parseKeyframesIndex(kf)
			}
			continue
		}
		others = append(others, op)
	}
	if others == nil {
		others = amf0.ObjectPairArray{}
	}
	d.metadata = others
	mi.Metadata = []base.MetadataPair(others)

	d.dispatch = false
	d.observer.OnMetadataArrived(others)
	d.notifyMediaInfoIfComplete()
}

// parseKeyframesIndex 第一个关键帧一般是sequence header所在的位置，跳过
func (d *Demuxer) parseKeyframesIndex(keyframes amf0.ObjectPairArray) *base.KeyframesIndex {
	times, err := keyframes.FindStrictArray("times")
	if err != nil {
		return nil
	}
	positions, err := keyframes.FindStrictArray("filepositions")
	if err != nil {
		return nil
	}
	n := len(times)
	if len(positions) < n {
		n = len(positions)
	}

	ret := &base.KeyframesIndex{
		FirstTagTime:     d.timestampBase,
		FirstTagPosition: uint64(d.dataOffset + PrevTagSizeFieldSize),
	}
	for i := 1; i < n; i++ {
		t, ok1 := times[i].(float64)
		p, ok2 := positions[i].(float64)
		if !ok1 || !ok2 {
			continue
		}
		ret.Times = append(ret.Times, d.timestampBase+int64(math.Floor(t*1000)))
		ret.FilePositions = append(ret.FilePositions, uint64(p))
	}
	return ret
}
