// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package flv

import (
	"bytes"

	"github.com/q191201771/lalfmp4/pkg/av1"
	"github.com/q191201771/lalfmp4/pkg/avc"
	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/lalfmp4/pkg/h2645"
	"github.com/q191201771/lalfmp4/pkg/hevc"
	"github.com/q191201771/naza/pkg/bele"
)

func (d *Demuxer) parseVideoData(body []byte, tagTimestamp uint32, tagPosition int64) {
	if len(body) <= 1 {
		Log.Warnf("[%s] flv: invalid video packet, missing VideoData payload.", d.uniqueKey)
		return
	}
	if d.hasVideoFlagOverrided && !d.hasVideo {
		// 强制不要视频
		return
	}
	if d.videoHalted {
		return
	}

	spec := body[0]
	if spec&ExHeaderFlag != 0 {
		d.parseEnhancedVideoData(body, tagTimestamp, tagPosition)
		return
	}

	frameType := spec >> 4
	codecId := spec & 0x0F
	if frameType == FrameTypeVideoInfoCmd {
		return
	}

	var codecType base.VideoCodecType
	switch codecId {
	case CodecIdAvc:
		codecType = base.VideoCodecTypeAvc
	case CodecIdHevc:
		codecType = base.VideoCodecTypeHevc
	default:
		d.reportError(false, base.DemuxErrorKindCodecUnsupported, "flv: unsupported codec in video frame: %d", codecId)
		return
	}

	b := body[1:]
	if len(b) < 4 {
		Log.Warnf("[%s] flv: invalid video packet, missing PacketType or/and CompositionTime.", d.uniqueKey)
		return
	}
	packetType := b[0]
	cts := readSi24(b[1:])
	switch packetType {
	case AvcPacketTypeSeqHeader:
		d.parseVideoConfigRecord(codecType, b[4:])
	case AvcPacketTypeNalu:
		d.parseVideoFrame(codecType, b[4:], tagTimestamp, tagPosition, frameType, cts)
	case AvcPacketTypeEndOfSeq:
		// empty
	default:
		d.reportError(false, base.DemuxErrorKindFormatError, "flv: invalid video packet type %d", packetType)
	}
}

func (d *Demuxer) parseEnhancedVideoData(body []byte, tagTimestamp uint32, tagPosition int64) {
	if len(body) < 5 {
		Log.Warnf("[%s] flv: invalid enhanced video packet, missing FourCC.", d.uniqueKey)
		return
	}
	frameType := (body[0] >> 4) & 0x07
	packetType := body[0] & 0x0F
	fourCc := body[1:5]

	var codecType base.VideoCodecType
	switch {
	case bytes.Equal(fourCc, FourCcAvc):
		codecType = base.VideoCodecTypeAvc
	case bytes.Equal(fourCc, FourCcHevc):
		codecType = base.VideoCodecTypeHevc
	case bytes.Equal(fourCc, FourCcAv1):
		codecType = base.VideoCodecTypeAv1
	default:
		d.reportError(false, base.DemuxErrorKindCodecUnsupported, "flv: unsupported enhanced video codec: %q", fourCc)
		return
	}
	if frameType == FrameTypeVideoInfoCmd && packetType != PacketTypeMetadata {
		return
	}

	payload := body[5:]
	switch packetType {
	case PacketTypeSequenceStart:
		d.parseVideoConfigRecord(codecType, payload)
	case PacketTypeCodedFrames:
		var cts int32
		if codecType != base.VideoCodecTypeAv1 {
			if len(payload) < 3 {
				Log.Warnf("[%s] flv: invalid enhanced video packet, missing CompositionTime.", d.uniqueKey)
				return
			}
			cts = readSi24(payload)
			payload = payload[3:]
		}
		d.parseVideoFrame(codecType, payload, tagTimestamp, tagPosition, frameType, cts)
	case PacketTypeCodedFramesX:
		d.parseVideoFrame(codecType, payload, tagTimestamp, tagPosition, frameType, 0)
	case PacketTypeSequenceEnd, PacketTypeMetadata:
		// noop
	default:
		d.reportError(false, base.DemuxErrorKindFormatError, "flv: invalid enhanced video packet type %d", packetType)
	}
}

// parseVideoConfigRecord avcC、hvcC、av1C
func (d *Demuxer) parseVideoConfigRecord(codecType base.VideoCodecType, record []byte) {
	meta := d.videoMetadata
	if meta == nil {
		if !d.hasVideo && !d.hasVideoFlagOverrided {
			d.hasVideo = true
			d.mediaInfo.HasVideo = true
		}
	} else {
		if meta.CodecType == codecType && bytes.Equal(meta.ConfigRecord, record) {
			// 重复的配置，忽略
			return
		}
		Log.Warnf("[%s] video DecoderConfigurationRecord has been changed, re-generate initialization segment. codec=%s",
			d.uniqueKey, codecType)
	}

	var (
		cp         base.CodecParameters
		lengthSize = 4
		err        error
	)
	switch codecType {
	case base.VideoCodecTypeAvc:
		var dcr avc.DecoderConfigurationRecord
		if dcr, err = avc.ParseDecoderConfigurationRecord(record); err != nil {
			d.reportError(false, base.DemuxErrorKindFormatError, "flv: invalid AVCDecoderConfigurationRecord. err=%+v", err)
			return
		}
		if cp, err = avc.ParseSps(dcr.SpsList[0]); err != nil {
			d.reportError(false, base.DemuxErrorKindFormatError, "flv: parse avc sps failed. err=%+v", err)
			return
		}
		cp.Codec = avc.ParseCodecString(dcr.SpsList[0])
		lengthSize = dcr.LengthSize
	case base.VideoCodecTypeHevc:
		var dcr hevc.DecoderConfigurationRecord
		if dcr, err = hevc.ParseDecoderConfigurationRecord(record); err != nil {
			d.reportError(false, base.DemuxErrorKindFormatError, "flv: invalid HEVCDecoderConfigurationRecord. err=%+v", err)
			return
		}
		if cp, err = hevc.ParseSps(dcr.SpsList[0]); err != nil {
			d.reportError(false, base.DemuxErrorKindFormatError, "flv: parse hevc sps failed. err=%+v", err)
			return
		}
		lengthSize = dcr.LengthSize
	case base.VideoCodecTypeAv1:
		var ccr av1.CodecConfigurationRecord
		if ccr, err = av1.ParseCodecConfigurationRecord(record); err != nil {
			d.reportError(false, base.DemuxErrorKindFormatError, "flv: invalid AV1CodecConfigurationRecord. err=%+v", err)
			return
		}
		if ccr.SequenceHeaderObu == nil {
			d.reportError(false, base.DemuxErrorKindFormatError, "flv: AV1CodecConfigurationRecord without sequence header")
			return
		}
		if cp, err = av1.ParseSequenceHeaderObu(ccr.SequenceHeaderObu); err != nil {
			d.reportError(false, base.DemuxErrorKindFormatError, "flv: parse av1 sequence header failed. err=%+v", err)
			return
		}
	}

	if !cp.ChromaFormat.IsValid() {
		d.reportError(false, base.DemuxErrorKindFormatError, "flv: invalid chroma format. codec=%s", cp.Codec)
		return
	}
	if !cp.FrameRate.IsValid() {
		cp.FrameRate = d.referenceFrameRate
	}
	d.naluLengthSize = lengthSize

	configRecord := make([]byte, len(record))
	copy(configRecord, record)
	m := &base.VideoMetadata{
		Id:                d.videoTrack.Id,
		Timescale:         base.TimescaleMs,
		Duration:          d.duration,
		CodecType:         codecType,
		Codec:             cp.Codec,
		Params:            cp,
		ConfigRecord:      configRecord,
		RefSampleDuration: float64(base.TimescaleMs) * float64(cp.FrameRate.Den) / float64(cp.FrameRate.Num),
	}
	d.videoMetadata = m
	Log.Debugf("[%s] video config. %s", d.uniqueKey, cp.String())

	mi := &d.mediaInfo
	mi.Width = cp.CodecSize.Width
	mi.Height = cp.CodecSize.Height
	mi.Fps = cp.FrameRate.Fps()
	mi.Profile = cp.Profile
	mi.Level = cp.Level
	mi.RefFrames = cp.RefFrames
	mi.ChromaFormat = cp.ChromaFormat.String()
	mi.SarNum = cp.SarRatio.Width
	mi.SarDen = cp.SarRatio.Height
	mi.VideoCodec = cp.Codec
	mi.VideoConfigured = true
	d.updateMimeType()
	d.notifyMediaInfoIfComplete()

	d.dispatchTrackMetadata(base.TrackMetadata{Type: base.TrackTypeVideo, Video: m})
}

// parseVideoFrame
//
// h264、h265的数据是以长度为前缀的nalu，av1的数据整体作为一个unit
func (d *Demuxer) parseVideoFrame(codecType base.VideoCodecType, b []byte, tagTimestamp uint32, tagPosition int64, frameType uint8, cts int32) {
	if d.videoMetadata == nil {
		if d.videoDropLogDump.ShouldDump() {
			Log.Warnf("[%s] video frame before DecoderConfigurationRecord, drop. count=%d", d.uniqueKey, d.videoDropLogDump.Count())
		}
		return
	}
	if d.videoMetadata.CodecType != codecType {
		if d.videoDropLogDump.ShouldDump() {
			Log.Warnf("[%s] video frame codec mismatch, drop. expected=%s, actual=%s, count=%d",
				d.uniqueKey, d.videoMetadata.CodecType, codecType, d.videoDropLogDump.Count())
		}
		return
	}

	dts := d.timestampBase + int64(tagTimestamp)
	keyframe := frameType == FrameTypeKey

	var units []base.NaluUnit
	length := 0
	if codecType == base.VideoCodecTypeAv1 {
		if len(b) != 0 {
			units = append(units, base.NaluUnit{Data: b})
			length = len(b)
		}
	} else {
		isH264 := codecType == base.VideoCodecTypeAvc
		offset := 0
		for offset < len(b) {
			if offset+d.naluLengthSize >= len(b) {
				Log.Warnf("[%s] malformed nalus near timestamp %d, offset=%d, dataSize=%d", d.uniqueKey, dts, offset, len(b))
				break
			}
			naluSize := readNaluLength(b[offset:], d.naluLengthSize)
			if naluSize > len(b)-offset-d.naluLengthSize {
				Log.Warnf("[%s] malformed nalus near timestamp %d, NaluSize > DataSize.", d.uniqueKey, dts)
				return
			}
			data := b[offset : offset+d.naluLengthSize+naluSize]
			var t uint8
			if naluSize > 0 {
				t = h2645.ParseNaluType(isH264, b[offset+d.naluLengthSize])
				if h2645.IsKeyNalu(isH264, t) {
					keyframe = true
				}
			}
			units = append(units, base.NaluUnit{Type: t, Data: data})
			length += len(data)
			offset += d.naluLengthSize + naluSize
		}
	}

	if len(units) == 0 {
		return
	}
	sample := base.VideoSample{
		Units:      units,
		Length:     length,
		IsKeyframe: keyframe,
		Dts:        dts,
		Cts:        int64(cts),
		Pts:        dts + int64(cts),
	}
	if keyframe {
		sample.FilePosition = tagPosition
	}
	d.videoTrack.Append(sample)
}

func readSi24(b []byte) int32 {
	return int32(bele.BeUint24(b)<<8) >> 8
}

func readNaluLength(b []byte, lengthSize int) int {
	if lengthSize == 3 {
		return int(bele.BeUint24(b))
	}
	return int(bele.BeUint32(b))
}
