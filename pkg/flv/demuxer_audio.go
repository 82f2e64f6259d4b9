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

	"github.com/q191201771/lalfmp4/pkg/aac"
	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/naza/pkg/nazabits"
)

// AudioTagHeader audio tag body的第一个字节
type AudioTagHeader struct {
	SoundFormat uint8 // [4b] 10=AAC
	SoundRate   uint8 // [2b] 3=44kHz. AAC always 3
	SoundSize   uint8 // [1b] 0=snd8Bit, 1=snd16Bit
	SoundType   uint8 // [1b] 0=sndMono, 1=sndStereo. AAC always 1
}

func ParseAudioTagHeader(b []byte) (h AudioTagHeader, err error) {
	if len(b) < 1 {
		return h, ErrTagTooShort
	}
	br := nazabits.NewBitReader(b)
	h.SoundFormat, _ = br.ReadBits8(4)
	h.SoundRate, _ = br.ReadBits8(2)
	h.SoundSize, _ = br.ReadBits8(1)
	h.SoundType, _ = br.ReadBits8(1)
	return h, nil
}

func (d *Demuxer) parseAudioData(body []byte, tagTimestamp uint32) {
	if len(body) <= 1 {
		Log.Warnf("[%s] flv: invalid audio packet, missing SoundData payload.", d.uniqueKey)
		return
	}
	if d.hasAudioFlagOverrided && !d.hasAudio {
		// 强制不要音频
		return
	}
	if d.audioHalted {
		return
	}

	h, _ := ParseAudioTagHeader(body)
	if h.SoundFormat != SoundFormatAac {
		d.reportError(true, base.DemuxErrorKindCodecUnsupported, "flv: unsupported audio codec idx: %d", h.SoundFormat)
		return
	}
	if int(h.SoundRate) >= len(soundRateTable) {
		d.reportError(true, base.DemuxErrorKindFormatError, "flv: invalid audio sample rate idx: %d", h.SoundRate)
		return
	}

	meta := d.audioMetadata
	if meta == nil {
		if !d.hasAudio && !d.hasAudioFlagOverrided {
			d.hasAudio = true
			d.mediaInfo.HasAudio = true
		}
		channelCount := 2
		if h.SoundType == 0 {
			channelCount = 1
		}
		meta = &base.AudioMetadata{
			Id:           d.audioTrack.Id,
			Timescale:    base.TimescaleMs,
			Duration:     d.duration,
			SampleRate:   soundRateTable[h.SoundRate],
			ChannelCount: channelCount,
		}
		d.audioMetadata = meta
	}

	d.parseAacAudioData(body[1:], tagTimestamp, meta)
}

func (d *Demuxer) parseAacAudioData(b []byte, tagTimestamp uint32, meta *base.AudioMetadata) {
	if len(b) <= 1 {
		Log.Warnf("[%s] flv: invalid AAC packet, missing AACPacketType or/and Data.", d.uniqueKey)
		return
	}

	switch b[0] {
	case AacPacketTypeSeqHeader:
		asc, err := aac.ParseAudioSpecificConfig(b[1:], d.config.AacProfilePolicy)
		if err != nil {
			d.reportError(true, base.DemuxErrorKindFormatError, "flv: invalid AAC AudioSpecificConfig. err=%+v", err)
			return
		}
		if meta.Config != nil {
			if bytes.Equal(meta.Config, asc.Config) {
				// 重复的配置，忽略
				return
			}
			Log.Warnf("[%s] AudioSpecificConfig has been changed, re-generate initialization segment.", d.uniqueKey)
		}

		// 拷贝一份，方便下游跨协程使用
		m := *meta
		m.SampleRate = asc.SamplingFrequency
		m.ChannelCount = asc.ChannelCount
		m.Codec = asc.Codec
		m.OriginalCodec = asc.OriginalCodec
		m.OriginalObjectType = int(asc.OriginalAudioObjectType)
		m.Config = asc.Config
		m.Duration = d.duration
		m.RefSampleDuration = aac.RefSampleDuration(asc.SamplingFrequency) * float64(m.Timescale) / base.TimescaleMs
		d.audioMetadata = &m

		d.dispatchTrackMetadata(base.TrackMetadata{Type: base.TrackTypeAudio, Audio: &m})

		mi := &d.mediaInfo
		mi.AudioCodec = m.OriginalCodec
		mi.AudioSampleRate = m.SampleRate
		mi.AudioChannelCount = m.ChannelCount
		d.updateMimeType()
		d.notifyMediaInfoIfComplete()

	case AacPacketTypeRaw:
		if meta.Config == nil {
			if d.audioDropLogDump.ShouldDump() {
				Log.Warnf("[%s] AAC raw frame before AudioSpecificConfig, drop. count=%d", d.uniqueKey, d.audioDropLogDump.Count())
			}
			return
		}
		dts := d.timestampBase + int64(tagTimestamp)
		unit := b[1:]
		d.audioTrack.Append(base.AudioSample{
			Unit:   unit,
			Length: len(unit),
			Dts:    dts,
			Pts:    dts,
		})

	default:
		d.reportError(true, base.DemuxErrorKindFormatError, "flv: unsupported AAC data type %d", b[0])
	}
}
