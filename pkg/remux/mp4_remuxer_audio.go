// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package remux

import (
	"math"

	"github.com/q191201771/lalfmp4/pkg/aac"
	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/lalfmp4/pkg/fmp4"
)

// 音频时间戳与期望值相差超过多少帧时，丢帧或者补静音帧
const maxAudioFramesDrift = 3

func (r *Mp4Remuxer) remuxAudio(track *base.AudioTrack, force bool) {
	if r.audioMeta == nil {
		return
	}
	if len(track.Samples) == 0 {
		return
	}
	if len(track.Samples) == 1 && !force {
		return
	}

	samples := make([]base.AudioSample, 0, len(track.Samples)+1)
	if r.audioStashedLastSample != nil {
		samples = append(samples, *r.audioStashedLastSample)
		r.audioStashedLastSample = nil
	}
	if len(track.Samples) > 1 {
		last := track.Samples[len(track.Samples)-1]
		r.audioStashedLastSample = &last
		samples = append(samples, track.Samples[:len(track.Samples)-1]...)
	} else {
		samples = append(samples, track.Samples...)
	}
	track.Clear()

	firstOriginalDts := samples[0].Dts - r.dtsBase
	var dtsCorrection int64
	if !r.audioNextDtsValid {
		dtsCorrection = r.calcDtsCorrection(r.audioSegmentInfoList, firstOriginalDts)
	}

	refDuration := r.audioMeta.RefSampleDuration
	mp4Samples := make([]fmp4.Sample, 0, len(samples))
	var mdat []byte
	appendSample := func(dts, duration, originalDts int64, unit []byte) {
		mp4Samples = append(mp4Samples, fmp4.Sample{
			Dts:         dts,
			Pts:         dts,
			Duration:    duration,
			Size:        len(unit),
			Flags:       fmp4.SampleFlagsAudio,
			OriginalDts: originalDts,
		})
		mdat = append(mdat, unit...)
	}

	for i := range samples {
		s := &samples[i]
		originalDts := s.Dts - r.dtsBase
		if originalDts < 0 {
			// 时间戳比dtsBase还小，丢弃
			continue
		}

		// aac的时间戳按帧时长累加，与源时间戳比较判断是否需要丢帧或者补帧
		curRefDts := float64(originalDts - dtsCorrection)
		if r.audioNextDtsValid {
			curRefDts = r.audioNextDts
		}
		drift := float64(originalDts) - curRefDts

		if drift <= -maxAudioFramesDrift*refDuration {
			Log.Warnf("[%s] dropping 1 audio frame due to overlap. originalDts=%d, curRefDts=%.3f, drift=%.3f",
				r.uniqueKey, originalDts, curRefDts, drift)
			continue
		}

		if drift >= maxAudioFramesDrift*refDuration && r.config.FixAudioTimestampGap {
			frameCount := int(math.Floor(drift / refDuration))
			Log.Warnf("[%s] large audio timestamp gap, fill silent frames. originalDts=%d, curRefDts=%.3f, drift=%.3f, count=%d",
				r.uniqueKey, originalDts, curRefDts, drift, frameCount)

			silentUnit := aac.GetSilentFrame(r.audioMeta.OriginalCodec, r.audioMeta.ChannelCount)
			if silentUnit == nil {
				Log.Warnf("[%s] unable to generate silent frame, duplicate current frame instead. codec=%s, channel=%d",
					r.uniqueKey, r.audioMeta.OriginalCodec, r.audioMeta.ChannelCount)
				silentUnit = s.Unit
			}
			for j := 0; j < frameCount; j++ {
				dts := int64(math.Floor(curRefDts))
				appendSample(dts, int64(math.Floor(curRefDts+refDuration))-dts, originalDts, silentUnit)
				curRefDts += refDuration
			}
		}

		dts := int64(math.Floor(curRefDts))
		appendSample(dts, int64(math.Floor(curRefDts+refDuration))-dts, originalDts, s.Unit)
		r.audioNextDts = curRefDts + refDuration
		r.audioNextDtsValid = true
	}

	if len(mp4Samples) == 0 {
		return
	}

	info := newSegmentInfo(mp4Samples)
	if !r.config.IsLive {
		r.audioSegmentInfoList.Append(info)
	}

	r.audioSequenceNumber++
	tf := &fmp4.TrackFragment{
		Id:                  r.audioMeta.Id,
		SequenceNumber:      r.audioSequenceNumber,
		BaseMediaDecodeTime: mp4Samples[0].Dts,
		Samples:             mp4Samples,
	}
	r.emitMediaSegment(base.TrackTypeAudio, tf, mdat, info)
}
