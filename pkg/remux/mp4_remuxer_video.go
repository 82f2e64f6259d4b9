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

	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/lalfmp4/pkg/fmp4"
)

func (r *Mp4Remuxer) remuxVideo(track *base.VideoTrack, force bool) {
	if r.videoMeta == nil {
		return
	}
	if len(track.Samples) == 0 {
		return
	}
	if len(track.Samples) == 1 && !force {
		// 只有一个sample时无法计算时长，留到下一次
		return
	}

	samples := make([]base.VideoSample, 0, len(track.Samples)+1)
	if r.videoStashedLastSample != nil {
		samples = append(samples, *r.videoStashedLastSample)
		r.videoStashedLastSample = nil
	}
	var nextSample *base.VideoSample
	if len(track.Samples) > 1 {
		last := track.Samples[len(track.Samples)-1]
		nextSample = &last
		samples = append(samples, track.Samples[:len(track.Samples)-1]...)
	} else {
		samples = append(samples, track.Samples...)
	}
	r.videoStashedLastSample = nextSample
	track.Clear()

	firstOriginalDts := samples[0].Dts - r.dtsBase
	var dtsCorrection int64
	if r.videoNextDtsValid {
		dtsCorrection = firstOriginalDts - r.videoNextDts
	} else {
		dtsCorrection = r.calcDtsCorrection(r.videoSegmentInfoList, firstOriginalDts)
	}

	refDuration := r.videoMeta.RefSampleDuration
	mp4Samples := make([]fmp4.Sample, 0, len(samples))
	var syncPoints []base.SampleInfo
	mdatSize := 0
	for i := range samples {
		s := &samples[i]
		originalDts := s.Dts - r.dtsBase
		dts := originalDts - dtsCorrection
		cts := s.Cts
		pts := dts + cts

		var duration int64
		if i != len(samples)-1 {
			duration = samples[i+1].Dts - r.dtsBase - dtsCorrection - dts
		} else {
			duration = -1
			if nextSample != nil {
				d := nextSample.Dts - r.dtsBase - dtsCorrection - dts
				if d >= 0 && float64(d) <= 2*refDuration {
					duration = d
				}
			}
			if duration < 0 {
				if len(mp4Samples) > 0 {
					duration = mp4Samples[len(mp4Samples)-1].Duration
				} else {
					duration = int64(math.Floor(refDuration))
				}
			}
		}

		flags := fmp4.SampleFlagsNonKeyframe
		if s.IsKeyframe {
			flags = fmp4.SampleFlagsKeyframe
			syncPoints = append(syncPoints, base.SampleInfo{
				Dts:          dts,
				Pts:          pts,
				Duration:     duration,
				OriginalDts:  originalDts,
				IsSyncPoint:  true,
				FilePosition: s.FilePosition,
			})
		}

		mp4Samples = append(mp4Samples, fmp4.Sample{
			Dts:         dts,
			Pts:         pts,
			Cts:         cts,
			Duration:    duration,
			Size:        s.Length,
			Flags:       flags,
			OriginalDts: originalDts,
		})
		mdatSize += s.Length
	}

	mdat := make([]byte, 0, mdatSize)
	for i := range samples {
		for _, unit := range samples[i].Units {
			mdat = append(mdat, unit.Data...)
		}
	}

	last := &mp4Samples[len(mp4Samples)-1]
	r.videoNextDts = last.Dts + last.Duration
	r.videoNextDtsValid = true

	info := newSegmentInfo(mp4Samples)
	info.SyncPoints = syncPoints
	if !r.config.IsLive {
		r.videoSegmentInfoList.Append(info)
	}

	if r.config.ForceFirstIdr {
		mp4Samples[0].Flags.DependsOn = 2
		mp4Samples[0].Flags.IsNonSync = 0
	}

	r.videoSequenceNumber++
	tf := &fmp4.TrackFragment{
		Id:                  r.videoMeta.Id,
		SequenceNumber:      r.videoSequenceNumber,
		BaseMediaDecodeTime: mp4Samples[0].Dts,
		Samples:             mp4Samples,
	}
	r.emitMediaSegment(base.TrackTypeVideo, tf, mdat, info)
}
