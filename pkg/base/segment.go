// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "fmt"

// SampleInfo 重封装后一个sample的时间信息
type SampleInfo struct {
	Dts          int64
	Pts          int64
	Duration     int64
	OriginalDts  int64
	IsSyncPoint  bool
	FilePosition int64
}

// MediaSegmentInfo 一个fmp4 media segment的时间范围
//
// Begin/End为重封装后校正过的时间轴，OriginalBegin/OriginalEnd为源流的时间轴
type MediaSegmentInfo struct {
	BeginDts int64
	EndDts   int64
	BeginPts int64
	EndPts   int64

	OriginalBeginDts int64
	OriginalEndDts   int64

	SyncPoints  []SampleInfo // 按Dts升序
	FirstSample SampleInfo
	LastSample  SampleInfo
}

func (info *MediaSegmentInfo) AppendSyncPoint(si SampleInfo) {
	si.IsSyncPoint = true
	info.SyncPoints = append(info.SyncPoints, si)
}

// ----- 输出给sink的segment --------------------------------------------------------------------------------------------

type InitSegment struct {
	Type          TrackType
	Container     string // e.g. video/mp4
	Codec         string
	Data          []byte
	MediaDuration int64
}

func (s InitSegment) DebugString() string {
	return fmt.Sprintf("type=%s, container=%s, codec=%s, len=%d, duration=%d",
		s.Type, s.Container, s.Codec, len(s.Data), s.MediaDuration)
}

type MediaSegment struct {
	Type        TrackType
	Data        []byte
	SampleCount int
	BeginDts    int64
	EndDts      int64
	BeginPts    int64
	EndPts      int64
	Info        *MediaSegmentInfo
}

func (s MediaSegment) DebugString() string {
	return fmt.Sprintf("type=%s, len=%d, count=%d, dts=[%d, %d), pts=[%d, %d)",
		s.Type, len(s.Data), s.SampleCount, s.BeginDts, s.EndDts, s.BeginPts, s.EndPts)
}
