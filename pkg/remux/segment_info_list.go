// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package remux

import (
	"sort"

	"github.com/q191201771/lalfmp4/pkg/base"
)

// MediaSegmentInfoList 单个track已经生成的media segment的索引，按OriginalBeginDts升序
//
// 相邻两项满足 list[i].OriginalEndDts <= list[i+1].OriginalBeginDts
type MediaSegmentInfoList struct {
	typ  base.TrackType
	list []*base.MediaSegmentInfo

	// 上一次Append插入的位置，顺序追加时可以省去二分查找，使用前需要校验
	lastAppendLocation int
}

func NewMediaSegmentInfoList(typ base.TrackType) *MediaSegmentInfoList {
	return &MediaSegmentInfoList{
		typ:                typ,
		lastAppendLocation: -1,
	}
}

func (l *MediaSegmentInfoList) Type() base.TrackType {
	return l.typ
}

func (l *MediaSegmentInfoList) Len() int {
	return len(l.list)
}

func (l *MediaSegmentInfoList) IsEmpty() bool {
	return len(l.list) == 0
}

func (l *MediaSegmentInfoList) Clear() {
	l.list = nil
	l.lastAppendLocation = -1
}

// Segments 返回列表中所有segment的拷贝
func (l *MediaSegmentInfoList) Segments() []*base.MediaSegmentInfo {
	ret := make([]*base.MediaSegmentInfo, len(l.list))
	for i, info := range l.list {
		ret[i] = cloneSegmentInfo(info)
	}
	return ret
}

// Append
//
// 与已有项重叠时（新segment覆盖了已有项的sample），已有项被替换掉。
// 仅仅是毫秒级的时长误差导致的重叠，通过截断OriginalEndDts消除。
// 列表内部保存的是info的深拷贝，调用方后续对info的修改不影响列表。
func (l *MediaSegmentInfoList) Append(info *base.MediaSegmentInfo) {
	info = cloneSegmentInfo(info)

	var idx int // 最后一个OriginalBeginDts <= info.OriginalBeginDts的位置
	if l.isAppendLocationValid(info.OriginalBeginDts) {
		idx = l.lastAppendLocation
	} else {
		idx = l.searchNearestSegmentBefore(info.OriginalBeginDts)
	}

	lo := idx + 1
	if idx >= 0 {
		prev := l.list[idx]
		if prev.LastSample.OriginalDts >= info.OriginalBeginDts {
			lo = idx
		} else if prev.OriginalEndDts > info.OriginalBeginDts {
			prev.OriginalEndDts = info.OriginalBeginDts
		}
	}

	hi := idx + 1
	for hi < len(l.list) && l.list[hi].OriginalBeginDts <= info.LastSample.OriginalDts {
		hi++
	}
	if hi < len(l.list) && info.OriginalEndDts > l.list[hi].OriginalBeginDts {
		info.OriginalEndDts = l.list[hi].OriginalBeginDts
	}

	if hi-lo > 0 {
		Log.Debugf("media segment info replaced. type=%s, count=%d, begin=%d", l.typ, hi-lo, info.OriginalBeginDts)
	}

	tail := append([]*base.MediaSegmentInfo{info}, l.list[hi:]...)
	l.list = append(l.list[:lo], tail...)
	l.lastAppendLocation = lo
}

// GetLastSegmentBefore 返回OriginalBeginDts <= originalDts的最后一个segment，没有则返回nil
func (l *MediaSegmentInfoList) GetLastSegmentBefore(originalDts int64) *base.MediaSegmentInfo {
	idx := l.searchNearestSegmentBefore(originalDts)
	if idx < 0 {
		return nil
	}
	return l.list[idx]
}

// GetFirstSegmentAfter 返回OriginalBeginDts > originalDts的第一个segment，没有则返回nil
func (l *MediaSegmentInfoList) GetFirstSegmentAfter(originalDts int64) *base.MediaSegmentInfo {
	idx := l.searchNearestSegmentAfter(originalDts)
	if idx >= len(l.list) {
		return nil
	}
	return l.list[idx]
}

// GetLastSampleBefore 返回originalDts之前（不含）最近的一个segment的最后一个sample
func (l *MediaSegmentInfoList) GetLastSampleBefore(originalDts int64) (base.SampleInfo, bool) {
	idx := l.searchNearestSegmentBefore(originalDts)
	for ; idx >= 0; idx-- {
		if l.list[idx].LastSample.OriginalDts < originalDts {
			return l.list[idx].LastSample, true
		}
	}
	return base.SampleInfo{}, false
}

// GetLastSyncPointBefore 从originalDts所在的segment开始往前找，返回最近一个segment的最后一个关键帧
func (l *MediaSegmentInfoList) GetLastSyncPointBefore(originalDts int64) (base.SampleInfo, bool) {
	idx := l.searchNearestSegmentBefore(originalDts)
	for ; idx >= 0; idx-- {
		sps := l.list[idx].SyncPoints
		if len(sps) > 0 {
			return sps[len(sps)-1], true
		}
	}
	return base.SampleInfo{}, false
}

// ---------------------------------------------------------------------------------------------------------------------

func (l *MediaSegmentInfoList) isAppendLocationValid(originalBeginDts int64) bool {
	idx := l.lastAppendLocation
	if idx < 0 || idx >= len(l.list) {
		return false
	}
	if l.list[idx].OriginalBeginDts > originalBeginDts {
		return false
	}
	return idx == len(l.list)-1 || originalBeginDts < l.list[idx+1].OriginalBeginDts
}

// searchNearestSegmentBefore 返回最后一个OriginalBeginDts <= originalDts的下标，没有则返回-1
func (l *MediaSegmentInfoList) searchNearestSegmentBefore(originalDts int64) int {
	return l.searchNearestSegmentAfter(originalDts) - 1
}

// searchNearestSegmentAfter 返回第一个OriginalBeginDts > originalDts的下标，没有则返回len
func (l *MediaSegmentInfoList) searchNearestSegmentAfter(originalDts int64) int {
	return sort.Search(len(l.list), func(i int) bool {
		return l.list[i].OriginalBeginDts > originalDts
	})
}

func cloneSegmentInfo(info *base.MediaSegmentInfo) *base.MediaSegmentInfo {
	c := *info
	if info.SyncPoints != nil {
		c.SyncPoints = append([]base.SampleInfo(nil), info.SyncPoints...)
	}
	return &c
}
