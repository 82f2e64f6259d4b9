// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package loader

import "sort"

// RangeList 记录已经请求过的字节区间，只做记录，不参与数据读取的决策
//
// 区间按From升序，重叠或相邻的区间会被合并
type RangeList struct {
	ranges []Range
}

func (l *RangeList) Add(r Range) {
	l.ranges = append(l.ranges, r)
	sort.Slice(l.ranges, func(i, j int) bool {
		return l.ranges[i].From < l.ranges[j].From
	})

	merged := l.ranges[:1]
	for _, item := range l.ranges[1:] {
		last := &merged[len(merged)-1]
		if last.To == -1 || item.From <= last.To+1 {
			if last.To != -1 && (item.To == -1 || item.To > last.To) {
				last.To = item.To
			}
			continue
		}
		merged = append(merged, item)
	}
	l.ranges = merged
}

// Close 把包含from的开放区间的结尾设置为to
func (l *RangeList) Close(from, to int64) {
	for i := range l.ranges {
		if l.ranges[i].To == -1 && l.ranges[i].From <= from {
			if to < l.ranges[i].From {
				to = l.ranges[i].From - 1
			}
			l.ranges[i].To = to
			if to < l.ranges[i].From {
				l.ranges = append(l.ranges[:i], l.ranges[i+1:]...)
			}
			return
		}
	}
}

func (l *RangeList) Contains(pos int64) bool {
	for _, r := range l.ranges {
		if pos >= r.From && (r.To == -1 || pos <= r.To) {
			return true
		}
	}
	return false
}

func (l *RangeList) Ranges() []Range {
	ret := make([]Range, len(l.ranges))
	copy(ret, l.ranges)
	return ret
}

func (l *RangeList) Clear() {
	l.ranges = nil
}
