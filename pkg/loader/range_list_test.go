// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package loader

import (
	"strconv"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
)

func TestRangeList(t *testing.T) {
	var l RangeList
	l.Add(Range{From: 0, To: 99})
	l.Add(Range{From: 200, To: 299})
	assert.Equal(t, []Range{{0, 99}, {200, 299}}, l.Ranges())

	// 相邻
	l.Add(Range{From: 100, To: 149})
	assert.Equal(t, []Range{{0, 149}, {200, 299}}, l.Ranges())

	// 重叠，并且吞掉后面的区间
	l.Add(Range{From: 120, To: 400})
	assert.Equal(t, []Range{{0, 400}}, l.Ranges())

	l.Add(Range{From: 1000, To: -1})
	assert.Equal(t, []Range{{0, 400}, {1000, -1}}, l.Ranges())
	assert.Equal(t, true, l.Contains(300))
	assert.Equal(t, false, l.Contains(500))
	assert.Equal(t, true, l.Contains(100000))

	l.Close(1000, 1999)
	assert.Equal(t, []Range{{0, 400}, {1000, 1999}}, l.Ranges())
	assert.Equal(t, false, l.Contains(2000))

	l.Add(Range{From: 300, To: -1})
	assert.Equal(t, []Range{{0, -1}}, l.Ranges())

	// 开放区间一个字节都没有读到
	l.Clear()
	l.Add(Range{From: 50, To: -1})
	l.Close(50, 49)
	assert.Equal(t, 0, len(l.Ranges()))
}

func TestNormalizeSpeed(t *testing.T) {
	golden := map[int]int{
		0:     64,
		63:    64,
		64:    64,
		100:   64,
		128:   128,
		500:   384,
		1023:  768,
		1024:  1024,
		3000:  2048,
		4096:  4096,
		10000: 4096,
	}
	for in, out := range golden {
		assert.Equal(t, out, normalizeSpeed(in), strconv.Itoa(in))
	}
}

func TestCalcStashSizeKb(t *testing.T) {
	assert.Equal(t, 8, calcStashSizeKb(64, true))
	assert.Equal(t, 512, calcStashSizeKb(4096, true))
	assert.Equal(t, 384, calcStashSizeKb(384, false))
	assert.Equal(t, 768, calcStashSizeKb(512, false))
	assert.Equal(t, 1536, calcStashSizeKb(1024, false))
	assert.Equal(t, 4096, calcStashSizeKb(2048, false))
	assert.Equal(t, 8192, calcStashSizeKb(4096, false))
}
