// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"testing"

	"github.com/q191201771/naza/pkg/assert"
)

func TestBuffer(t *testing.T) {
	golden := []byte("1234567890")

	b := NewBuffer(8)
	assert.Equal(t, nil, b.Bytes())
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 8, b.Cap())

	// 简单写读
	n, err := b.Write(golden[:5])
	assert.Equal(t, nil, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, golden[:5], b.Bytes())
	b.Skip(5)
	assert.Equal(t, nil, b.Bytes())
	assert.Equal(t, 8, b.Cap())

	// 发生扩容，按2倍增长
	n, err = b.Write(golden)
	assert.Equal(t, nil, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, golden, b.Bytes())
	assert.Equal(t, 16, b.Cap())

	// 利用头部空闲空间
	b.Skip(2)
	_, _ = b.Write(golden[:7])
	assert.Equal(t, golden[2:], b.Bytes()[:8])
	assert.Equal(t, golden[:7], b.Bytes()[8:])
	assert.Equal(t, 15, b.Len())
	assert.Equal(t, 16, b.Cap())

	// 多次翻倍
	_, _ = b.Write(make([]byte, 40))
	assert.Equal(t, 55, b.Len())
	assert.Equal(t, 64, b.Cap())
	assert.Equal(t, golden[2:], b.Bytes()[:8])

	// 一些错误
	b.Reset()
	assert.Equal(t, nil, b.Bytes())
	b.Skip(1)
	assert.Equal(t, nil, b.Bytes())
	_, _ = b.Write(golden[:3])
	b.Skip(4)
	assert.Equal(t, 0, b.Len())

	b = NewBuffer(0)
	_, _ = b.Write(golden)
	assert.Equal(t, 16, b.Cap())
}
