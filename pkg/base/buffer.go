// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"fmt"
)

// Buffer 先进先出可扩容流式buffer，可直接读写内部切片避免拷贝
//
// 扩容时容量按2倍增长，直到足够容纳所有未读数据以及新写入的数据
//
// 示例
//
//	写入
//	  n, err := Write(buf)
//
//	读取
//	  buf := Bytes()
//	  ... // 读取buf的内容
//	  Skip(n)
type Buffer struct {
	core []byte
	rpos int
	wpos int
}

func NewBuffer(initCap int) *Buffer {
	if initCap <= 0 {
		initCap = 1
	}
	return &Buffer{
		core: make([]byte, initCap),
	}
}

// Bytes Buffer中所有未读数据，不拷贝
func (b *Buffer) Bytes() []byte {
	if b.rpos == b.wpos {
		return nil
	}
	return b.core[b.rpos:b.wpos]
}

// Skip 将前`n`未读数据标记为已读（也即消费完成）
func (b *Buffer) Skip(n int) {
	if n > b.wpos-b.rpos {
		Log.Warnf("[%p] Buffer::Skip too large. n=%d, %s", b, n, b.DebugString())
		b.Reset()
		return
	}
	b.rpos += n
	b.resetIfEmpty()
}

// Grow 确保Buffer中至少有`n`大小的空间可写
func (b *Buffer) Grow(n int) {
	tail := len(b.core) - b.wpos
	if tail >= n {
		return
	}

	if b.rpos+tail >= n {
		// 头部加上尾部空闲空间足够，将可读数据移动到头部
		copy(b.core, b.core[b.rpos:b.wpos])
		b.wpos -= b.rpos
		b.rpos = 0
		return
	}

	needed := b.Len() + n
	newCap := len(b.core)
	for newCap < needed {
		newCap *= 2
	}
	Log.Debugf("[%p] Buffer::Grow. realloc, n=%d, copy=%d, cap=(%d, %d)", b, n, b.Len(), b.Cap(), newCap)
	core := make([]byte, newCap)
	copy(core, b.core[b.rpos:b.wpos])
	b.wpos -= b.rpos
	b.rpos = 0
	b.core = core
}

// Write 拷贝
func (b *Buffer) Write(p []byte) (n int, err error) {
	b.Grow(len(p))
	n = copy(b.core[b.wpos:], p)
	b.wpos += n
	return n, nil
}

// Reset 重置
//
// 注意，并不会释放内存块
func (b *Buffer) Reset() {
	b.rpos = 0
	b.wpos = 0
}

// Len Buffer中还没有读的数据的长度
func (b *Buffer) Len() int {
	return b.wpos - b.rpos
}

// Cap 整个Buffer占用的空间
func (b *Buffer) Cap() int {
	return len(b.core)
}

func (b *Buffer) DebugString() string {
	return fmt.Sprintf("len(core)=%d, rpos=%d, wpos=%d", len(b.core), b.rpos, b.wpos)
}

func (b *Buffer) resetIfEmpty() {
	if b.rpos == b.wpos {
		b.Reset()
	}
}
