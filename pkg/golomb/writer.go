// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package golomb

import "github.com/q191201771/naza/pkg/nazabits"

// Writer 与Reader对应，用于生成sps、sequence header等
type Writer struct {
	buf []byte
	bw  nazabits.BitWriter
	n   uint
}

// NewWriter
//
// @param capacity: 最多写入的字节数，超出部分会被丢弃
func NewWriter(capacity int) *Writer {
	w := &Writer{
		buf: make([]byte, capacity),
	}
	w.bw = nazabits.NewBitWriter(w.buf)
	return w
}

// WriteBits 写入v的低n位，n的取值范围为[0, 32]
func (w *Writer) WriteBits(n uint, v uint32) {
	for i := int(n) - 1; i >= 0; i-- {
		w.WriteBit(uint8((v >> uint(i)) & 1))
	}
}

func (w *Writer) WriteBit(b uint8) {
	if w.n >= uint(len(w.buf))*8 {
		return
	}
	w.bw.WriteBit(b)
	w.n++
}

func (w *Writer) WriteBool(b bool) {
	if b {
		w.WriteBit(1)
	} else {
		w.WriteBit(0)
	}
}

// WriteUeg 返回写入的位数
func (w *Writer) WriteUeg(v uint32) uint {
	x := uint64(v) + 1
	var n uint
	for t := x; t > 1; t >>= 1 {
		n++
	}
	for i := uint(0); i < n; i++ {
		w.WriteBit(0)
	}
	for i := int(n); i >= 0; i-- {
		w.WriteBit(uint8((x >> uint(i)) & 1))
	}
	return 2*n + 1
}

func (w *Writer) WriteSeg(v int32) uint {
	if v > 0 {
		return w.WriteUeg(uint32(2*v - 1))
	}
	return w.WriteUeg(uint32(-2 * int64(v)))
}

// WriteTrailingBits rbsp_trailing_bits，写入1后补0对齐到字节
func (w *Writer) WriteTrailingBits() {
	w.WriteBit(1)
	for w.n%8 != 0 {
		w.WriteBit(0)
	}
}

func (w *Writer) BitsWritten() uint {
	return w.n
}

// Bytes 返回已写入的内容，不满一个字节的部分补0
func (w *Writer) Bytes() []byte {
	return w.buf[:(w.n+7)/8]
}

// EbspBytes 在Bytes的基础上插入防竞争字节，得到可以直接放入nalu的数据
//
// @return 内存块为独立新申请
func (w *Writer) EbspBytes() []byte {
	src := w.Bytes()
	dst := make([]byte, 0, len(src)+len(src)/64+4)
	zeroCount := 0
	for _, b := range src {
		if zeroCount >= 2 && b <= 0x03 {
			dst = append(dst, 0x03)
			zeroCount = 0
		}
		dst = append(dst, b)
		if b == 0x00 {
			zeroCount++
		} else {
			zeroCount = 0
		}
	}
	return dst
}
