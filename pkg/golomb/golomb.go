// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package golomb 在nazabits.BitReader的基础上，提供h264、h265中常用的定长以及指数哥伦布编码字段的读取
package golomb

import (
	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/naza/pkg/nazabits"
	"github.com/q191201771/naza/pkg/nazaerrors"
)

var (
	ErrOutOfData       = base.ErrGolombOutOfData
	ErrInvalidArgument = base.ErrGolombInvalidArgument
)

// Reader
//
// 注意，所有读取失败都表示当前解析单元（比如一个sps）的数据不完整，调用方应放弃整个解析单元
type Reader struct {
	br       nazabits.BitReader
	totalBit uint
	readBit  uint
}

// NewReader
//
// @param b: 函数调用结束后，内部继续持有该内存块，调用方不应修改
func NewReader(b []byte) *Reader {
	return &Reader{
		br:       nazabits.NewBitReader(b),
		totalBit: uint(len(b)) * 8,
	}
}

// ReadBits 读取n位，n的取值范围为[0, 32]，高位在前
func (r *Reader) ReadBits(n uint) (uint32, error) {
	if n > 32 {
		return 0, ErrInvalidArgument
	}
	if n == 0 {
		return 0, nil
	}
	if n > r.BitsLeft() {
		return 0, ErrOutOfData
	}
	v, err := r.br.ReadBits32(n)
	if err != nil {
		return 0, nazaerrors.Wrap(ErrOutOfData, err.Error())
	}
	r.readBit += n
	return v, nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadBits(1)
	return v == 1, err
}

func (r *Reader) ReadByte() (byte, error) {
	v, err := r.ReadBits(8)
	return uint8(v), err
}

func (r *Reader) SkipBits(n uint) error {
	if n > r.BitsLeft() {
		return ErrOutOfData
	}
	for n > 0 {
		m := n
		if m > 32 {
			m = 32
		}
		if _, err := r.ReadBits(m); err != nil {
			return err
		}
		n -= m
	}
	return nil
}

// ReadUeg 无符号指数哥伦布，ue(v)
//
// 前导0的个数为k，然后再读取k+1位（包含第一个1），值减去1
func (r *Reader) ReadUeg() (uint32, error) {
	var leadingZeroBits uint
	for {
		b, err := r.ReadBits(1)
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		leadingZeroBits++
		if leadingZeroBits > 31 {
			return 0, ErrInvalidArgument
		}
	}
	if leadingZeroBits == 0 {
		return 0, nil
	}
	v, err := r.ReadBits(leadingZeroBits)
	if err != nil {
		return 0, err
	}
	return (1<<leadingZeroBits - 1) + v, nil
}

// ReadSeg 有符号指数哥伦布，se(v)
//
// ue值k映射为 (-1)^(k+1) * ceil(k/2)，即 0, 1, -1, 2, -2 ...
func (r *Reader) ReadSeg() (int32, error) {
	k, err := r.ReadUeg()
	if err != nil {
		return 0, err
	}
	if k&1 == 1 {
		return int32((k + 1) >> 1), nil
	}
	return -int32(k >> 1), nil
}

func (r *Reader) SkipUeg() error {
	_, err := r.ReadUeg()
	return err
}

func (r *Reader) SkipSeg() error {
	_, err := r.ReadUeg()
	return err
}

func (r *Reader) BitsLeft() uint {
	return r.totalBit - r.readBit
}

// BitsRead 已读取的位数
func (r *Reader) BitsRead() uint {
	return r.readBit
}

// ByteAligned 当前读取位置是否在字节边界上
func (r *Reader) ByteAligned() bool {
	return r.readBit%8 == 0
}
