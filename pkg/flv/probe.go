// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package flv

import "github.com/q191201771/naza/pkg/bele"

type ProbeResult struct {
	Match         bool
	Consumed      int // flv header的大小，不包含PreviousTagSize0
	DataOffset    int
	HasAudioTrack bool
	HasVideoTrack bool
}

// Probe 判断是否是flv流
//
// @param b: 流的起始部分，至少9字节
func Probe(b []byte) (ret ProbeResult) {
	if len(b) < FlvHeaderSize {
		return
	}
	if b[0] != 'F' || b[1] != 'L' || b[2] != 'V' || b[3] != 0x01 {
		return
	}

	offset := int(bele.BeUint32(b[5:]))
	if offset < FlvHeaderSize {
		return
	}

	ret.Match = true
	ret.Consumed = offset
	ret.DataOffset = offset
	ret.HasAudioTrack = (b[4]&0x04)>>2 != 0
	ret.HasVideoTrack = b[4]&0x01 != 0
	return
}
