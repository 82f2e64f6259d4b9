// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package transmux

import (
	"errors"

	"github.com/q191201771/lalfmp4/pkg/base"
)

// ISink 播放端的数据接收方，比如MSE的SourceBuffer、写文件
type ISink interface {
	// AppendInitSegment AppendMediaSegment
	//
	// 暂时无法接收时返回base.ErrSinkBusy，数据由SinkQueue缓存，
	// 之后sink可以接收时，调用方需要调用NotifySinkReady
	//
	AppendInitSegment(seg base.InitSegment) error
	AppendMediaSegment(seg base.MediaSegment) error
}

type sinkUnit struct {
	isInit bool
	init   base.InitSegment
	media  base.MediaSegment
}

func (u *sinkUnit) appendTo(sink ISink) error {
	if u.isInit {
		return sink.AppendInitSegment(u.init)
	}
	return sink.AppendMediaSegment(u.media)
}

// SinkQueue 按track缓存sink暂时无法接收的segment
//
// 非协程安全
type SinkQueue struct {
	sink       ISink
	audioQueue []sinkUnit
	videoQueue []sinkUnit
}

func NewSinkQueue(sink ISink) (*SinkQueue, error) {
	if sink == nil {
		return nil, base.ErrInvalidParam
	}
	return &SinkQueue{
		sink: sink,
	}, nil
}

func (q *SinkQueue) AppendInitSegment(seg base.InitSegment) error {
	return q.append(seg.Type, sinkUnit{isInit: true, init: seg})
}

func (q *SinkQueue) AppendMediaSegment(seg base.MediaSegment) error {
	return q.append(seg.Type, sinkUnit{media: seg})
}

// NotifySinkReady sink可以继续接收数据了，对应track最多发送一个缓存的segment
func (q *SinkQueue) NotifySinkReady(typ base.TrackType) error {
	queue := q.queueOf(typ)
	if queue == nil || len(*queue) == 0 {
		return nil
	}

	err := (*queue)[0].appendTo(q.sink)
	if errors.Is(err, base.ErrSinkBusy) {
		return nil
	}
	*queue = (*queue)[1:]
	return err
}

// Pending 对应track缓存的segment数量
func (q *SinkQueue) Pending(typ base.TrackType) int {
	queue := q.queueOf(typ)
	if queue == nil {
		return 0
	}
	return len(*queue)
}

func (q *SinkQueue) Clear() {
	q.audioQueue = nil
	q.videoQueue = nil
}

// DropMediaSegments 丢弃缓存的media segment，init segment保留，比如seek之后旧的数据已经没有意义
func (q *SinkQueue) DropMediaSegments() {
	q.audioQueue = keepInitUnits(q.audioQueue)
	q.videoQueue = keepInitUnits(q.videoQueue)
}

func keepInitUnits(queue []sinkUnit) []sinkUnit {
	var out []sinkUnit
	for _, u := range queue {
		if u.isInit {
			out = append(out, u)
		}
	}
	return out
}

func (q *SinkQueue) append(typ base.TrackType, unit sinkUnit) error {
	queue := q.queueOf(typ)
	if queue == nil {
		return base.ErrInvalidParam
	}

	// 已经有缓存时，直接排队，保证顺序
	if len(*queue) != 0 {
		*queue = append(*queue, unit)
		return nil
	}

	err := unit.appendTo(q.sink)
	if errors.Is(err, base.ErrSinkBusy) {
		*queue = append(*queue, unit)
		return nil
	}
	return err
}

func (q *SinkQueue) queueOf(typ base.TrackType) *[]sinkUnit {
	switch typ {
	case base.TrackTypeAudio:
		return &q.audioQueue
	case base.TrackTypeVideo:
		return &q.videoQueue
	}
	return nil
}
