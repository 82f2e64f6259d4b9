// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package transmux

import (
	"github.com/q191201771/lalfmp4/pkg/amf0"
	"github.com/q191201771/lalfmp4/pkg/base"
)

type StatisticsInfo struct {
	Url              string
	Speed            float64 // KB/s
	SourceType       string
	CurrentPartIndex int
	TotalPartCount   int
}

// ITransmuxingObserver
//
// 使用Transmuxer时，所有回调都在同一个协程中按产生的顺序执行，回调中可以调用Transmuxer的方法
type ITransmuxingObserver interface {
	OnIoError(err *base.IoError)
	OnDemuxError(err *base.DemuxError)

	OnInitSegment(seg base.InitSegment)
	OnMediaSegment(seg base.MediaSegment)

	// OnLoadingComplete 所有分片都读取完毕
	OnLoadingComplete()

	// OnRecoveredEarlyEof 预留，内部不做断线重连，目前不会回调
	OnRecoveredEarlyEof()

	OnMediaInfo(mi base.MediaInfo)
	OnMetadataArrived(metadata amf0.ObjectPairArray)
	OnScriptDataArrived(name string, value interface{})
	OnStatisticsInfo(info StatisticsInfo)

	// OnRecommendSeekpoint seek后实际的起始位置（关键帧的时间戳），单位毫秒
	OnRecommendSeekpoint(ms int64)
}

// DummyObserver 所有回调都是空实现，使用方可以内嵌它，只实现自己关心的回调
type DummyObserver struct{}

func (DummyObserver) OnIoError(err *base.IoError)                        {}
func (DummyObserver) OnDemuxError(err *base.DemuxError)                  {}
func (DummyObserver) OnInitSegment(seg base.InitSegment)                 {}
func (DummyObserver) OnMediaSegment(seg base.MediaSegment)               {}
func (DummyObserver) OnLoadingComplete()                                 {}
func (DummyObserver) OnRecoveredEarlyEof()                               {}
func (DummyObserver) OnMediaInfo(mi base.MediaInfo)                      {}
func (DummyObserver) OnMetadataArrived(metadata amf0.ObjectPairArray)    {}
func (DummyObserver) OnScriptDataArrived(name string, value interface{}) {}
func (DummyObserver) OnStatisticsInfo(info StatisticsInfo)               {}
func (DummyObserver) OnRecommendSeekpoint(ms int64)                      {}
