// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"github.com/q191201771/naza/pkg/nazalog"
)

// LogDump 限制同一类日志的打印次数
//
// 比如流开头没有sequence header时，之后的每一帧都会触发丢帧日志
type LogDump struct {
	log    nazalog.Logger
	maxNum int

	count int
}

// NewLogDump
//
// @param maxNum: 最多打印的次数。trace级别时不受限制
func NewLogDump(log nazalog.Logger, maxNum int) LogDump {
	return LogDump{
		log:    log,
		maxNum: maxNum,
	}
}

// ShouldDump 每次触发时调用，返回是否应该打印
func (ld *LogDump) ShouldDump() bool {
	ld.count++
	if ld.count <= ld.maxNum {
		return true
	}
	return ld.log.GetOption().Level == nazalog.LevelTrace
}

// Count 触发的总次数，包括没有打印的
func (ld *LogDump) Count() int {
	return ld.count
}

func (ld *LogDump) Reset() {
	ld.count = 0
}
