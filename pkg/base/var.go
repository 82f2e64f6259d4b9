// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "github.com/q191201771/naza/pkg/nazalog"

var Log = nazalog.GetGlobalLogger()

// 时间戳统一使用毫秒
const TimescaleMs = 1000

// ----- video --------------------
var (
	// DefaultReferenceFps 视频流既没有VUI帧率信息，metadata中也没有framerate字段时使用的参考帧率
	DefaultReferenceFps = FrameRate{
		Fixed: true,
		Num:   23976,
		Den:   1000,
	}
)

// ----- track --------------------
const (
	VideoTrackId = 1
	AudioTrackId = 2
)
