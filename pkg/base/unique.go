// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "github.com/q191201771/naza/pkg/unique"

const (
	UkPreTransmuxer   = "TRANSMUXER"
	UkPreController   = "TRANSCTRL"
	UkPreIoController = "IOCTL"
	UkPreFileSource   = "FILESRC"
	UkPreHttpSource   = "HTTPSRC"
	UkPreFlvDemuxer   = "FLVDEMUX"
	UkPreMp4Remuxer   = "MP4REMUX"
)

func GenUkTransmuxer() string {
	return siUkTransmuxer.GenUniqueKey()
}

func GenUkController() string {
	return siUkController.GenUniqueKey()
}

func GenUkIoController() string {
	return siUkIoController.GenUniqueKey()
}

func GenUkFileSource() string {
	return siUkFileSource.GenUniqueKey()
}

func GenUkHttpSource() string {
	return siUkHttpSource.GenUniqueKey()
}

func GenUkFlvDemuxer() string {
	return siUkFlvDemuxer.GenUniqueKey()
}

func GenUkMp4Remuxer() string {
	return siUkMp4Remuxer.GenUniqueKey()
}

var (
	siUkTransmuxer   *unique.SingleGenerator
	siUkController   *unique.SingleGenerator
	siUkIoController *unique.SingleGenerator
	siUkFileSource   *unique.SingleGenerator
	siUkHttpSource   *unique.SingleGenerator
	siUkFlvDemuxer   *unique.SingleGenerator
	siUkMp4Remuxer   *unique.SingleGenerator
)

func init() {
	siUkTransmuxer = unique.NewSingleGenerator(UkPreTransmuxer)
	siUkController = unique.NewSingleGenerator(UkPreController)
	siUkIoController = unique.NewSingleGenerator(UkPreIoController)
	siUkFileSource = unique.NewSingleGenerator(UkPreFileSource)
	siUkHttpSource = unique.NewSingleGenerator(UkPreHttpSource)
	siUkFlvDemuxer = unique.NewSingleGenerator(UkPreFlvDemuxer)
	siUkMp4Remuxer = unique.NewSingleGenerator(UkPreMp4Remuxer)
}
