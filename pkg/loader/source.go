// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package loader

import (
	"fmt"

	"github.com/q191201771/lalfmp4/pkg/base"
)

// DataSource 一个字节源，对应多段媒体中的一段
type DataSource struct {
	Url      string
	Filesize int64 // 未知时为0
}

// Range 字节区间，两端都包含。To为-1表示直到结尾
type Range struct {
	From int64
	To   int64
}

func (r Range) IsOpenEnded() bool {
	return r.To == -1
}

func (r Range) String() string {
	if r.To == -1 {
		return fmt.Sprintf("[%d, )", r.From)
	}
	return fmt.Sprintf("[%d, %d]", r.From, r.To)
}

// IByteSource 字节源，比如本地文件、http
//
// Open后在内部协程中读取数据，并通过IByteSourceObserver回调。
// 一个IByteSource对象只Open一次，seek时由IoController创建新的对象。
type IByteSource interface {
	Open(ds DataSource, r Range) error

	// Abort 通知内部协程退出，不等待。调用后不会再有新的回调发生（已经开始执行的回调除外）
	Abort()

	IsWorking() bool
	Type() string
}

type IByteSourceObserver interface {
	// OnContentLengthKnown 获取到本次请求的数据总长度时回调，比如http的Content-Length
	OnContentLengthKnown(length int64)

	// OnDataArrival
	//
	// @param chunk:          回调结束后，字节源不再使用这块内存，内存的所有权交给回调方
	// @param byteStart:      chunk在整个文件中的偏移位置
	// @param receivedLength: 本次Open后总共收到的字节数
	//
	OnDataArrival(chunk []byte, byteStart int64, receivedLength int64)

	// OnComplete 数据读取完毕，[from, to]为本次Open实际读取的区间
	OnComplete(from, to int64)

	OnError(err *base.IoError)
}

type SourceConfig struct {
	ReadChunkSize        int
	HttpConnectTimeoutMs int
	HttpReadTimeoutMs    int
	Headers              map[string]string // 只对http生效
}

// SourceFactory 根据DataSource创建对应的字节源
type SourceFactory func(ds DataSource, config SourceConfig, observer IByteSourceObserver) (IByteSource, error)

// NewByteSource 默认的SourceFactory，根据url的scheme选择FileSource或HttpSource
func NewByteSource(ds DataSource, config SourceConfig, observer IByteSourceObserver) (IByteSource, error) {
	ctx, err := base.ParseSourceUrl(ds.Url)
	if err != nil {
		return nil, err
	}
	if ctx.IsHttp() {
		return NewHttpSource(config, observer)
	}
	return NewFileSource(config, observer)
}
