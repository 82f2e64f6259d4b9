// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"errors"
	"fmt"
)

// ----- 通用的 ---------------------------------------------------------------------------------------------------------

var (
	ErrUnsupportedUrl = errors.New("lalfmp4: unsupported url")
	ErrNilObserver    = errors.New("lalfmp4: observer must not be nil")
	ErrInvalidParam   = errors.New("lalfmp4: invalid param")
	ErrInvalidUrl     = errors.New("lalfmp4: invalid url")
)

// ----- pkg/golomb ----------------------------------------------------------------------------------------------------

var (
	ErrGolombOutOfData       = errors.New("lalfmp4.golomb: out of data")
	ErrGolombInvalidArgument = errors.New("lalfmp4.golomb: invalid argument")
)

// ----- pkg/avc -------------------------------------------------------------------------------------------------------

var ErrAvc = errors.New("lalfmp4.avc: fxxk")

// ----- pkg/hevc ------------------------------------------------------------------------------------------------------

var ErrHevc = errors.New("lalfmp4.hevc: fxxk")

// ----- pkg/av1 -------------------------------------------------------------------------------------------------------

var ErrAv1 = errors.New("lalfmp4.av1: fxxk")

// ----- pkg/aac -------------------------------------------------------------------------------------------------------

var (
	ErrAac                    = errors.New("lalfmp4.aac: fxxk")
	ErrSamplingFrequencyIndex = errors.New("lalfmp4.aac: invalid sampling frequency index")
	ErrChannelConfiguration   = errors.New("lalfmp4.aac: invalid channel configuration")
)

// ----- pkg/amf0 ------------------------------------------------------------------------------------------------------

var (
	ErrAmfInvalidType = errors.New("lalfmp4.amf0: invalid amf0 type")
	ErrAmfTooShort    = errors.New("lalfmp4.amf0: too short to unmarshal amf0 data")
	ErrAmfNotExist    = errors.New("lalfmp4.amf0: not exist")
)

func NewErrAmfInvalidType(b byte) error {
	return fmt.Errorf("%w. b=%d", ErrAmfInvalidType, b)
}

// ----- pkg/flv -------------------------------------------------------------------------------------------------------

var ErrFlv = errors.New("lalfmp4.flv: fxxk")

// ----- pkg/fmp4 ------------------------------------------------------------------------------------------------------

var ErrFmp4 = errors.New("lalfmp4.fmp4: fxxk")

// ----- pkg/loader ----------------------------------------------------------------------------------------------------

var (
	ErrLoaderDisposed = errors.New("lalfmp4.loader: already disposed")
	ErrLoaderBusy     = errors.New("lalfmp4.loader: source is still working")
)

// ----- pkg/transmux --------------------------------------------------------------------------------------------------

var (
	ErrSinkBusy           = errors.New("lalfmp4.transmux: sink busy")
	ErrTransmuxerDisposed = errors.New("lalfmp4.transmux: transmuxer already disposed")
	ErrNoMediaPart        = errors.New("lalfmp4.transmux: media data source has no part")
)

// ----- 对外回调的错误类型 ------------------------------------------------------------------------------------------------

// IoErrorKind 字节源（文件、http等）出错的类型
type IoErrorKind int

const (
	IoErrorKindException IoErrorKind = iota + 1
	IoErrorKindHttpStatusInvalid
	IoErrorKindConnectingTimeout
	IoErrorKindEarlyEof
)

func (k IoErrorKind) String() string {
	switch k {
	case IoErrorKindException:
		return "Exception"
	case IoErrorKindHttpStatusInvalid:
		return "HttpStatusInvalid"
	case IoErrorKindConnectingTimeout:
		return "ConnectingTimeout"
	case IoErrorKindEarlyEof:
		return "EarlyEof"
	}
	return fmt.Sprintf("IoErrorKind(%d)", int(k))
}

// DemuxErrorKind 解析flv流出错的类型
type DemuxErrorKind int

const (
	DemuxErrorKindFormatError DemuxErrorKind = iota + 1
	DemuxErrorKindFormatUnsupported
	DemuxErrorKindCodecUnsupported
)

func (k DemuxErrorKind) String() string {
	switch k {
	case DemuxErrorKindFormatError:
		return "FormatError"
	case DemuxErrorKindFormatUnsupported:
		return "FormatUnsupported"
	case DemuxErrorKindCodecUnsupported:
		return "CodecUnsupported"
	}
	return fmt.Sprintf("DemuxErrorKind(%d)", int(k))
}

// IoError
//
// Code 对于http是状态码，其他情况为-1
type IoError struct {
	Kind IoErrorKind
	Code int
	Msg  string
}

func NewIoError(kind IoErrorKind, code int, msg string) *IoError {
	return &IoError{
		Kind: kind,
		Code: code,
		Msg:  msg,
	}
}

func (e *IoError) Error() string {
	return fmt.Sprintf("lalfmp4: io error. kind=%s, code=%d, msg=%s", e.Kind, e.Code, e.Msg)
}

type DemuxError struct {
	Kind DemuxErrorKind
	Msg  string
}

func NewDemuxError(kind DemuxErrorKind, format string, v ...interface{}) *DemuxError {
	return &DemuxError{
		Kind: kind,
		Msg:  fmt.Sprintf(format, v...),
	}
}

func (e *DemuxError) Error() string {
	return fmt.Sprintf("lalfmp4: demux error. kind=%s, msg=%s", e.Kind, e.Msg)
}

// ---------------------------------------------------------------------------------------------------------------------
