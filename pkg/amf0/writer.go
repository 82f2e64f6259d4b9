// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package amf0

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/naza/pkg/bele"
)

// write类型的方法集合
//
// 将函数名所指定的amf类型数据（包含类型字节）写入<writer>

func WriteNumber(writer io.Writer, val float64) error {
	b := make([]byte, 9)
	b[0] = TypeMarkerNumber
	bele.BePutUint64(b[1:], math.Float64bits(val))
	_, err := writer.Write(b)
	return err
}

func WriteBoolean(writer io.Writer, val bool) error {
	b := []byte{TypeMarkerBoolean, 0}
	if val {
		b[1] = 1
	}
	_, err := writer.Write(b)
	return err
}

// WriteString 长度大于等于65536时使用Long string
func WriteString(writer io.Writer, val string) error {
	if err := writeTypeAndStringLen(writer, val); err != nil {
		return err
	}
	_, err := io.WriteString(writer, val)
	return err
}

func WriteNull(writer io.Writer) error {
	_, err := writer.Write([]byte{TypeMarkerNull})
	return err
}

func WriteDate(writer io.Writer, val time.Time) error {
	b := make([]byte, 11)
	b[0] = TypeMarkerDate
	bele.BePutUint64(b[1:], math.Float64bits(float64(val.UnixMilli())))
	// 时区偏移固定为0
	_, err := writer.Write(b)
	return err
}

func WriteObject(writer io.Writer, ops ObjectPairArray) error {
	if _, err := writer.Write([]byte{TypeMarkerObject}); err != nil {
		return err
	}
	return writeProperties(writer, ops)
}

func WriteEcmaArray(writer io.Writer, ops ObjectPairArray) error {
	b := make([]byte, 5)
	b[0] = TypeMarkerEcmaArray
	bele.BePutUint32(b[1:], uint32(len(ops)))
	if _, err := writer.Write(b); err != nil {
		return err
	}
	return writeProperties(writer, ops)
}

func WriteStrictArray(writer io.Writer, arr []interface{}) error {
	b := make([]byte, 5)
	b[0] = TypeMarkerStrictArray
	bele.BePutUint32(b[1:], uint32(len(arr)))
	if _, err := writer.Write(b); err != nil {
		return err
	}
	for _, v := range arr {
		if err := WriteValue(writer, v); err != nil {
			return err
		}
	}
	return nil
}

// WriteValue 根据go类型选择amf0类型，ObjectPairArray写为Object
//
// 整型统一写为Number
func WriteValue(writer io.Writer, val interface{}) error {
	switch v := val.(type) {
	case nil:
		return WriteNull(writer)
	case float64:
		return WriteNumber(writer, v)
	case float32:
		return WriteNumber(writer, float64(v))
	case int:
		return WriteNumber(writer, float64(v))
	case int64:
		return WriteNumber(writer, float64(v))
	case uint32:
		return WriteNumber(writer, float64(v))
	case uint64:
		return WriteNumber(writer, float64(v))
	case bool:
		return WriteBoolean(writer, v)
	case string:
		return WriteString(writer, v)
	case time.Time:
		return WriteDate(writer, v)
	case ObjectPairArray:
		return WriteObject(writer, v)
	case []base.MetadataPair:
		return WriteObject(writer, v)
	case []interface{}:
		return WriteStrictArray(writer, v)
	case []float64:
		arr := make([]interface{}, len(v))
		for i := range v {
			arr[i] = v[i]
		}
		return WriteStrictArray(writer, arr)
	}
	return fmt.Errorf("%w. value=%T", ErrAmfInvalidType, val)
}

func writeProperties(writer io.Writer, ops ObjectPairArray) error {
	for _, op := range ops {
		if err := writeStringWithoutType(writer, op.Key); err != nil {
			return err
		}
		if err := WriteValue(writer, op.Value); err != nil {
			return err
		}
	}
	_, err := writer.Write(ObjectEndBytes)
	return err
}

func writeTypeAndStringLen(writer io.Writer, val string) error {
	if len(val) < 65536 {
		b := make([]byte, 3)
		b[0] = TypeMarkerString
		bele.BePutUint16(b[1:], uint16(len(val)))
		_, err := writer.Write(b)
		return err
	}
	b := make([]byte, 5)
	b[0] = TypeMarkerLongString
	bele.BePutUint32(b[1:], uint32(len(val)))
	_, err := writer.Write(b)
	return err
}

// writeStringWithoutType 用于Object的key
func writeStringWithoutType(writer io.Writer, val string) error {
	b := make([]byte, 2)
	bele.BePutUint16(b, uint16(len(val)))
	if _, err := writer.Write(b); err != nil {
		return err
	}
	_, err := io.WriteString(writer, val)
	return err
}
