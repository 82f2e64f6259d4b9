// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package amf0

// amf0.go
// @pure
// 提供amf0格式的解码操作，FLV的script data tag使用

import (
	"bytes"
	"math"
	"time"

	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/naza/pkg/bele"
)

var Log = base.Log

const (
	TypeMarkerNumber      = uint8(0x00)
	TypeMarkerBoolean     = uint8(0x01)
	TypeMarkerString      = uint8(0x02)
	TypeMarkerObject      = uint8(0x03)
	TypeMarkerMovieclip   = uint8(0x04)
	TypeMarkerNull        = uint8(0x05)
	TypeMarkerUndefined   = uint8(0x06)
	TypeMarkerReference   = uint8(0x07)
	TypeMarkerEcmaArray   = uint8(0x08)
	TypeMarkerObjectEnd   = uint8(0x09)
	TypeMarkerStrictArray = uint8(0x0a)
	TypeMarkerDate        = uint8(0x0b)
	TypeMarkerLongString  = uint8(0x0c)
	TypeMarkerUnsupported = uint8(0x0d)
	TypeMarkerRecordset   = uint8(0x0e)
	TypeMarkerXmlDocument = uint8(0x0f)
	TypeMarkerTypedObject = uint8(0x10)
)

var ObjectEndBytes = []byte{0, 0, TypeMarkerObjectEnd}

var (
	ErrAmfInvalidType = base.ErrAmfInvalidType
	ErrAmfTooShort    = base.ErrAmfTooShort
	ErrAmfNotExist    = base.ErrAmfNotExist
)

// ObjectPairArray Object和ECMA array解析后的结果，保持原始顺序
type ObjectPairArray []base.MetadataPair

// Find 没找到返回nil
func (o ObjectPairArray) Find(key string) interface{} {
	for _, op := range o {
		if op.Key == key {
			return op.Value
		}
	}
	return nil
}

func (o ObjectPairArray) FindString(key string) (string, error) {
	v, ok := o.Find(key).(string)
	if !ok {
		return "", ErrAmfNotExist
	}
	return v, nil
}

func (o ObjectPairArray) FindNumber(key string) (float64, error) {
	v, ok := o.Find(key).(float64)
	if !ok {
		return 0, ErrAmfNotExist
	}
	return v, nil
}

func (o ObjectPairArray) FindBoolean(key string) (bool, error) {
	v, ok := o.Find(key).(bool)
	if !ok {
		return false, ErrAmfNotExist
	}
	return v, nil
}

func (o ObjectPairArray) FindObject(key string) (ObjectPairArray, error) {
	v, ok := o.Find(key).(ObjectPairArray)
	if !ok {
		return nil, ErrAmfNotExist
	}
	return v, nil
}

func (o ObjectPairArray) FindStrictArray(key string) ([]interface{}, error) {
	v, ok := o.Find(key).([]interface{})
	if !ok {
		return nil, ErrAmfNotExist
	}
	return v, nil
}

// ---------------------------------------------------------------------------------------------------------------------

// ParseScriptData 解析script data tag的body，也即一个name/value对，e.g. "onMetaData" + ECMA array
//
// @param b: 函数调用结束后，内部不持有该内存块
func ParseScriptData(b []byte) (name string, value interface{}, err error) {
	name, l, err := ReadString(b)
	if err != nil {
		return "", nil, err
	}
	value, _, _, err = ParseValue(b[l:])
	if err != nil {
		return "", nil, err
	}
	return name, value, nil
}

// ParseValue 从<b>的起始位置解析一个amf0值
//
// @param b: 整个<b>被认为是该值所在的区域，Object和ECMA array缺少结束符时以区域大小作为结束
//
// @return v:         见ObjectPairArray以及包文档中的类型对应关系
// @return size:      消耗的字节数
// @return objectEnd: 是否读到了ObjectEnd类型
func ParseValue(b []byte) (v interface{}, size int, objectEnd bool, err error) {
	if len(b) < 1 {
		return nil, 0, false, ErrAmfTooShort
	}

	var l int
	switch b[0] {
	case TypeMarkerNumber:
		v, l, err = readNumberWithoutType(b[1:])
	case TypeMarkerBoolean:
		v, l, err = readBooleanWithoutType(b[1:])
	case TypeMarkerString:
		v, l, err = readStringWithoutType(b[1:])
	case TypeMarkerLongString:
		v, l, err = readLongStringWithoutType(b[1:])
	case TypeMarkerObject:
		v, l, err = readObjectWithoutType(b[1:])
	case TypeMarkerEcmaArray:
		if len(b) < 5 {
			return nil, 0, false, ErrAmfTooShort
		}
		// 数组长度字段不可信，以结束符为准
		v, l, err = readObjectWithoutType(b[5:])
		l += 4
	case TypeMarkerStrictArray:
		v, l, err = readStrictArrayWithoutType(b[1:])
	case TypeMarkerDate:
		v, l, err = readDateWithoutType(b[1:])
	case TypeMarkerNull, TypeMarkerUndefined:
		v = nil
	case TypeMarkerObjectEnd:
		objectEnd = true
	default:
		Log.Warnf("unsupported amf0 type, skip rest. type=%d, len=%d", b[0], len(b))
		return nil, len(b), false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	return v, l + 1, objectEnd, nil
}

func ReadString(b []byte) (val string, l int, err error) {
	if len(b) < 1 {
		return "", 0, ErrAmfTooShort
	}
	switch b[0] {
	case TypeMarkerString:
		val, l, err = readStringWithoutType(b[1:])
	case TypeMarkerLongString:
		val, l, err = readLongStringWithoutType(b[1:])
	default:
		err = base.NewErrAmfInvalidType(b[0])
	}
	return val, l + 1, err
}

func ReadNumber(b []byte) (float64, int, error) {
	if len(b) < 9 {
		return 0, 0, ErrAmfTooShort
	}
	if b[0] != TypeMarkerNumber {
		return 0, 0, base.NewErrAmfInvalidType(b[0])
	}
	v, _, _ := readNumberWithoutType(b[1:])
	return v, 9, nil
}

// ---------------------------------------------------------------------------------------------------------------------

func readNumberWithoutType(b []byte) (float64, int, error) {
	if len(b) < 8 {
		return 0, 0, ErrAmfTooShort
	}
	return math.Float64frombits(bele.BeUint64(b)), 8, nil
}

func readBooleanWithoutType(b []byte) (bool, int, error) {
	if len(b) < 1 {
		return false, 0, ErrAmfTooShort
	}
	return b[0] != 0, 1, nil
}

func readStringWithoutType(b []byte) (string, int, error) {
	if len(b) < 2 {
		return "", 0, ErrAmfTooShort
	}
	l := int(bele.BeUint16(b))
	if l > len(b)-2 {
		return "", 0, ErrAmfTooShort
	}
	return string(b[2 : 2+l]), 2 + l, nil
}

func readLongStringWithoutType(b []byte) (string, int, error) {
	if len(b) < 4 {
		return "", 0, ErrAmfTooShort
	}
	l := int(bele.BeUint32(b))
	if l > len(b)-4 {
		return "", 0, ErrAmfTooShort
	}
	return string(b[4 : 4+l]), 4 + l, nil
}

// readDateWithoutType 8字节毫秒时间戳 + 2字节时区偏移（分钟）
func readDateWithoutType(b []byte) (time.Time, int, error) {
	if len(b) < 10 {
		return time.Time{}, 0, ErrAmfTooShort
	}
	ms := math.Float64frombits(bele.BeUint64(b))
	offset := int16(bele.BeUint16(b[8:]))
	ms += float64(offset) * 60 * 1000
	return time.UnixMilli(int64(ms)).UTC(), 10, nil
}

// readObjectWithoutType Object和ECMA array共用
//
// 以下情况结束：
// - 读到结束符 00 00 09
// - 区域剩余字节不足以容纳一个属性
// - 某个属性解析失败，此时返回已解析出的部分，并消耗掉剩余区域
func readObjectWithoutType(b []byte) (ObjectPairArray, int, error) {
	var ops ObjectPairArray
	index := 0
	for {
		if len(b)-index >= 3 && bytes.Equal(b[index:index+3], ObjectEndBytes) {
			return ops, index + 3, nil
		}
		// key至少2字节，value至少1字节
		if len(b)-index < 3 {
			return ops, len(b), nil
		}

		k, l, err := readStringWithoutType(b[index:])
		if err != nil {
			Log.Warnf("read amf0 object key failed, keep parsed part. err=%+v, index=%d, len=%d", err, index, len(b))
			return ops, len(b), nil
		}
		v, vl, objectEnd, err := ParseValue(b[index+l:])
		if err != nil {
			Log.Warnf("read amf0 object value failed, keep parsed part. key=%s, err=%+v", k, err)
			return ops, len(b), nil
		}
		index += l + vl
		if objectEnd {
			return ops, index, nil
		}
		ops = append(ops, base.MetadataPair{Key: k, Value: v})
	}
}

func readStrictArrayWithoutType(b []byte) ([]interface{}, int, error) {
	if len(b) < 4 {
		return nil, 0, ErrAmfTooShort
	}
	n := int(bele.BeUint32(b))
	index := 4
	// 每个元素至少1字节
	if n > len(b)-index {
		return nil, 0, ErrAmfTooShort
	}
	ret := make([]interface{}, 0, n)
	for i := 0; i < n; i++ {
		v, l, _, err := ParseValue(b[index:])
		if err != nil {
			return nil, 0, err
		}
		ret = append(ret, v)
		index += l
	}
	return ret, index, nil
}
