// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/naza/pkg/bitrate"
	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/q191201771/naza/pkg/nazalog"
)

// FileSink 每个track写一个fmp4文件，init segment后面依次追加media segment
//
// init segment再次到来时（比如codec变化），重新创建文件，旧文件以序号命名保留
type FileSink struct {
	outDir string

	mu      sync.Mutex
	files   map[base.TrackType]*os.File
	initSeq map[base.TrackType]int
	br      bitrate.Bitrate
}

func NewFileSink(outDir string) (*FileSink, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}
	return &FileSink{
		outDir:  outDir,
		files:   make(map[base.TrackType]*os.File),
		initSeq: make(map[base.TrackType]int),
		br: bitrate.New(func(option *bitrate.Option) {
			option.WindowMs = 5000
		}),
	}, nil
}

func (s *FileSink) AppendInitSegment(seg base.InitSegment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fp, ok := s.files[seg.Type]; ok {
		_ = fp.Close()
	}
	seq := s.initSeq[seg.Type]
	s.initSeq[seg.Type] = seq + 1

	filename := filepath.Join(s.outDir, fmt.Sprintf("%s.mp4", seg.Type))
	if seq > 0 {
		filename = filepath.Join(s.outDir, fmt.Sprintf("%s_%d.mp4", seg.Type, seq))
	}
	fp, err := os.Create(filename)
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	nazalog.Infof("create file. filename=%s, %s", filename, seg.DebugString())
	s.files[seg.Type] = fp
	return s.write(fp, seg.Data)
}

func (s *FileSink) AppendMediaSegment(seg base.MediaSegment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp, ok := s.files[seg.Type]
	if !ok {
		nazalog.Warnf("media segment before init segment, drop it. %s", seg.DebugString())
		return nil
	}
	nazalog.Debugf("write media segment. %s", seg.DebugString())
	return s.write(fp, seg.Data)
}

// Rate 单位kbit/s
func (s *FileSink) Rate() float32 {
	return s.br.Rate()
}

func (s *FileSink) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for typ, fp := range s.files {
		_ = fp.Close()
		delete(s.files, typ)
	}
}

func (s *FileSink) write(fp *os.File, b []byte) error {
	s.br.Add(len(b))
	if _, err := fp.Write(b); err != nil {
		return nazaerrors.Wrap(err)
	}
	return nil
}
