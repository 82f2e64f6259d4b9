// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package loader

import (
	"context"
	"io"
	"os"

	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/q191201771/naza/pkg/nazaerrors"
)

const SourceTypeFile = "file"

// FileSource 读取本地文件
type FileSource struct {
	uniqueKey string
	config    SourceConfig
	observer  IByteSourceObserver

	working nazaatomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewFileSource(config SourceConfig, observer IByteSourceObserver) (*FileSource, error) {
	if observer == nil {
		return nil, base.ErrNilObserver
	}
	if config.ReadChunkSize <= 0 {
		config.ReadChunkSize = defaultReadChunkSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	uk := base.GenUkFileSource()
	Log.Debugf("[%s] lifecycle new file source.", uk)
	return &FileSource{
		uniqueKey: uk,
		config:    config,
		observer:  observer,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (s *FileSource) Open(ds DataSource, r Range) error {
	urlCtx, err := base.ParseSourceUrl(ds.Url)
	if err != nil {
		return err
	}
	fp, err := os.Open(urlCtx.Path)
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	fi, err := fp.Stat()
	if err != nil {
		_ = fp.Close()
		return nazaerrors.Wrap(err)
	}

	end := fi.Size() - 1
	if r.To != -1 && r.To < end {
		end = r.To
	}
	if r.From > 0 {
		if _, err = fp.Seek(r.From, io.SeekStart); err != nil {
			_ = fp.Close()
			return nazaerrors.Wrap(err)
		}
	}

	Log.Debugf("[%s] open. path=%s, range=%s, size=%d", s.uniqueKey, urlCtx.Path, r, fi.Size())
	s.working.Store(true)
	go s.runReadLoop(fp, r.From, end)
	return nil
}

func (s *FileSource) Abort() {
	if s.working.Load() {
		Log.Debugf("[%s] abort.", s.uniqueKey)
	}
	s.working.Store(false)
	s.cancel()
}

func (s *FileSource) IsWorking() bool {
	return s.working.Load()
}

func (s *FileSource) Type() string {
	return SourceTypeFile
}

func (s *FileSource) isAborted() bool {
	return s.ctx.Err() != nil
}

func (s *FileSource) runReadLoop(fp *os.File, from, end int64) {
	defer func() {
		_ = fp.Close()
		s.working.Store(false)
	}()

	if s.isAborted() {
		return
	}
	s.observer.OnContentLengthKnown(end - from + 1)

	pos := from
	var received int64
	for pos <= end {
		n := int64(s.config.ReadChunkSize)
		if end+1-pos < n {
			n = end + 1 - pos
		}
		chunk := make([]byte, n)
		if _, err := io.ReadFull(fp, chunk); err != nil {
			if s.isAborted() {
				return
			}
			Log.Errorf("[%s] read file failed. pos=%d, err=%+v", s.uniqueKey, pos, err)
			s.observer.OnError(base.NewIoError(base.IoErrorKindException, -1, err.Error()))
			return
		}
		if s.isAborted() {
			return
		}
		received += n
		s.observer.OnDataArrival(chunk, pos, received)
		pos += n
	}

	if s.isAborted() {
		return
	}
	s.working.Store(false)
	s.observer.OnComplete(from, end)
}
