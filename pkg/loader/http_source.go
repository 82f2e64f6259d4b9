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
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/naza/pkg/nazaatomic"
)

const SourceTypeHttp = "http"

// HttpSource 通过http range请求读取数据
type HttpSource struct {
	uniqueKey string
	config    SourceConfig
	observer  IByteSourceObserver
	client    *http.Client

	working nazaatomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	timeoutMutex sync.Mutex
	readTimeout  bool
}

func NewHttpSource(config SourceConfig, observer IByteSourceObserver) (*HttpSource, error) {
	if observer == nil {
		return nil, base.ErrNilObserver
	}
	if config.ReadChunkSize <= 0 {
		config.ReadChunkSize = defaultReadChunkSize
	}

	connectTimeout := time.Duration(config.HttpConnectTimeoutMs) * time.Millisecond
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: connectTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	uk := base.GenUkHttpSource()
	Log.Debugf("[%s] lifecycle new http source.", uk)
	return &HttpSource{
		uniqueKey: uk,
		config:    config,
		observer:  observer,
		client:    &http.Client{Transport: transport},
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (s *HttpSource) Open(ds DataSource, r Range) error {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, ds.Url, nil)
	if err != nil {
		return err
	}
	if r.From != 0 || r.To != -1 {
		if r.To == -1 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", r.From))
		} else {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", r.From, r.To))
		}
	}
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}

	Log.Debugf("[%s] > http request. url=%s, range=%s", s.uniqueKey, ds.Url, r)
	s.working.Store(true)
	go s.runReadLoop(req, r)
	return nil
}

func (s *HttpSource) Abort() {
	if s.working.Load() {
		Log.Debugf("[%s] abort.", s.uniqueKey)
	}
	s.working.Store(false)
	s.cancel()
}

func (s *HttpSource) IsWorking() bool {
	return s.working.Load()
}

func (s *HttpSource) Type() string {
	return SourceTypeHttp
}

func (s *HttpSource) isAborted() bool {
	return s.ctx.Err() != nil && !s.isReadTimeout()
}

func (s *HttpSource) isReadTimeout() bool {
	s.timeoutMutex.Lock()
	defer s.timeoutMutex.Unlock()
	return s.readTimeout
}

func (s *HttpSource) onReadTimeout() {
	s.timeoutMutex.Lock()
	s.readTimeout = true
	s.timeoutMutex.Unlock()
	s.cancel()
}

func (s *HttpSource) runReadLoop(req *http.Request, r Range) {
	defer s.working.Store(false)

	resp, err := s.client.Do(req)
	if err != nil {
		if s.isAborted() {
			return
		}
		s.reportError(err, "")
		return
	}
	defer resp.Body.Close()

	Log.Debugf("[%s] < http response. status=%d, content-length=%d", s.uniqueKey, resp.StatusCode, resp.ContentLength)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if s.isAborted() {
			return
		}
		s.observer.OnError(base.NewIoError(base.IoErrorKindHttpStatusInvalid, resp.StatusCode, resp.Status))
		return
	}

	body := io.Reader(resp.Body)
	if r.From > 0 && resp.StatusCode == http.StatusOK {
		// 服务端不支持range，自己跳过前面的数据
		Log.Warnf("[%s] server does not support range request, skip %d bytes.", s.uniqueKey, r.From)
		if _, err = io.CopyN(io.Discard, body, r.From); err != nil {
			if !s.isAborted() {
				s.reportError(err, "")
			}
			return
		}
		if resp.ContentLength > 0 {
			resp.ContentLength -= r.From
		}
	}

	contentLength := resp.ContentLength
	if contentLength > 0 {
		s.observer.OnContentLengthKnown(contentLength)
	}

	var timer *time.Timer
	if s.config.HttpReadTimeoutMs > 0 {
		timeout := time.Duration(s.config.HttpReadTimeoutMs) * time.Millisecond
		timer = time.AfterFunc(timeout, s.onReadTimeout)
		defer timer.Stop()
	}

	pos := r.From
	var received int64
	for {
		chunk := make([]byte, s.config.ReadChunkSize)
		n, err := io.ReadAtLeast(body, chunk, 1)
		if timer != nil {
			timer.Reset(time.Duration(s.config.HttpReadTimeoutMs) * time.Millisecond)
		}
		if n > 0 {
			if s.isAborted() {
				return
			}
			received += int64(n)
			s.observer.OnDataArrival(chunk[:n], pos, received)
			pos += int64(n)
		}
		if err == nil {
			continue
		}
		if s.isAborted() {
			return
		}
		if errors.Is(err, io.EOF) {
			if contentLength > 0 && received < contentLength {
				s.observer.OnError(base.NewIoError(base.IoErrorKindEarlyEof, -1,
					fmt.Sprintf("received=%d, content-length=%d", received, contentLength)))
				return
			}
			s.working.Store(false)
			s.observer.OnComplete(r.From, pos-1)
			return
		}
		if contentLength > 0 && received < contentLength {
			s.observer.OnError(base.NewIoError(base.IoErrorKindEarlyEof, -1, err.Error()))
			return
		}
		s.reportError(err, "")
		return
	}
}

func (s *HttpSource) reportError(err error, msg string) {
	kind := base.IoErrorKindException
	var netErr net.Error
	if s.isReadTimeout() || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = base.IoErrorKindConnectingTimeout
	}
	if msg == "" {
		msg = err.Error()
	}
	Log.Errorf("[%s] http source error. kind=%s, err=%+v", s.uniqueKey, kind, err)
	s.observer.OnError(base.NewIoError(kind, -1, msg))
}
