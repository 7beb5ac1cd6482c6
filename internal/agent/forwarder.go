package agent

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

var errInvalidWrite = errors.New("invalid write result")

// Pump 是单向的数据搬运函数: 每次最多读取 bufferSize 字节，原样写入 dst。
// It returns a nil error on orderly end-of-stream and stops at the first
// read or write failure.
func Pump(dst io.Writer, src io.Reader, bufferSize int) (written int64, err error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	buf := make([]byte, bufferSize)
	for {
		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[:nr])
			if nw < 0 || nr < nw {
				nw = 0
				if ew == nil {
					ew = errInvalidWrite
				}
			}
			written += int64(nw)
			if ew != nil {
				return written, ew
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if er != nil {
			if er == io.EOF {
				return written, nil
			}
			return written, er
		}
	}
}

// relayResult 记录一次会话两个方向的字节数
type relayResult struct {
	Up   int64 // inbound -> outbound
	Down int64 // outbound -> inbound
}

// relayStreams 在两个连接之间双向转发，直到任一方向结束。
// Whichever pump finishes first closes both connections, which unblocks the
// other pump. Errors caused by that teardown are not reported.
func relayStreams(inbound, outbound net.Conn, bufferSize int) (relayResult, error) {
	var (
		res       relayResult
		closeOnce sync.Once
		g         errgroup.Group
	)
	teardown := func() {
		closeOnce.Do(func() {
			_ = inbound.Close()
			_ = outbound.Close()
		})
	}

	g.Go(func() error {
		defer teardown()
		n, err := Pump(outbound, inbound, bufferSize)
		res.Up = n
		return pumpError("client->target", err)
	})
	g.Go(func() error {
		defer teardown()
		n, err := Pump(inbound, outbound, bufferSize)
		res.Down = n
		return pumpError("target->client", err)
	})

	err := g.Wait()
	return res, err
}

func pumpError(direction string, err error) error {
	if err == nil || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return fmt.Errorf("%s: %w", direction, err)
}
