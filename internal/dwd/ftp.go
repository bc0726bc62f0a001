package dwd

import (
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
)

const (
	DefaultFTPHost = "opendata.dwd.de:21"
	DefaultFTPDir  = "/climate_environment/CDC/observations_germany/climate/daily/kl/historical"
)

// FTPFetcher reads archives and directory listings from the DWD anonymous
// FTP mirror.
type FTPFetcher struct {
	host       string
	dir        string
	timeout    time.Duration
	maxElapsed time.Duration
}

func NewFTPFetcher(host, dir string, timeout time.Duration) *FTPFetcher {
	if host == "" {
		host = DefaultFTPHost
	}
	if dir == "" {
		dir = DefaultFTPDir
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &FTPFetcher{host: host, dir: dir, timeout: timeout, maxElapsed: 2 * time.Minute}
}

func (f *FTPFetcher) Transport() string { return "ftp" }

// ftpConns tracks the control and data connections of one FTP session. Each
// connection carries the context deadline and is closed once the context
// ends; the client library itself only bounds the dial.
type ftpConns struct {
	mu     sync.Mutex
	conns  []net.Conn
	closed bool
}

func (fc *ftpConns) dialer(ctx context.Context, timeout time.Duration) func(network, address string) (net.Conn, error) {
	d := &net.Dialer{Timeout: timeout}
	return func(network, address string) (net.Conn, error) {
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetDeadline(deadline)
		}

		fc.mu.Lock()
		defer fc.mu.Unlock()
		if fc.closed {
			conn.Close()
			return nil, net.ErrClosed
		}
		fc.conns = append(fc.conns, conn)
		return conn, nil
	}
}

func (fc *ftpConns) closeAll() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.closed = true
	for _, conn := range fc.conns {
		conn.Close()
	}
}

func (f *FTPFetcher) dial(ctx context.Context, fc *ftpConns) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(f.host, ftp.DialWithDialFunc(fc.dialer(ctx, f.timeout)))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	if err := conn.Login("anonymous", "anonymous"); err != nil {
		conn.Quit()
		return nil, backoff.Permanent(fmt.Errorf("ftp login: %w", err))
	}
	return conn, nil
}

func (f *FTPFetcher) retry(ctx context.Context, op func(conn *ftp.ServerConn) error) error {
	operation := func() error {
		fc := &ftpConns{}
		stop := context.AfterFunc(ctx, fc.closeAll)
		defer stop()

		err := func() error {
			conn, err := f.dial(ctx, fc)
			if err != nil {
				return err
			}
			defer conn.Quit()
			return op(conn)
		}()
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ctx.Err(), err))
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = f.maxElapsed
	return backoff.Retry(operation, backoff.WithContext(bo, ctx))
}

func (f *FTPFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	var body []byte
	err := f.retry(ctx, func(conn *ftp.ServerConn) error {
		resp, err := conn.Retr(path.Join(f.dir, name))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("ftp retr %s: %w", name, err))
		}
		defer resp.Close()

		body, err = io.ReadAll(resp)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// List returns the sorted archive names (*.zip) of the remote directory.
func (f *FTPFetcher) List(ctx context.Context) ([]string, error) {
	var names []string
	err := f.retry(ctx, func(conn *ftp.ServerConn) error {
		entries, err := conn.NameList(f.dir)
		if err != nil {
			return fmt.Errorf("ftp nlst: %w", err)
		}
		names = names[:0]
		for _, e := range entries {
			base := path.Base(e)
			if strings.HasSuffix(base, ".zip") {
				names = append(names, base)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
