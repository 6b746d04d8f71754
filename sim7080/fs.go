// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package sim7080

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/warthog618/sim7080/at"
)

// the module filesystem directory, /customer/
const fsDir = 3

// maximum time, in ms, the module waits for file content
const fsInputTime = 9999

// WriteFile copies the local file to the module filesystem, under its base
// name.
func (m *Modem) WriteFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read local file")
	}
	return m.WriteFileData(ctx, filepath.Base(path), data)
}

// WriteFileData writes the data to the named file on the module filesystem,
// replacing any existing content.
//
// A failure at any step aborts the write, and no attempt is made to clean up.
func (m *Modem) WriteFileData(ctx context.Context, name string, data []byte) error {
	m.log.Info("writing file", zap.String("file", name), zap.Int("size", len(data)))
	if err := m.EnsurePower(ctx); err != nil {
		return err
	}
	m.Execute("+CFSINIT")
	m.Test("+CFSWFILE")
	rsp := m.Write("+CFSWFILE",
		fmt.Sprintf(`%d,"%s",0,%d,%d`, fsDir, name, len(data), fsInputTime),
		at.WithTerminal("DOWNLOAD"))
	if err := rspError(rsp, "open "+name); err != nil {
		return err
	}
	if err := rspError(m.Send(data, at.WithCmdTimeout(m.long)), "write "+name); err != nil {
		return err
	}
	return rspError(m.Execute("+CFSTERM"), "close filesystem")
}

// DeleteFile removes the named file from the module filesystem.
func (m *Modem) DeleteFile(ctx context.Context, name string) error {
	m.log.Info("deleting file", zap.String("file", name))
	if err := m.EnsurePower(ctx); err != nil {
		return err
	}
	return rspError(m.Write("+CFSDFILE", fmt.Sprintf(`%d,"%s"`, fsDir, name)), "delete "+name)
}

// FileExists returns true if the named file exists on the module filesystem
// and is not empty.
func (m *Modem) FileExists(ctx context.Context, name string) (bool, error) {
	if err := m.EnsurePower(ctx); err != nil {
		return false, err
	}
	rsp := m.Write("+CFSGFIS", fmt.Sprintf(`%d,"%s"`, fsDir, name))
	if rsp.IsError() {
		m.log.Info("file does not exist", zap.String("file", name))
		return false, nil
	}
	size, err := strconv.Atoi(rsp.Line(0))
	if err != nil {
		return false, errors.Wrapf(ErrMalformedResponse, "file size %q", rsp.Line(0))
	}
	m.log.Debug("file size", zap.String("file", name), zap.Int("size", size))
	return size > 0, nil
}
