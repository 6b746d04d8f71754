// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package sim7080_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warthog618/sim7080/at"
	"github.com/warthog618/sim7080/sim7080"
)

var fsScript = poweredOn.merge(script{
	"AT+CFSINIT\r\n":                           reply("\r\nOK\r\n"),
	"AT+CFSWFILE=?\r\n":                        reply("\r\n+CFSWFILE: (0-4),<filename>,(0,1),(1-10240),(100-10000)\r\n", "\r\nOK\r\n"),
	"AT+CFSWFILE=3,\"config.txt\",0,6,9999\r\n": reply("\r\nDOWNLOAD\r\n"),
	"abc\r\nd":                                 reply("\r\nOK\r\n"),
	"AT+CFSTERM\r\n":                           reply("\r\nOK\r\n"),
	"AT+CFSDFILE=3,\"config.txt\"\r\n":          reply("\r\nOK\r\n"),
	"AT+CFSGFIS=3,\"config.txt\"\r\n":           reply("\r\n+CFSGFIS: 6\r\n", "\r\nOK\r\n"),
	"AT+CFSGFIS=3,\"empty.txt\"\r\n":            reply("\r\n+CFSGFIS: 0\r\n", "\r\nOK\r\n"),
	"AT+CFSGFIS=3,\"bad.txt\"\r\n":              reply("\r\n+CFSGFIS: many\r\n", "\r\nOK\r\n"),
})

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.txt")
	require.Nil(t, os.WriteFile(path, []byte("abc\r\nd"), 0o600))
	m, mm := newModem(t, fsScript)
	require.Equal(t, sim7080.PoweredOn, m.SyncStatus())
	err := m.WriteFile(context.Background(), path)
	require.Nil(t, err)
	assert.Equal(t, []string{
		"AT+CFSINIT\r\n",
		"AT+CFSWFILE=?\r\n",
		"AT+CFSWFILE=3,\"config.txt\",0,6,9999\r\n",
		"abc\r\nd",
		"AT+CFSTERM\r\n",
	}, mm.Writes()[mm.Index("AT+CFSINIT", 0):])
}

func TestWriteFileMissing(t *testing.T) {
	m, mm := newModem(t, fsScript)
	err := m.WriteFile(context.Background(), filepath.Join(t.TempDir(), "config.txt"))
	assert.NotNil(t, err)
	assert.Empty(t, mm.Writes())
}

func TestWriteFileDataAborts(t *testing.T) {
	s := fsScript.merge(script{
		"AT+CFSWFILE=3,\"config.txt\",0,6,9999\r\n": reply("\r\n+CME ERROR: operation not allowed\r\n"),
	})
	m, mm := newModem(t, s)
	require.Equal(t, sim7080.PoweredOn, m.SyncStatus())
	err := m.WriteFileData(context.Background(), "config.txt", []byte("abc\r\nd"))
	assert.Equal(t, at.CMEError("operation not allowed"), errors.Cause(err))
	assert.Equal(t, 0, mm.Count("abc"))
	assert.Equal(t, 0, mm.Count("AT+CFSTERM"))
}

func TestDeleteFile(t *testing.T) {
	m, mm := newModem(t, fsScript)
	require.Equal(t, sim7080.PoweredOn, m.SyncStatus())
	require.Nil(t, m.DeleteFile(context.Background(), "config.txt"))
	assert.Equal(t, 1, mm.Count("AT+CFSDFILE=3,\"config.txt\""))
	assert.Equal(t, 0, mm.Count("AT+CFSGFIS"))

	err := m.DeleteFile(context.Background(), "missing.txt")
	assert.Equal(t, at.ErrError, errors.Cause(err))
}

func TestFileExists(t *testing.T) {
	patterns := []struct {
		name   string
		exists bool
		err    error
	}{
		{"config.txt", true, nil},
		{"empty.txt", false, nil},
		{"missing.txt", false, nil},
		{"bad.txt", false, sim7080.ErrMalformedResponse},
	}
	m, _ := newModem(t, fsScript)
	require.Equal(t, sim7080.PoweredOn, m.SyncStatus())
	for _, p := range patterns {
		f := func(t *testing.T) {
			exists, err := m.FileExists(context.Background(), p.name)
			assert.Equal(t, p.err, errors.Cause(err))
			assert.Equal(t, p.exists, exists)
		}
		t.Run(p.name, f)
	}
}

func TestFileOpsPowerUnsupported(t *testing.T) {
	m, mm := newModem(t, script{"ATE0\r\n": reply()})
	err := m.DeleteFile(context.Background(), "config.txt")
	assert.Equal(t, sim7080.ErrPowerControlUnsupported, err)
	_, err = m.FileExists(context.Background(), "config.txt")
	assert.Equal(t, sim7080.ErrPowerControlUnsupported, err)
	assert.Equal(t, 0, mm.Count("AT+CFS"))
}
