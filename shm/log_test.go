// Copyright 2016 Aleksandr Demakin. All rights reserved.

package shm

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	a := assert.New(t)
	var buff bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buff, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer SetLogger(nil)
	seg, err := Create(testObjName, 64)
	if !a.NoError(err) {
		return
	}
	a.NoError(seg.Close())
	a.Contains(buff.String(), "shared memory created")
	a.Contains(buff.String(), testObjName)
	a.Contains(buff.String(), "shared memory removed")
	SetLogger(nil)
	buff.Reset()
	seg, err = Create(testObjName, 64)
	if a.NoError(err) {
		seg.Close()
	}
	a.Empty(buff.String())
}
