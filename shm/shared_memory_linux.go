// Copyright 2015 Aleksandr Demakin. All rights reserved.

//go:build linux

package shm

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	ipc "github.com/nxgtw/go-shm"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	defaultShmPath   = "/dev/shm/"
	shmDirEnv        = "SHM_DIR"
	defaultPerm      = 0600
	cShmfsSuperMagic = 0x01021994
	cRamfsMagic      = 0x858458f6
)

var (
	shmPathOnce sync.Once
	shmPath     string
)

type mntent struct {
	fsname string /* Device or server for filesystem.  */
	dir    string /* Directory mounted on.  */
	fstype string /* Type of filesystem: ufs, nfs, etc.  */
	opts   string /* Comma-separated options for fs.  */
	freq   int    /* Dump frequency (in days).  */
	passno int    /* Pass number for `fsck'.  */
}

// glibc/sysdeps/posix/shm_open.c
func createObject(name string, size int) ([]byte, error) {
	path, err := shmName(name)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL|unix.O_NOFOLLOW, defaultPerm)
	if err != nil {
		return nil, classifyOpenError(err)
	}
	defer file.Close()
	var data []byte
	defer func() {
		if data == nil {
			os.Remove(path)
		}
	}()
	if err = file.Truncate(int64(size)); err != nil {
		return nil, errors.Wrap(err, "truncate failed")
	}
	if data, err = unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED); err != nil {
		return nil, errors.Wrapf(ErrMappingFailed, "mmap: %v", err)
	}
	return data, nil
}

func openObject(name string, access ipc.AccessType) ([]byte, error) {
	path, err := shmName(name)
	if err != nil {
		return nil, err
	}
	flag, prot := os.O_RDWR, unix.PROT_READ|unix.PROT_WRITE
	if access == ipc.ReadOnly {
		flag, prot = os.O_RDONLY, unix.PROT_READ
	}
	file, err := os.OpenFile(path, flag|unix.O_NOFOLLOW, 0)
	if err != nil {
		return nil, classifyOpenError(err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat failed")
	}
	size := info.Size()
	if size <= 0 {
		return nil, errors.Wrap(ErrInvalidSize, "the object is empty")
	}
	if int64(int(size)) != size {
		return nil, errors.Wrapf(ErrInvalidSize, "the object of size %d can't be mapped", size)
	}
	data, err := unix.Mmap(int(file.Fd()), 0, int(size), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(ErrMappingFailed, "mmap: %v", err)
	}
	return data, nil
}

func classifyOpenError(err error) error {
	switch {
	case os.IsExist(err):
		return errors.Wrap(ErrAlreadyExists, err.Error())
	case os.IsNotExist(err):
		return errors.Wrap(ErrNotFound, err.Error())
	default:
		return errors.Wrap(err, "open failed")
	}
}

func unmapData(data []byte) error {
	return unix.Munmap(data)
}

func flushData(data []byte, async bool) error {
	flag := unix.MS_SYNC
	if async {
		flag = unix.MS_ASYNC
	}
	return unix.Msync(data, flag)
}

func unlinkObject(name string) error {
	path, err := shmName(name)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// listObjects returns names of all objects, whose names start with prefix.
func listObjects(prefix string) ([]string, error) {
	dir, err := shmDirectory()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read shared memory directory")
	}
	base := strings.TrimPrefix(prefix, "/")
	var result []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasPrefix(entry.Name(), base) {
			result = append(result, "/"+entry.Name())
		}
	}
	return result, nil
}

// glibc/sysdeps/posix/shm-directory.h
func shmName(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	dir, err := shmDirectory()
	if err != nil {
		return "", errors.Wrap(err, "error building shared memory name")
	}
	return dir + name[1:], nil
}

func shmDirectory() (string, error) {
	shmPathOnce.Do(locateShmFs)
	if len(shmPath) == 0 {
		return shmPath, errors.New("error locating the shared memory path")
	}
	return shmPath, nil
}

// glibc/sysdeps/unix/sysv/linux/shm-directory.c
func locateShmFs() {
	if dir := os.Getenv(shmDirEnv); len(dir) > 0 {
		if !strings.HasSuffix(dir, "/") {
			dir += "/"
		}
		shmPath = dir
		return
	}
	if checkShmPath(defaultShmPath) {
		shmPath = defaultShmPath
	} else {
		shmPath = shmFsFromMounts()
	}
}

func checkShmPath(path string) bool {
	if len(path) == 0 {
		return false
	}
	var statfs unix.Statfs_t
	if err := unix.Statfs(path, &statfs); err != nil {
		return false
	}
	// statfs.Type has different types on different architectures.
	return isShmFs(int64(statfs.Type))
}

func isShmFs(fsType int64) bool {
	return fsType == cShmfsSuperMagic || fsType == cRamfsMagic
}

func shmFsFromMounts() string {
	var fsFile *os.File
	var err error
	if fsFile, err = os.Open("/proc/mounts"); err != nil {
		if fsFile, err = os.Open("/etc/fstab"); err != nil {
			return ""
		}
	}
	defer fsFile.Close()
	return shmFsFromReader(fsFile, checkShmPath)
}

func shmFsFromReader(r io.Reader, check func(string) bool) string {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		record := scanMountRecord(scanner.Text())
		if record == nil || (record.fstype != "tmpfs" && record.fstype != "shm") {
			continue
		}
		if result := record.dir; check(result) {
			if !strings.HasSuffix(result, "/") {
				result = result + "/"
			}
			return result
		}
	}
	return ""
}

func scanMountRecord(record string) *mntent {
	fields := strings.Fields(record)
	if len(fields) < 6 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	result := &mntent{fsname: fields[0], dir: fields[1], fstype: fields[2], opts: fields[3]}
	var err error
	if result.freq, err = strconv.Atoi(fields[4]); err != nil {
		return nil
	}
	if result.passno, err = strconv.Atoi(fields[5]); err != nil {
		return nil
	}
	return result
}
