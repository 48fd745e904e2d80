// Copyright 2015 Aleksandr Demakin. All rights reserved.

package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	ipc "github.com/nxgtw/go-shm"
	ipc_testing "github.com/nxgtw/go-shm/internal/test"
	"github.com/nxgtw/go-shm/shm"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

var (
	objName = flag.String("object", "", "shared memory object name")
)

const usage = `  test program for shared memory.
available commands:
  destroy
  digest
  read offset len
  test offset {expected values byte array}
  write offset {values byte array}
byte array should be passed as a continuous string of 2-symbol hex byte values like '01020A'
`

func destroy() error {
	if flag.NArg() != 1 {
		return errors.New("destroy: must not provide any arguments")
	}
	return shm.Unlink(*objName)
}

func digest() error {
	if flag.NArg() != 1 {
		return errors.New("digest: must not provide any arguments")
	}
	seg, err := shm.Open(*objName, ipc.ReadOnly)
	if err != nil {
		return err
	}
	defer seg.Close()
	fmt.Printf("%016x\n", xxhash.Sum64(seg.Data()))
	return nil
}

func parseOffsetAndData() (int, []byte, error) {
	if flag.NArg() != 3 {
		return 0, nil, errors.Errorf("%s: must provide exactly two arguments", flag.Arg(0))
	}
	offset, err := strconv.Atoi(flag.Arg(1))
	if err != nil {
		return 0, nil, err
	}
	data, err := ipc_testing.StringToBytes(flag.Arg(2))
	if err != nil {
		return 0, nil, err
	}
	return offset, data, nil
}

func read() error {
	if flag.NArg() != 3 {
		return errors.New("read: must provide exactly two arguments")
	}
	offset, err := strconv.Atoi(flag.Arg(1))
	if err != nil {
		return err
	}
	length, err := strconv.Atoi(flag.Arg(2))
	if err != nil {
		return err
	}
	seg, err := shm.Open(*objName, ipc.ReadOnly)
	if err != nil {
		return err
	}
	defer seg.Close()
	data := make([]byte, length)
	if _, err = shm.NewReader(seg).ReadAt(data, int64(offset)); err != nil {
		return err
	}
	if len(data) > 0 {
		fmt.Println(ipc_testing.BytesToString(data))
	}
	return nil
}

func test() error {
	offset, data, err := parseOffsetAndData()
	if err != nil {
		return err
	}
	seg, err := shm.Open(*objName, ipc.ReadOnly)
	if err != nil {
		return err
	}
	defer seg.Close()
	actual := make([]byte, len(data))
	if _, err = shm.NewReader(seg).ReadAt(actual, int64(offset)); err != nil {
		return err
	}
	for i, value := range actual {
		if value != data[i] {
			return errors.Errorf("invalid value at %d. expected '%d', got '%d'", i, data[i], value)
		}
	}
	return nil
}

func write() error {
	offset, data, err := parseOffsetAndData()
	if err != nil {
		return err
	}
	seg, err := shm.Open(*objName, ipc.ReadWrite)
	if err != nil {
		return err
	}
	defer func() {
		seg.Flush(true)
		seg.Close()
	}()
	_, err = shm.NewWriter(seg).WriteAt(data, int64(offset))
	return err
}

func runCommand() error {
	command := flag.Arg(0)
	switch command {
	case "destroy":
		return destroy()
	case "digest":
		return digest()
	case "read":
		return read()
	case "test":
		return test()
	case "write":
		return write()
	default:
		return errors.Errorf("unknown command %q", command)
	}
}

func main() {
	flag.Parse()
	if len(*objName) == 0 || flag.NArg() == 0 {
		fmt.Print(usage)
		flag.Usage()
		os.Exit(1)
	}
	if err := runCommand(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
