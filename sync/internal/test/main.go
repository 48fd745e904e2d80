// Copyright 2015 Aleksandr Demakin. All rights reserved.

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	ipc "github.com/nxgtw/go-shm"
	"github.com/nxgtw/go-shm/internal/allocator"
	ipc_testing "github.com/nxgtw/go-shm/internal/test"
	"github.com/nxgtw/go-shm/shm"
	ipc_sync "github.com/nxgtw/go-shm/sync"

	"github.com/pkg/errors"
)

var (
	jobs    = flag.Int("jobs", 1, "count of simultaneous jobs")
	logFile = flag.String("log", "", "file to write log into")
	log     = slog.New(slog.DiscardHandler)
)

const usage = `  test program for synchronization primitives.
the segment must start with an initialized process mutex, followed by the data.
available commands:
  inc64 shm_name n
    increments an int64 value placed right after the mutex n times
  test shm_name n {expected values byte array}
    performs n locked reads from shm_name and compares the results with the expected data
if jobs > 1, all goroutines will execute the operations.
byte array should be passed as a continuous string of 2-symbol hex byte values like '01020A'
`

func openLocked(name string) (*shm.Segment, *ipc_sync.ProcessMutex, error) {
	seg, err := shm.Open(name, ipc.ReadWrite)
	if err != nil {
		return nil, nil, err
	}
	if seg.Size() < ipc_sync.ProcessMutexSize+8 {
		seg.Close()
		return nil, nil, errors.Errorf("segment %q is too small: %d", name, seg.Size())
	}
	mutex, err := ipc_sync.Attach(seg.Data())
	if err != nil {
		seg.Close()
		return nil, nil, err
	}
	return seg, mutex, nil
}

func inc64() error {
	if flag.NArg() != 3 {
		return errors.New("inc64: must provide exactly two arguments")
	}
	n, err := strconv.Atoi(flag.Arg(2))
	if err != nil {
		return err
	}
	seg, mutex, err := openLocked(flag.Arg(1))
	if err != nil {
		return err
	}
	defer seg.Close()
	ptr := (*int64)(allocator.AdvancePointer(allocator.ByteSliceData(seg.Data()), ipc_sync.ProcessMutexSize))
	err = performParallel(func(id int) error {
		for i := 0; i < n; i++ {
			mutex.Lock()
			*ptr++
			mutex.Unlock()
		}
		log.Debug("job done", "id", id)
		return nil
	})
	if err == nil {
		mutex.Lock()
		fmt.Println(*ptr)
		mutex.Unlock()
	}
	return err
}

func test() error {
	if flag.NArg() != 4 {
		return errors.New("test: must provide exactly three arguments")
	}
	n, err := strconv.Atoi(flag.Arg(2))
	if err != nil {
		return err
	}
	expected, err := ipc_testing.StringToBytes(flag.Arg(3))
	if err != nil {
		return err
	}
	seg, mutex, err := openLocked(flag.Arg(1))
	if err != nil {
		return err
	}
	defer seg.Close()
	data := seg.Data()[ipc_sync.ProcessMutexSize:]
	if len(data) < len(expected) {
		return errors.Errorf("segment is too small for %d bytes", len(expected))
	}
	return performParallel(func(id int) error {
		for i := 0; i < n; i++ {
			if err := testData(expected, data, mutex, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func performParallel(f func(int) error) error {
	var result error
	ch := make(chan error, *jobs)
	for nJob := 0; nJob < *jobs; nJob++ {
		go func(id int) {
			ch <- f(id)
		}(nJob)
	}
	for nJob := 0; nJob < *jobs; nJob++ {
		err := <-ch
		if result == nil && err != nil { // save the first error
			result = err
		}
	}
	return result
}

func testData(expected, actual []byte, mutex *ipc_sync.ProcessMutex, id int) error {
	mutex.Lock()
	log.Debug("got the lock", "id", id)
	defer func() {
		mutex.Unlock()
		log.Debug("released the lock", "id", id)
	}()
	for i, expectedValue := range expected {
		if actualValue := actual[i]; expectedValue != actualValue {
			return errors.Errorf("invalid value at %d. expected '%d', got '%d'", i, expectedValue, actualValue)
		}
	}
	return nil
}

func runCommand() error {
	if *jobs <= 0 {
		return errors.New("invalid jobs number")
	}
	switch command := flag.Arg(0); command {
	case "inc64":
		return inc64()
	case "test":
		return test()
	default:
		return errors.Errorf("unknown command %q", command)
	}
}

func initLogs() func() {
	if len(*logFile) == 0 {
		return func() {}
	}
	file, err := os.Create(*logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "can't init logs: %v", err)
		os.Exit(1)
	}
	log = slog.New(slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return func() {
		file.Close()
	}
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Print(usage)
		flag.Usage()
		os.Exit(1)
	}
	closeLogs := initLogs()
	log.Debug("started", "args", flag.Args())
	err := runCommand()
	closeLogs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
