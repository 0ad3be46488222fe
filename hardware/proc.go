package hardware

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// UnlimitedMemory is what cgroup v1 reports for a missing limit.
const UnlimitedMemory = 9223372036854771712

var ErrUnlimited = errors.New("memory is unlimited")

// ReadNumber reads a file holding one integer, like the cgroup accounting files.
// cgroup v2 writes "max" for no limit, reported as ErrUnlimited.
func ReadNumber(path string) (int64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	text := strings.TrimSpace(string(b))
	if text == "max" {
		return 0, ErrUnlimited
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	if n >= UnlimitedMemory {
		return n, ErrUnlimited
	}
	return n, nil
}

// readField returns the value of key in a "key value [unit]" file such as
// memory.stat or /proc/meminfo.
func readField(path, key string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(strings.Replace(scanner.Text(), ":", " ", 1))
		if len(fields) < 2 || fields[0] != key {
			continue
		}
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %s in %s: %w", key, path, err)
		}
		if len(fields) > 2 && strings.EqualFold(fields[2], "kB") {
			n *= 1024
		}
		return n, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("%s not found in %s", key, path)
}

// ReadTotalInactiveFile reads the page cache that the kernel may reclaim from
// a cgroup memory.stat file. cgroup v1 names it total_inactive_file, v2
// inactive_file.
func ReadTotalInactiveFile(path string) (int64, error) {
	if n, err := readField(path, "total_inactive_file"); err == nil {
		return n, nil
	}
	return readField(path, "inactive_file")
}

func ReadMeminfoTotal(path string) (int64, error) {
	return readField(path, "MemTotal")
}

func ReadMeminfoAvailable(path string) (int64, error) {
	return readField(path, "MemAvailable")
}
