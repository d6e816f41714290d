// disk_usage.go — ёмкость диска директории загрузок (Unix).
package main

import (
	"fmt"
	"syscall"
)

// getDiskUsage возвращает total, used, available в байтах
// для файловой системы, на которой находится path.
func getDiskUsage(path string) (total, used, available int64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, 0, fmt.Errorf("ошибка statfs %s: %w", path, err)
	}

	bsize := int64(stat.Bsize)
	total = int64(stat.Blocks) * bsize
	available = int64(stat.Bavail) * bsize
	used = total - available
	return total, used, available, nil
}
