package keyValStore

import (
	"errors"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

func (sc *StoreConfig) checkConfig() error {
	if len(sc.Paths) == 0 {
		return errors.New("no path provided in configuration")
	}

	path := sc.Paths[0] // Currently only the first path is utilized
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("path is not a directory")
	}

	return CheckFreeSpace(path, sc.MinimumFreeSpace)
}

// CheckFreeSpace fails when the filesystem holding path has less than
// minimumGB gigabytes available. A zero minimum disables the check.
func CheckFreeSpace(path string, minimumGB int) error {
	if minimumGB <= 0 {
		return nil
	}
	usage, err := disk.Usage(path)
	if err != nil {
		return fmt.Errorf("disk usage of %s: %w", path, err)
	}
	if usage.Free/(1024*1024*1024) < uint64(minimumGB) {
		return fmt.Errorf("not enough space available on %s: %d GB free, %d GB required",
			path, usage.Free/(1024*1024*1024), minimumGB)
	}
	return nil
}

// displayDiskUsage logs the usage of the filesystems holding paths.
func displayDiskUsage(log *logrus.Logger, paths []string) error {
	for _, path := range paths {
		usage, err := disk.Usage(path)
		if err != nil {
			log.WithFields(logrus.Fields{
				"path": path,
			}).Errorf("Error retrieving disk usage stats: %v", err)
			return err
		}

		log.WithFields(logrus.Fields{
			"Path":       path,
			"Filesystem": usage.Fstype,
			"Total (GB)": fmt.Sprintf("%.2f", float64(usage.Total)/1e9),
			"Used (GB)":  fmt.Sprintf("%.2f", float64(usage.Used)/1e9),
			"Free (GB)":  fmt.Sprintf("%.2f", float64(usage.Free)/1e9),
		}).Debug("Disk Usage")
	}

	return nil
}
