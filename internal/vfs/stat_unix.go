//go:build unix

package vfs

import (
	"os"

	"golang.org/x/sys/unix"
)

// FileAttrs carries the raw stat fields SPEC_FULL §3 adds to the fd
// resource's model-only attribute set (filetype inference, dev/ino for
// identity comparisons during replay diagnostics). These never cross the
// wire (spec §3: "Attributes are model-only state not present on the
// wire") — they exist purely so the environment's idea of a file's
// identity matches what a real WASI filestat would report.
type FileAttrs struct {
	Dev, Ino   uint64
	UID, GID   uint32
	Filetype   string
}

func statAttrs(path string, info os.FileInfo) *FileAttrs {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return &FileAttrs{Filetype: filetypeOf(info)}
	}
	return &FileAttrs{
		Dev:      uint64(st.Dev),
		Ino:      st.Ino,
		UID:      st.Uid,
		GID:      st.Gid,
		Filetype: filetypeOf(info),
	}
}

func filetypeOf(info os.FileInfo) string {
	switch {
	case info.IsDir():
		return "directory"
	case info.Mode()&os.ModeSymlink != 0:
		return "symbolic_link"
	case info.Mode()&os.ModeSocket != 0:
		return "socket_stream"
	default:
		return "regular_file"
	}
}

// deviceMatches reports whether two captured attrs refer to the same
// underlying host filesystem device.
func deviceMatches(a, b *FileAttrs) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Dev == b.Dev
}
