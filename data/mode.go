package data

// FileMode represents the POSIX mode reported for a record.
// Object stores carry no permissions, so only the type bits vary.
type FileMode uint32

const (
	// Type bits
	ModeDir     FileMode = 0040000 // S_IFDIR
	ModeRegular FileMode = 0100000 // S_IFREG
	ModeType    FileMode = 0170000 // S_IFMT

	// Permission bits
	ModePerm FileMode = 0777
)

// IsDir reports whether m describes a directory.
func (m FileMode) IsDir() bool {
	return m&ModeType == ModeDir
}

// IsRegular reports whether m describes a regular file.
func (m FileMode) IsRegular() bool {
	return m&ModeType == ModeRegular
}

// Perm returns the Unix permission bits in m.
func (m FileMode) Perm() FileMode {
	return m & ModePerm
}

// String returns a textual representation of the mode in ls -l format.
func (m FileMode) String() string {
	var buf [10]byte

	switch {
	case m.IsDir():
		buf[0] = 'd'
	default:
		buf[0] = '-'
	}

	const rwx = "rwxrwxrwx"
	for i, c := range rwx {
		if m&(1<<uint(9-1-i)) != 0 {
			buf[i+1] = byte(c)
		} else {
			buf[i+1] = '-'
		}
	}

	return string(buf[:])
}
