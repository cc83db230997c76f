// Package listing renders directory contents in the long "ls -l" layout.
package listing

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

// TimeLayout is the modification time column, in local time.
const TimeLayout = "Jan 02 15:04"

// Entry is the metadata of one line of a listing.
type Entry struct {
	Name    string
	IsDir   bool
	Mode    os.FileMode
	Links   uint64
	Owner   string
	Group   string
	Size    int64
	ModTime time.Time
}

// Line renders the entry without the trailing newline.
func (e Entry) Line() string {
	kind := '-'
	if e.IsDir {
		kind = 'd'
	}
	return fmt.Sprintf("%c%s %2d %-8s %-8s %8d %s %s",
		kind, Perms(e.Mode), e.Links, e.Owner, e.Group, e.Size,
		e.ModTime.Local().Format(TimeLayout), e.Name)
}

// Perms renders the nine permission bits as rwxrwxrwx.
func Perms(mode os.FileMode) string {
	const rwx = "rwxrwxrwx"
	perm := mode.Perm()
	b := []byte("---------")
	for i := 0; i < 9; i++ {
		if perm&(1<<uint(8-i)) != 0 {
			b[i] = rwx[i]
		}
	}
	return string(b)
}

// Formatter resolves owner and group names, caching lookups for its lifetime.
type Formatter struct {
	users  map[uint32]string
	groups map[uint32]string
}

func NewFormatter() *Formatter {
	return &Formatter{
		users:  make(map[uint32]string),
		groups: make(map[uint32]string),
	}
}

// Format lists dir. Entries keep the order the directory enumeration
// returns them in; entries that cannot be stat'ed are skipped.
func Format(dir string) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewFormatter().List(&buf, dir); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// List writes one line per entry of dir to w.
func (f *Formatter) List(w io.Writer, dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()

	// Readdirnames does not sort, unlike os.ReadDir.
	names, err := d.Readdirnames(-1)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}

	for _, name := range names {
		entry, err := f.Stat(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		entry.Name = name
		if _, err := fmt.Fprintln(w, entry.Line()); err != nil {
			return err
		}
	}
	return nil
}

// Stat builds the entry for path, following symlinks.
func (f *Formatter) Stat(path string) (Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		Name:    info.Name(),
		IsDir:   info.IsDir(),
		Mode:    info.Mode(),
		Links:   1,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		e.Links = uint64(st.Nlink)
		e.Owner = f.owner(st.Uid)
		e.Group = f.group(st.Gid)
	}
	return e, nil
}

func (f *Formatter) owner(uid uint32) string {
	if name, ok := f.users[uid]; ok {
		return name
	}
	id := strconv.FormatUint(uint64(uid), 10)
	name := id
	if u, err := user.LookupId(id); err == nil {
		name = u.Username
	}
	f.users[uid] = name
	return name
}

func (f *Formatter) group(gid uint32) string {
	if name, ok := f.groups[gid]; ok {
		return name
	}
	id := strconv.FormatUint(uint64(gid), 10)
	name := id
	if g, err := user.LookupGroupId(id); err == nil {
		name = g.Name
	}
	f.groups[gid] = name
	return name
}
