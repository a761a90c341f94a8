package backend

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
)

// Generic interpreter names tried after the bundled copy.
var systemInterpreters = []string{"python3", "python"}

// Layout 描述资源目录中后端文件的位置
type Layout struct {
	// Dir is the resource directory. Empty means the lookup failed.
	Dir string
	// Err is the lookup failure, if any.
	Err error
	// GOOS selects the bundled interpreter's file name; defaults to runtime.GOOS.
	GOOS string
}

// EntryPoint returns <resource>/backend/main.py
func (l Layout) EntryPoint() string {
	return filepath.Join(l.Dir, "backend", "main.py")
}

// BundledInterpreter returns the path an installer puts the private
// interpreter at. The file may not exist.
func (l Layout) BundledInterpreter() string {
	name := "python"
	if l.goos() == "windows" {
		name = "python.exe"
	}
	return filepath.Join(l.Dir, "backend", "python", name)
}

// Candidates builds the ordered interpreter list: override, bundled copy (when
// present), then the generic system names. Duplicates are dropped.
func (l Layout) Candidates(override string) []string {
	var out []string
	add := func(c string) {
		if c == "" || slices.Contains(out, c) {
			return
		}
		out = append(out, c)
	}

	add(override)
	if l.Dir != "" {
		if st, err := os.Stat(l.BundledInterpreter()); err == nil && !st.IsDir() {
			add(l.BundledInterpreter())
		}
	}
	for _, name := range systemInterpreters {
		add(name)
	}
	return out
}

func (l Layout) goos() string {
	if l.GOOS != "" {
		return l.GOOS
	}
	return runtime.GOOS
}
