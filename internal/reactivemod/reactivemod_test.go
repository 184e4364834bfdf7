/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package reactivemod_test

import (
	"testing"

	"github.com/hotmod-dev/hotmod/internal/platform"
	"github.com/hotmod-dev/hotmod/internal/reactivemod"
	"github.com/hotmod-dev/hotmod/internal/signalgraph"
)

func TestLoadAndInvalidate(t *testing.T) {
	owner := signalgraph.NewOwner(nil)
	values := map[string]int{"a.mod": 1}
	loads := 0
	reg := reactivemod.NewRegistry(owner, nil, func(path string) (any, error) {
		loads++
		return values[path], nil
	})

	v, err := reg.Load("a.mod")
	if err != nil || v.(int) != 1 || loads != 1 {
		t.Fatalf("got v=%v err=%v loads=%d", v, err, loads)
	}

	// reading again without invalidation must not reload
	v, err = reg.Load("a.mod")
	if err != nil || v.(int) != 1 || loads != 1 {
		t.Fatalf("re-read without invalidate reloaded: loads=%d", loads)
	}

	values["a.mod"] = 2
	reg.Invalidate("a.mod")
	v, err = reg.Load("a.mod")
	if err != nil || v.(int) != 2 || loads != 2 {
		t.Fatalf("got v=%v err=%v loads=%d, want 2,nil,2", v, err, loads)
	}

	if !reg.IsCodePath("a.mod") {
		t.Fatal("a.mod should be a known code path after Load")
	}
	if reg.IsCodePath("never-loaded.mod") {
		t.Fatal("unknown path reported as code path")
	}
}

func TestInvalidateUnknownPathIsNoop(t *testing.T) {
	owner := signalgraph.NewOwner(nil)
	reg := reactivemod.NewRegistry(owner, nil, func(path string) (any, error) { return nil, nil })
	reg.Invalidate("/never/seen") // must not panic
}

func TestDownstreamDirtiedOnModuleReload(t *testing.T) {
	owner := signalgraph.NewOwner(nil)
	values := map[string]int{"a.mod": 1}
	reg := reactivemod.NewRegistry(owner, nil, func(path string) (any, error) {
		return values[path], nil
	})

	downstream := signalgraph.NewDerivation(owner, func() (int, error) {
		v, err := reg.Load("a.mod")
		if err != nil {
			return 0, err
		}
		return v.(int) * 100, nil
	})

	v, err := downstream.Get()
	if err != nil || v != 100 {
		t.Fatalf("got %d,%v want 100,nil", v, err)
	}

	values["a.mod"] = 2
	reg.Invalidate("a.mod")

	v, err = downstream.Get()
	if err != nil || v != 200 {
		t.Fatalf("got %d,%v want 200,nil (downstream not dirtied by module reload)", v, err)
	}
}

func TestTrackedFileInvalidatesOnContentChange(t *testing.T) {
	fs := platform.NewMapFS(map[string]string{"data.txt": "v1"})
	owner := signalgraph.NewOwner(nil)
	reg := reactivemod.NewRegistry(owner, fs, func(path string) (any, error) { return nil, nil })

	tf := reg.File("data.txt")
	reads := 0
	d := signalgraph.NewDerivation(owner, func() (string, error) {
		reads++
		return tf.Read()
	})

	v, err := d.Get()
	if err != nil || v != "v1" || reads != 1 {
		t.Fatalf("got %q,%v reads=%d", v, err, reads)
	}

	fs.WriteFile("data.txt", []byte("v2"), 0o644)
	reg.Invalidate("data.txt")

	v, err = d.Get()
	if err != nil || v != "v2" || reads != 2 {
		t.Fatalf("got %q,%v reads=%d, want v2,nil,2", v, err, reads)
	}
}

func TestTrackPathWithoutFileContent(t *testing.T) {
	owner := signalgraph.NewOwner(nil)
	reg := reactivemod.NewRegistry(owner, nil, func(path string) (any, error) { return nil, nil })

	runs := 0
	d := signalgraph.NewDerivation(owner, func() (int, error) {
		reg.Track("extra-watch-file")
		runs++
		return runs, nil
	})

	if _, err := d.Get(); err != nil {
		t.Fatal(err)
	}
	if !reg.IsTrackedPath("extra-watch-file") {
		t.Fatal("path not registered as tracked after Track")
	}

	reg.Invalidate("extra-watch-file")
	v, err := d.Get()
	if err != nil || v != 2 {
		t.Fatalf("got %d,%v want 2,nil", v, err)
	}
}
